package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// entityTag hashes an encoded response body into a strong ETag.
func entityTag(body []byte) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%016x", xxhash.Checksum64(body)))
}

// etagMatches reports whether the If-None-Match header names tag.
func etagMatches(header, tag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == tag {
			return true
		}
	}
	return false
}

// writeJSONWithETag writes data with an ETag, answering 304 when the client
// already holds the same representation.
func writeJSONWithETag(w http.ResponseWriter, r *http.Request, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	tag := entityTag(body)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	w.Write([]byte("\n"))
}
