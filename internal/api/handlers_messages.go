package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
)

type markReadRequest struct {
	UpToSeq int64 `json:"up_to_seq"`
}

type markReadResponse struct {
	Updated int64 `json:"updated"`
}

// ConversationsHandler lists the caller's inbox.
func (h *Handlers) ConversationsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	conversations, err := h.service.Conversations(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

// SendMessageHandler stores a message for the peer in the URL.
func (h *Handlers) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	peerID, ok := urlUUID(w, r, "peer")
	if !ok {
		return
	}
	var req domain.SendMessageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	message, err := h.service.SendMessage(r.Context(), user, peerID, req.Body)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

// ListMessagesHandler returns messages after the cursor. With wait set it
// long-polls until a message arrives or the wait elapses.
func (h *Handlers) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	peerID, ok := urlUUID(w, r, "peer")
	if !ok {
		return
	}
	after, err := queryInt64(r, "after", 0)
	if err != nil || after < 0 {
		writeError(w, http.StatusBadRequest, "Invalid after cursor")
		return
	}
	limit, err := queryInt64(r, "limit", 0)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	waitSeconds, err := queryInt64(r, "wait", 0)
	if err != nil || waitSeconds < 0 {
		writeError(w, http.StatusBadRequest, "Invalid wait")
		return
	}

	var page *domain.MessagePage
	if waitSeconds > 0 {
		page, err = h.service.WaitMessages(r.Context(), user, peerID, after, int(limit), time.Duration(waitSeconds)*time.Second)
	} else {
		page, err = h.service.ListMessages(r.Context(), user, peerID, after, int(limit))
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// MarkReadHandler marks the peer's messages read up to a sequence number.
func (h *Handlers) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	peerID, ok := urlUUID(w, r, "peer")
	if !ok {
		return
	}
	var req markReadRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.service.MarkConversationRead(r.Context(), user, peerID, req.UpToSeq)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{Updated: updated})
}

// ListInvestorsHandler returns the investor directory.
func (h *Handlers) ListInvestorsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	investors, err := h.service.ListInvestors(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, investors)
}

// MatchInvestorsHandler scores investors against one of the vendor's campaigns.
func (h *Handlers) MatchInvestorsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	campaignID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("campaign_id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}
	matches, err := h.service.MatchInvestors(r.Context(), user, campaignID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// RequestConnectionHandler sends a vendor's connection request.
func (h *Handlers) RequestConnectionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req domain.CreateConnectionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	connection, err := h.service.RequestConnection(r.Context(), user, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, connection)
}

// ListConnectionsHandler lists requests sent or received by the caller.
func (h *Handlers) ListConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	connections, err := h.service.ListConnections(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, connections)
}

// RespondConnectionHandler accepts or declines a vendor's request.
func (h *Handlers) RespondConnectionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	vendorID, ok := urlUUID(w, r, "vendor")
	if !ok {
		return
	}
	var req domain.RespondConnectionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	connection, err := h.service.RespondConnection(r.Context(), user, vendorID, req.Accept)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, connection)
}
