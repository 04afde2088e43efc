package api

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/fundlink/fundlink-service/internal/app"
	"github.com/fundlink/fundlink-service/internal/domain"
)

const maxQRUploadBytes = 5 << 20

var allowedQRExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// PlatformStatsHandler returns the admin dashboard counters.
func (h *Handlers) PlatformStatsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	stats, err := h.service.PlatformStats(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DeleteUserHandler removes a user.
func (h *Handlers) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	userID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), user, userID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCampaignHandler removes a campaign.
func (h *Handlers) DeleteCampaignHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteCampaign(r.Context(), user, campaignID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPaymentSettingsHandler returns the platform payment details.
func (h *Handlers) GetPaymentSettingsHandler(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.PaymentSettings(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// AdminPaymentSettingsHandler is the admin view of the payment details.
func (h *Handlers) AdminPaymentSettingsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := app.RequireRole(user, domain.RoleAdmin); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.GetPaymentSettingsHandler(w, r)
}

// UpdatePaymentSettingsHandler replaces the platform payment details.
func (h *Handlers) UpdatePaymentSettingsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req domain.PaymentSettings
	if !h.decodeJSON(w, r, &req) {
		return
	}
	settings, err := h.service.UpdatePaymentSettings(r.Context(), user, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// UploadPaymentQRHandler accepts a multipart "qr" image and stores it as the
// payment QR code.
func (h *Handlers) UploadPaymentQRHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxQRUploadBytes)
	if err := r.ParseMultipartForm(maxQRUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}
	file, header, err := r.FormFile("qr")
	if err != nil {
		writeError(w, http.StatusBadRequest, "qr file field is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedQRExtensions[ext] {
		writeError(w, http.StatusBadRequest, "Unsupported file type. Supported: .png, .jpg, .jpeg, .webp")
		return
	}

	settings, err := h.service.UploadPaymentQR(r.Context(), user, file, header.Filename)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
