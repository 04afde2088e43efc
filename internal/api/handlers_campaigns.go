package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/fundlink/fundlink-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type campaignStatusRequest struct {
	Status string `json:"status"`
}

type rejectContributionRequest struct {
	Reason string `json:"reason"`
}

// verificationResponse reports the ledger state after a confirmation.
type verificationResponse struct {
	Applied      bool                 `json:"applied"`
	Contribution *domain.Contribution `json:"contribution"`
	Campaign     *domain.CampaignView `json:"campaign,omitempty"`
}

func newVerificationResponse(result *store.VerifyContributionResult) verificationResponse {
	resp := verificationResponse{Applied: result.Applied, Contribution: result.Contribution}
	if result.Campaign != nil {
		view := domain.NewCampaignView(*result.Campaign)
		resp.Campaign = &view
	}
	return resp
}

// ListCampaignsHandler lists campaigns filtered by category, status and vendor.
func (h *Handlers) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.CampaignFilter{
		Category: strings.TrimSpace(query.Get("category")),
		Status:   strings.TrimSpace(query.Get("status")),
	}
	if raw := strings.TrimSpace(query.Get("vendor_id")); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid vendor_id")
			return
		}
		filter.VendorID = &vendorID
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		filter.Offset = offset
	}

	campaigns, err := h.service.ListCampaigns(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

// GetCampaignHandler returns one campaign with its progress and an ETag.
func (h *Handlers) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaignID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	campaign, err := h.service.GetCampaign(r.Context(), campaignID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSONWithETag(w, r, campaign)
}

// CreateCampaignHandler opens a campaign for the calling vendor.
func (h *Handlers) CreateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req domain.CreateCampaignRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	campaign, err := h.service.CreateCampaign(r.Context(), user, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

// UpdateCampaignHandler applies owner edits.
func (h *Handlers) UpdateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.UpdateCampaignRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	campaign, err := h.service.UpdateCampaign(r.Context(), user, campaignID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// SetCampaignStatusHandler opens or closes a campaign.
func (h *Handlers) SetCampaignStatusHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req campaignStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	campaign, err := h.service.SetCampaignStatus(r.Context(), user, campaignID, req.Status)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

// CampaignContributionsHandler lists contributions for the owner or an admin.
func (h *Handlers) CampaignContributionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	contributions, err := h.service.CampaignContributions(r.Context(), user, campaignID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contributions)
}

// BeginContributionHandler opens a payment confirmation flow.
func (h *Handlers) BeginContributionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	campaignID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req domain.BeginContributionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	instructions, err := h.service.BeginContribution(r.Context(), user, campaignID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, instructions)
}

// MarkPaymentSentHandler records that the contributor has paid.
func (h *Handlers) MarkPaymentSentHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	contribution, err := h.service.MarkPaymentSent(r.Context(), user, chi.URLParam(r, "ref"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contribution)
}

// MyContributionsHandler lists the caller's contributions.
func (h *Handlers) MyContributionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	contributions, err := h.service.MyContributions(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contributions)
}

// InvestmentSummaryHandler backs the investor dashboard.
func (h *Handlers) InvestmentSummaryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	summary, err := h.service.InvestmentSummary(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// AdminVerifyContributionHandler confirms a payment by hand.
func (h *Handlers) AdminVerifyContributionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	result, err := h.service.AdminVerifyContribution(r.Context(), user, chi.URLParam(r, "ref"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newVerificationResponse(result))
}

// AdminRejectContributionHandler rejects a pending payment.
func (h *Handlers) AdminRejectContributionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req rejectContributionRequest
	if r.ContentLength != 0 && !h.decodeJSON(w, r, &req) {
		return
	}
	contribution, err := h.service.AdminRejectContribution(r.Context(), user, chi.URLParam(r, "ref"), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contribution)
}
