package api

import (
	"net/http"

	"github.com/fundlink/fundlink-service/internal/domain"
)

type pitchRequest struct {
	Pitch string `json:"pitch"`
}

// SchedulePostHandler schedules a social post for the calling vendor.
func (h *Handlers) SchedulePostHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req domain.CreatePostRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	post, err := h.service.SchedulePost(r.Context(), user, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// ListPostsHandler lists the vendor's scheduled posts.
func (h *Handlers) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	posts, err := h.service.ListPosts(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// DeletePostHandler removes a scheduled post.
func (h *Handlers) DeletePostHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	postID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeletePost(r.Context(), user, postID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNotificationsHandler returns the caller's notifications, newest first.
func (h *Handlers) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	notifications, err := h.service.ListNotifications(r.Context(), user)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// MarkNotificationReadHandler marks one notification read.
func (h *Handlers) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	notificationID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	notification, err := h.service.MarkNotificationRead(r.Context(), user, notificationID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notification)
}

// RecommendationsHandler returns growth recommendations for a business profile.
func (h *Handlers) RecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	var profile domain.BusinessProfile
	if !h.decodeJSON(w, r, &profile) {
		return
	}
	result, err := h.service.GrowthRecommendations(r.Context(), profile)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SocialPostsHandler drafts social media posts for a business profile.
func (h *Handlers) SocialPostsHandler(w http.ResponseWriter, r *http.Request) {
	var profile domain.BusinessProfile
	if !h.decodeJSON(w, r, &profile) {
		return
	}
	result, err := h.service.SocialPosts(r.Context(), profile)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ImprovePitchHandler rewrites a campaign pitch.
func (h *Handlers) ImprovePitchHandler(w http.ResponseWriter, r *http.Request) {
	var req pitchRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	result, err := h.service.ImprovePitch(r.Context(), req.Pitch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
