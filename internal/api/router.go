/**
 * @description
 * This file sets up the HTTP router for fundlink-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * middleware for CORS, metrics, logging, panic recovery, timeouts and
 * authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: For cross-origin requests from the web client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/fundlink/fundlink-service/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the service.
func Routes(h *Handlers, webhook http.Handler, m *metrics.Metrics, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "If-None-Match", "X-CSRF-Token"},
		ExposedHeaders:   []string{"ETag", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if m != nil {
		r.Use(m.Middleware)
	}

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Get("/ready", h.ReadyHandler)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Post("/auth/register", h.RegisterHandler)
	r.Post("/auth/login", h.LoginHandler)
	r.Method(http.MethodPost, "/webhooks/payments", webhook)

	r.Get("/campaigns", h.ListCampaignsHandler)
	r.Get("/campaigns/{id}", h.GetCampaignHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.service, h.logger))

		r.Post("/auth/logout", h.LogoutHandler)

		r.Route("/me", func(r chi.Router) {
			r.Get("/", h.GetMeHandler)
			r.Get("/route", h.RouteHandler)
			r.Put("/profile", h.UpdateProfileHandler)
			r.Put("/role", h.AssignRoleHandler)
			r.Get("/contributions", h.MyContributionsHandler)
			r.Get("/investments", h.InvestmentSummaryHandler)
		})

		r.Post("/campaigns", h.CreateCampaignHandler)
		r.Patch("/campaigns/{id}", h.UpdateCampaignHandler)
		r.Put("/campaigns/{id}/status", h.SetCampaignStatusHandler)
		r.Get("/campaigns/{id}/contributions", h.CampaignContributionsHandler)
		r.Post("/campaigns/{id}/contributions", h.BeginContributionHandler)
		r.Post("/contributions/{ref}/sent", h.MarkPaymentSentHandler)

		r.Get("/conversations", h.ConversationsHandler)
		r.Post("/conversations/{peer}/messages", h.SendMessageHandler)
		r.Get("/conversations/{peer}/messages", h.ListMessagesHandler)
		r.Post("/conversations/{peer}/read", h.MarkReadHandler)

		r.Get("/investors", h.ListInvestorsHandler)
		r.Get("/investors/matches", h.MatchInvestorsHandler)

		r.Post("/connections", h.RequestConnectionHandler)
		r.Get("/connections", h.ListConnectionsHandler)
		r.Put("/connections/{vendor}", h.RespondConnectionHandler)

		r.Post("/posts", h.SchedulePostHandler)
		r.Get("/posts", h.ListPostsHandler)
		r.Delete("/posts/{id}", h.DeletePostHandler)

		r.Get("/notifications", h.ListNotificationsHandler)
		r.Post("/notifications/{id}/read", h.MarkNotificationReadHandler)

		r.Post("/assistant/recommendations", h.RecommendationsHandler)
		r.Post("/assistant/posts", h.SocialPostsHandler)
		r.Post("/assistant/pitch", h.ImprovePitchHandler)

		r.Get("/settings/payment", h.GetPaymentSettingsHandler)

		// Role checks happen in the service so the error mapping stays in one place.
		r.Route("/admin", func(r chi.Router) {
			r.Get("/stats", h.PlatformStatsHandler)
			r.Delete("/users/{id}", h.DeleteUserHandler)
			r.Delete("/campaigns/{id}", h.DeleteCampaignHandler)
			r.Get("/settings/payment", h.AdminPaymentSettingsHandler)
			r.Put("/settings/payment", h.UpdatePaymentSettingsHandler)
			r.Post("/settings/payment/qr", h.UploadPaymentQRHandler)
			r.Post("/contributions/{ref}/verify", h.AdminVerifyContributionHandler)
			r.Post("/contributions/{ref}/reject", h.AdminRejectContributionHandler)
		})
	})

	return r
}

// ReadyHandler reports whether the database is reachable.
func (h *Handlers) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}
