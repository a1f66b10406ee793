package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelgate/pixelgate/internal/middleware"
)

// MountRoutes registers all routes on the given chi router.
//
// webhookSecret is a func so the shared secret can be rotated by the config
// watcher without remounting.
func MountRoutes(r chi.Router, h *Handlers, webhookSecret func() string, adminToken string) {
	// Ingestion. Untrusted storefront clients hit these from arbitrary
	// origins; nothing here requires auth and nothing here returns an
	// error the client could meaningfully act on except the strict path.
	r.Get("/events", h.HandlePixelQuery)
	r.Post("/events/beacon", h.HandleBeacon)
	r.Post("/events", h.HandleEventJSON)

	// Storefront surface.
	r.Get("/config", h.HandleConfig)
	r.Get("/gateway.js", h.HandleScript)

	// Platform webhooks, HMAC-verified before any parsing.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookHMAC(webhookSecret))
		r.Post("/*", h.HandleWebhook)
	})

	// Operational surface.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// Admin API, bearer token guarded.
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.AdminToken(adminToken))
		r.Put("/tenants/{domain}", h.HandleUpsertTenant)
		r.Get("/tenants/{domain}", h.HandleGetTenant)
		r.Post("/tenants/{domain}/link", h.HandleLinkCredential)
		r.Put("/credentials/{accountID}", h.HandleUpsertCredential)
		r.Get("/events", h.HandleListEvents)
	})
}
