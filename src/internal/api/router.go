package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a new HTTP router with all API endpoints.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(Recovery)
	r.Use(Logger)
	r.Use(PrivateSubnetOnly) // Restrict access to private subnets

	h := NewHandler(deps)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.GetStatus)

		r.Get("/tunnels", h.GetTunnels)
		r.Delete("/tunnels/{id}", h.CloseTunnel)

		r.Get("/dns/fake", h.GetFakeMappings)
		r.Get("/dns/fake/{ip}", h.GetFakeMapping)

		r.Get("/redirect", h.GetRedirect)

		// WebSocket stream
		r.Get("/events", h.StreamEvents)
	})

	r.Get("/health", h.CheckHealth)

	return r
}
