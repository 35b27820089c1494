// Package server wires HTTP handlers into a chi router for the chat
// server's WebSocket transport and admin API.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes returns the HTTP handler for s: health check, WebSocket
// endpoint, test page and the /api admin routes.
func SetupRoutes(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.HealthHandler)
	r.Get("/ws", s.WebSocketHandler)
	r.Get("/test", TestPageHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/roster", s.RosterHandler)
		r.Post("/broadcast", s.BroadcastHandler)
		r.Post("/kick", s.KickHandler)
	})

	return r
}
