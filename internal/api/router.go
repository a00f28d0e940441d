package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// The paths are fixed by deployed hub firmware and the mobile app.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Post("/signup", s.handleSignup)
	r.Post("/login", s.handleLogin)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device hubs authenticate with the api_key in the body.
		r.Post("/sensor-data", s.handleSensorData)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/user-data", s.handleUserData)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	return r
}
