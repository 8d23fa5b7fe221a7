package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the API router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.observe, h.recoverer, h.authenticate)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/user", func(r chi.Router) {
		r.Get("/", h.userStatus)
		r.Put("/", h.register)
		r.With(h.requireLogin).Post("/patreon", h.linkPatreon)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Get("/status", h.authStatus)
		r.Post("/logout", h.logout)
		r.With(h.requireLogin).Put("/password", h.changePassword)
		r.Post("/verify/{code}", h.verifyEmail)
	})

	r.Route("/tracks", func(r chi.Router) {
		r.Use(h.requireLogin)
		r.Get("/", h.listTracks)
		r.Post("/new", h.createTrack)
		r.Get("/{id}", h.getTrack)
		r.Delete("/{id}", h.deleteTrack)
	})

	r.Post("/webhooks/patreon", h.patreonWebhook)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	return r
}
