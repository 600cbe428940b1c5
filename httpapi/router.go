// Package httpapi exposes the admin HTTP surface: forceSyncFrom, /status,
// /healthz and /metrics, the one network surface this engine owns outright.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the admin HTTP handler. alive reports liveness for
// /healthz.
func NewRouter(h *Handler, alive func() bool) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !alive() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/status", h.Status)
	r.Post("/admin/forceSyncFrom", h.ForceSyncFrom)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
