package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes регистрирует маршруты воркера.
//
// /healthz и /metrics обслуживаются без middleware: их опрашивают
// балансировщик и Prometheus.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /api/v1/workflows", h.ListWorkflows},
		{"GET /api/v1/workflows/{id}", h.GetWorkflow},
		{"POST /api/v1/workflows/reload", h.ReloadWorkflows},
		{"GET /api/v1/executions/{id}", h.GetExecution},
		{"GET /api/v1/devices/{id}", h.GetDevice},
	}

	for _, rt := range routes {
		chain := Chain(
			RequestID(),
			Recovery(h.logger),
			Observe(h.logger, rt.pattern),
		)
		mux.Handle(rt.pattern, chain(rt.handler))
	}
}
