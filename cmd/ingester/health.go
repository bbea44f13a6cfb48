package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/market-data/internal/registry"
	"github.com/rickgao/market-data/internal/repository"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type entrySource interface {
	Entries(ctx context.Context, opts *repository.LoadOptions) ([]registry.Entry, error)
}

// debugWindow bounds /debug/operations to recent registry entries.
const debugWindow = 24 * time.Hour

// newHandler serves health checks, recent operations and Prometheus metrics.
func newHandler(db pinger, entries entrySource, gatherer prometheus.Gatherer, metricsPath string, now func() time.Time, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/operations", func(w http.ResponseWriter, r *http.Request) {
		opts := &repository.LoadOptions{
			Filters: []repository.Filter{repository.Where("timestamp", repository.Ge, now().UTC().Add(-debugWindow))},
			OrderBy: []string{"timestamp"},
		}
		list, err := entries.Entries(r.Context(), opts)
		if err != nil {
			logger.Warn("failed to load registry entries", "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// Newest 100 only.
		total := len(list)
		if limit := 100; total > limit {
			list = list[total-limit:]
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":      total,
			"showing":    len(list),
			"operations": list,
		})
	})

	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	return mux
}
