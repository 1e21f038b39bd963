package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"influxpool"
)

// Deps wires the router. Manager describes the default database; /query
// may pick another one on the same server with the db parameter.
type Deps struct {
	Pools    *influxpool.PoolFacade
	Manager  *influxpool.ConnectionManager
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Pools.Ping(r.Context(), deps.Manager); err != nil {
			logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/query", func(w http.ResponseWriter, r *http.Request) {
		command := r.URL.Query().Get("q")
		if command == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}

		manager := deps.Manager
		if db := r.URL.Query().Get("db"); db != "" {
			manager = manager.ForDatabase(db)
		}

		conn, err := deps.Pools.Get(r.Context(), manager)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, influxpool.ErrPoolTimeout) || errors.Is(err, influxpool.ErrPoolClosed) || errors.Is(err, influxpool.ErrPoolFacadeClosed) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		defer conn.Release()

		results, err := conn.Conn().Query(r.Context(), command)
		if err != nil {
			logger.Debug("query failed", "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	})

	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
