package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/hermes"
	"github.com/MikeSquared-Agency/Territoires/internal/scoring"
	"github.com/MikeSquared-Agency/Territoires/internal/snapshot"
)

func NewRouter(holder *snapshot.Holder, p *scoring.Pipeline, h hermes.Client, reloader Reloader, cfg *config.Config, logger *slog.Logger) http.Handler {
	if h == nil {
		h = hermes.NoopClient{}
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(CORSMiddleware(cfg.Server.CORSOrigins))
	r.Use(RateLimitMiddleware(cfg.Server.RateLimitPerMinute))

	scores := NewScoresHandler(holder, p, h, cfg.Scoring, logger)
	catalog := NewCatalogHandler(holder, cfg.Scoring)
	admin := NewAdminHandler(reloader)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", catalog.Snapshot)
		r.Get("/variables", catalog.Variables)
		r.Get("/display-range", catalog.DisplayRange)
		r.Get("/units/{granularity}/{code}", catalog.Unit)
		r.Get("/locate", catalog.Locate)

		r.Post("/scores", scores.Score)
		r.Post("/scores/geojson", scores.GeoJSON)
		r.Post("/explain", scores.Explain)

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.Server.AdminToken))
			r.Post("/admin/reload", admin.Reload)
		})
	})

	return r
}

// NewMetricsRouter serves /health and /metrics. Health reports 503 until the
// first snapshot is loaded.
func NewMetricsRouter(holder *snapshot.Holder) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := holder.Load()
		if snap == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "snapshot_id": snap.ID.String()})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}
