package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/video", h.UploadVideo)

			r.Post("/frames", h.ManualExtract)
			r.Post("/frames/auto", h.AutoExtract)
			r.Delete("/frames/{frameID}", h.RemoveFrame)
			r.Post("/frames/{frameID}/toggle", h.ToggleFrame)
			r.Get("/frames/{frameID}/image", h.FrameImage)

			r.Put("/settings", h.UpdateSettings)
			r.Post("/generate", h.Generate)
			r.Post("/refine", h.Refine)
			r.Post("/reset", h.Reset)

			r.Get("/thumbnail", h.DownloadThumbnail)
			r.Post("/thumbnail/export", h.ExportThumbnail)
		})
	})

	return r
}
