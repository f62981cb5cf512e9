// Package bootstrap provides dependency initialization for the thumbnail studio API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/thumbnail-studio/internal/config"
	"github.com/maauso/thumbnail-studio/internal/gemini"
	"github.com/maauso/thumbnail-studio/internal/generator"
	"github.com/maauso/thumbnail-studio/internal/media"
	"github.com/maauso/thumbnail-studio/internal/pipeline"
	"github.com/maauso/thumbnail-studio/internal/session"
	"github.com/maauso/thumbnail-studio/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Registry *session.MemoryRegistry
	Storage  storage.Storage
	// NewSession builds a pipeline session wired to the shared media and generator backends.
	NewSession func(id string) *pipeline.Session

	logger *slog.Logger
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	geminiClient, err := gemini.NewClient(
		gemini.WithAPIKey(cfg.GeminiAPIKey),
		gemini.WithBaseURL(cfg.GeminiBase),
	)
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	gen := generator.NewGeminiAdapter(geminiClient,
		generator.WithModel(cfg.GeminiModel),
		generator.WithAspectRatio(cfg.AspectRatio),
	)

	sampler := media.NewFFmpegSampler(cfg.FFmpegPath, cfg.FFprobePath)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithCleaner(store),
		pipeline.WithBatchPolicy(cfg.BatchPolicy()),
		pipeline.WithCaptureTimeout(cfg.CaptureTimeout()),
		pipeline.WithGenerateTimeout(cfg.GenerateTimeout()),
		pipeline.WithStatusClearDelay(cfg.StatusClearDelay()),
	}

	return &Dependencies{
		Registry: session.NewMemoryRegistry(),
		Storage:  store,
		NewSession: func(id string) *pipeline.Session {
			return pipeline.NewSession(id, sampler, sampler, gen, opts...)
		},
		logger: logger.With(slog.String("component", "sweeper")),
	}, nil
}

// Close releases every live session and its uploaded video.
func (d *Dependencies) Close(ctx context.Context) {
	sessions, err := d.Registry.List(ctx)
	if err != nil {
		return
	}
	for _, s := range sessions {
		if _, err := d.Registry.Remove(ctx, s.ID()); err == nil {
			s.Close(ctx)
		}
	}
}

// SweepIdleSessions closes sessions left untouched for longer than ttl,
// checking every interval until ctx is done.
func (d *Dependencies) SweepIdleSessions(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.closeIdle(ctx, ttl)
		}
	}
}

func (d *Dependencies) closeIdle(ctx context.Context, ttl time.Duration) int {
	expired := d.Registry.RemoveIdle(ctx, ttl)
	for _, s := range expired {
		s.Close(ctx)
	}
	if len(expired) > 0 && d.logger != nil {
		d.logger.Info("idle sessions closed",
			slog.Int("count", len(expired)),
			slog.Duration("ttl", ttl),
		)
	}
	return len(expired)
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
