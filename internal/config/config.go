// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/maauso/thumbnail-studio/internal/pipeline"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrGeminiAPIKeyRequired is returned when GEMINI_API_KEY is not set.
	ErrGeminiAPIKeyRequired = errors.New("config: GEMINI_API_KEY is required")
	// ErrInvalidBatchPolicy is returned when BATCH_FAILURE_POLICY is not abort or skip.
	ErrInvalidBatchPolicy = errors.New("config: BATCH_FAILURE_POLICY must be abort or skip")
	// ErrInvalidTimeout is returned when a timeout or delay is not positive.
	ErrInvalidTimeout = errors.New("config: timeouts, delays and the session TTL must be positive")
	// ErrNoAllowedOrigins is returned when CORS_ALLOWED_ORIGINS is empty.
	ErrNoAllowedOrigins = errors.New("config: CORS_ALLOWED_ORIGINS must list at least one origin")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_MB must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	MaxUploadMB    int64    `env:"MAX_UPLOAD_MB, default=512" json:"max_upload_mb"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Gemini settings
	GeminiAPIKey string `env:"GEMINI_API_KEY, required" json:"-"` // Masked in JSON
	GeminiModel  string `env:"GEMINI_MODEL, default=gemini-2.5-flash-image" json:"gemini_model"`
	GeminiBase   string `env:"GEMINI_BASE_URL, default=https://generativelanguage.googleapis.com/v1beta" json:"gemini_base_url"`
	AspectRatio  string `env:"THUMBNAIL_ASPECT_RATIO, default=16:9" json:"aspect_ratio"`

	// Media settings
	TempDir     string `env:"TEMP_DIR, default=/tmp/thumbnail-studio" json:"temp_dir"`
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Pipeline settings
	CaptureTimeoutSec  int    `env:"CAPTURE_TIMEOUT_SEC, default=30" json:"capture_timeout_sec"`
	GenerateTimeoutSec int    `env:"GENERATE_TIMEOUT_SEC, default=120" json:"generate_timeout_sec"`
	BatchFailurePolicy string `env:"BATCH_FAILURE_POLICY, default=skip" json:"batch_failure_policy"`
	StatusClearDelayMS int    `env:"STATUS_CLEAR_DELAY_MS, default=2000" json:"status_clear_delay_ms"`
	SessionIdleTTLMin  int    `env:"SESSION_IDLE_TTL_MIN, default=60" json:"session_idle_ttl_min"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// CaptureTimeout bounds a single frame capture.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutSec) * time.Second
}

// GenerateTimeout bounds a single generate or refine call.
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSec) * time.Second
}

// StatusClearDelay is how long the reset confirmation stays visible.
func (c *Config) StatusClearDelay() time.Duration {
	return time.Duration(c.StatusClearDelayMS) * time.Millisecond
}

// SessionIdleTTL is how long a session may go untouched before it is closed.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMin) * time.Minute
}

// SessionSweepInterval is how often idle sessions are looked for.
func (c *Config) SessionSweepInterval() time.Duration {
	return max(c.SessionIdleTTL()/4, time.Minute)
}

// BatchPolicy returns the parsed batch failure policy. Call Validate first.
func (c *Config) BatchPolicy() pipeline.BatchPolicy {
	p, err := pipeline.ParseBatchPolicy(c.BatchFailurePolicy)
	if err != nil {
		return pipeline.BatchSkip
	}
	return p
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(ctx, cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "GEMINI_API_KEY") {
			return nil, ErrGeminiAPIKeyRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required values are present and tunables are in range.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return ErrGeminiAPIKeyRequired
	}
	if _, err := pipeline.ParseBatchPolicy(c.BatchFailurePolicy); err != nil {
		return fmt.Errorf("%w: got %q", ErrInvalidBatchPolicy, c.BatchFailurePolicy)
	}
	if c.CaptureTimeoutSec <= 0 || c.GenerateTimeoutSec <= 0 || c.StatusClearDelayMS <= 0 || c.SessionIdleTTLMin <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidUploadLimit
	}
	if len(c.AllowedOrigins) == 0 {
		return ErrNoAllowedOrigins
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, GeminiModel: %s, TempDir: %s, CaptureTimeoutSec: %d, GenerateTimeoutSec: %d, BatchFailurePolicy: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.GeminiModel,
		c.TempDir,
		c.CaptureTimeoutSec,
		c.GenerateTimeoutSec,
		c.BatchFailurePolicy,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
