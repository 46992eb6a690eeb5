// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidLogFormat is returned when LOG_FORMAT is neither text nor json.
	ErrInvalidLogFormat = errors.New("config: LOG_FORMAT must be text or json")
	// ErrS3Incomplete is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrS3Incomplete = errors.New("config: S3_BUCKET and S3_REGION must be set together")
	// ErrInvalidQuality is returned when DEFAULT_QUALITY is outside 1..100.
	ErrInvalidQuality = errors.New("config: DEFAULT_QUALITY must be between 1 and 100")
	// ErrInvalidWorkers is returned when MAX_WORKERS is negative.
	ErrInvalidWorkers = errors.New("config: MAX_WORKERS must not be negative")
	// ErrInvalidSeekTimeout is returned when SEEK_TIMEOUT is not positive.
	ErrInvalidSeekTimeout = errors.New("config: SEEK_TIMEOUT must be positive")
	// ErrInvalidPresignTTL is returned when S3_PRESIGN_TTL is outside 0..7 days.
	ErrInvalidPresignTTL = errors.New("config: S3_PRESIGN_TTL must be between 0 and 168h")
	// ErrInvalidRetention is returned when JOB_RETENTION is negative.
	ErrInvalidRetention = errors.New("config: JOB_RETENTION must not be negative")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int      `env:"PORT, default=8080" json:"port"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/gifkit" json:"temp_dir"`

	// Conversion settings
	MaxWorkers         int           `env:"MAX_WORKERS, default=0" json:"max_workers"` // 0 picks from GOMAXPROCS
	SeekTimeout        time.Duration `env:"SEEK_TIMEOUT, default=5s" json:"seek_timeout"`
	FrameWarnThreshold int           `env:"FRAME_WARN_THRESHOLD, default=500" json:"frame_warn_threshold"`
	DefaultQuality     int           `env:"DEFAULT_QUALITY, default=15" json:"default_quality"`
	// JobRetention is how long finished jobs and their GIFs are kept. 0 keeps them forever.
	JobRetention       time.Duration `env:"JOB_RETENTION, default=1h" json:"job_retention"`

	// Decoder binaries
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Remote fetch settings
	FetchProxyURL string        `env:"FETCH_PROXY_URL" json:"fetch_proxy_url,omitempty"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT, default=60s" json:"fetch_timeout"`

	// Optional S3 settings
	S3Bucket           string        `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string        `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string        `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3PresignTTL       time.Duration `env:"S3_PRESIGN_TTL" json:"s3_presign_ttl,omitempty"` // 0 returns plain object URLs
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID" json:"-"`                     // Masked in JSON
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY" json:"-"`                 // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads configuration through the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and settings that must appear together.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidLogFormat, c.LogFormat)
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrS3Incomplete
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidQuality, c.DefaultQuality)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.MaxWorkers)
	}
	if c.SeekTimeout <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidSeekTimeout, c.SeekTimeout)
	}
	if c.S3PresignTTL < 0 || c.S3PresignTTL > 7*24*time.Hour {
		return fmt.Errorf("%w: got %s", ErrInvalidPresignTTL, c.S3PresignTTL)
	}
	if c.JobRetention < 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidRetention, c.JobRetention)
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(c.LogLevel),
	}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, MaxWorkers: %d, SeekTimeout: %s, DefaultQuality: %d, JobRetention: %s, FFmpegPath: %s, FetchProxyURL: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.MaxWorkers,
		c.SeekTimeout,
		c.DefaultQuality,
		c.JobRetention,
		c.FFmpegPath,
		c.FetchProxyURL,
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
