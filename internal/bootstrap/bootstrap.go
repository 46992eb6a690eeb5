// Package bootstrap provides dependency initialization for gifkit.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/maauso/gifkit/internal/capture"
	"github.com/maauso/gifkit/internal/config"
	"github.com/maauso/gifkit/internal/encode"
	"github.com/maauso/gifkit/internal/fetch"
	"github.com/maauso/gifkit/internal/job"
	"github.com/maauso/gifkit/internal/media"
	"github.com/maauso/gifkit/internal/storage"
)

// Dependencies holds all initialized dependencies for the binaries.
type Dependencies struct {
	ConvertService *job.ConvertService
	Fetcher        *fetch.Fetcher
	Store          storage.Storage
}

// NewDependencies creates and initializes all dependencies for the
// application. Extra service options are applied after the configured ones.
func NewDependencies(cfg *config.Config, logger *slog.Logger, opts ...job.ServiceOption) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		fetch.WithProxy(cfg.FetchProxyURL),
		fetch.WithLogger(logger),
	)

	// Initialize decoder and encoder pool
	decoder := media.NewFFmpegDecoder(cfg.FFmpegPath, cfg.FFprobePath)
	coordinator := encode.NewCoordinator(
		encode.NewLocalRuntime(logger),
		encode.WithLogger(logger),
		encode.WithDefaultWorkers(cfg.MaxWorkers),
	)

	// Initialize job repository
	repo := job.NewMemoryRepository()

	svcOpts := append([]job.ServiceOption{
		job.WithLogger(logger),
		job.WithFetcher(fetcher),
		job.WithDefaultQuality(cfg.DefaultQuality),
		job.WithWorkers(cfg.MaxWorkers),
		job.WithCaptureOptions(
			capture.WithSeekTimeout(cfg.SeekTimeout),
			capture.WithFrameWarnThreshold(cfg.FrameWarnThreshold),
		),
	}, opts...)

	svc := job.NewConvertService(repo, store, decoder, coordinator, svcOpts...)

	return &Dependencies{
		ConvertService: svc,
		Fetcher:        fetcher,
		Store:          store,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			PresignTTL:      cfg.S3PresignTTL,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
			slog.Duration("presign_ttl", cfg.S3PresignTTL),
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
