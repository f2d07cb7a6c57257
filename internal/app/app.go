package app

import (
	"context"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/external/livefeed"
	"github.com/riskibarqy/livefeed-updater/internal/config"
	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
	"github.com/riskibarqy/livefeed-updater/internal/infrastructure/repository/filestore"
	"github.com/riskibarqy/livefeed-updater/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
	"github.com/riskibarqy/livefeed-updater/internal/platform/resilience"
	"github.com/riskibarqy/livefeed-updater/internal/usecase"
)

// Options carries command-line choices that are not part of the config file.
type Options struct {
	SportID *int
	// DryRun seeds from the output file but keeps every write in memory.
	DryRun bool
}

func NewLiveUpdater(ctx context.Context, cfg config.Config, opts Options, logger *logging.Logger) (*usecase.LiveUpdateService, error) {
	if logger == nil {
		logger = logging.Default()
	}

	retentionMode, err := usecase.ParseRetentionMode(cfg.RetentionMode)
	if err != nil {
		return nil, crerr.Mark(err, config.ErrInvalidConfig)
	}

	client := livefeed.NewClient(livefeed.ClientConfig{
		BaseURL:   cfg.APIURL,
		Timeout:   cfg.RequestTimeout,
		Count:     cfg.FeedCount,
		Lang:      cfg.FeedLang,
		Mode:      cfg.FeedMode,
		Country:   cfg.FeedCountry,
		UserAgent: cfg.FeedUserAgent,
		Logger:    logger,
	})
	normalizer := livefeed.NewNormalizer(cfg.Location)

	store := filestore.NewLiveMatchStore(cfg.OutputFile, logger)
	var repo livematch.Repository = store
	if opts.DryRun {
		seed, err := store.Snapshot(ctx)
		if err != nil {
			logger.WarnContext(ctx, "dry run could not read output file, starting empty", "error", err)
		}
		repo = memory.NewLiveMatchRepository(seed)
		logger.InfoContext(ctx, "dry run enabled, output file will not be written", "output_file", store.Path())
	}

	svc := usecase.NewLiveUpdateService(usecase.LiveUpdateConfig{
		PollInterval: cfg.PollInterval,
		SportID:      opts.SportID,
		Retention: usecase.RetentionPolicy{
			Mode:        retentionMode,
			GraceCycles: int64(cfg.GracePeriodCycles),
			MaxMissing:  cfg.MaxMissing,
		},
		Breaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.CircuitEnabled,
			FailureThreshold: cfg.CircuitFailureCount,
			OpenTimeout:      cfg.CircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.CircuitHalfOpenMaxReq,
		},
	}, client, normalizer, repo, logger)

	return svc, nil
}
