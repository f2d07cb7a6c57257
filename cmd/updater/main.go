package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskibarqy/livefeed-updater/internal/app"
	"github.com/riskibarqy/livefeed-updater/internal/config"
	"github.com/riskibarqy/livefeed-updater/internal/observability"
	idgen "github.com/riskibarqy/livefeed-updater/internal/platform/id"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
)

const defaultConfigPath = "config.json"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", defaultConfigPath, "path to a JSON or YAML config file")
	sportID := flag.Int("sports", 0, "only poll this sport id (0 = all sports)")
	cycles := flag.Int("cycles", 0, "stop after this many cycles (0 = run until interrupted)")
	dryRun := flag.Bool("dry-run", false, "poll and merge without writing the output file")
	flag.Parse()

	bootstrap := logging.NewJSON(logging.LevelInfo)

	path := resolveConfigPath(*configPath)
	cfg, err := config.Load(path)
	if err != nil {
		bootstrap.Error("load config", "path", path, "error", err)
		return 1
	}

	rootLogger, err := logging.New(logging.Options{Level: cfg.LogLevel, FilePath: cfg.LogFile})
	if err != nil {
		bootstrap.Error("build logger", "error", err)
		return 1
	}
	defer func() { _ = rootLogger.Sync() }()
	logger := rootLogger

	runID, err := idgen.NewRandomGenerator().NewID()
	if err != nil {
		logger.Warn("generate run id failed", "error", err)
		runID = "unknown"
	}
	logger = logger.With("run_id", runID, "service", cfg.ServiceName)
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObservability := observability.Start(cfg, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownObservability(shutdownCtx); err != nil {
			logger.Error("observability shutdown failed", "error", err)
		}
	}()

	opts := app.Options{DryRun: *dryRun}
	if *sportID > 0 {
		opts.SportID = sportID
	}

	svc, err := app.NewLiveUpdater(ctx, cfg, opts, logger)
	if err != nil {
		logger.Error("build live updater", "error", err)
		return 1
	}

	logger.Info("live updater starting",
		"config", path,
		"api_url", cfg.APIURL,
		"output_file", cfg.OutputFile,
		"poll_interval", cfg.PollInterval,
		"max_cycles", *cycles,
		"dry_run", *dryRun,
	)

	if err := svc.RunCycles(ctx, *cycles); err != nil {
		logger.Error("live updater stopped with error", "error", err)
		return 1
	}

	logger.Info("live updater stopped")
	return 0
}

// resolveConfigPath skips the default config file when it does not exist, so
// the updater can run from environment variables alone. An explicit -config
// must exist.
func resolveConfigPath(path string) string {
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	if explicit {
		return path
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
