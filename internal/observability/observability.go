package observability

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/config"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
)

var (
	initTracing   = InitUptrace
	initProfiling = InitPyroscope
)

// Start brings up tracing, profiling and pprof as configured and returns one
// shutdown func that stops them in reverse order. A component that fails to
// start is logged and skipped; the updater keeps running without it.
func Start(cfg config.Config, logger *logging.Logger) func(context.Context) error {
	if logger == nil {
		logger = logging.Default()
	}

	shutdownTracing, err := initTracing(cfg, logger)
	if err != nil {
		logger.Warn("uptrace unavailable, continuing without tracing", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	stopProfiler, err := initProfiling(cfg, logger)
	if err != nil {
		logger.Warn("pyroscope unavailable, continuing without profiling", "error", err)
		stopProfiler = func() error { return nil }
	}

	pprofServer := StartPprofServer(cfg, logger)

	return func(ctx context.Context) error {
		var errs []error
		if err := StopPprofServer(pprofServer, logger, 5*time.Second); err != nil {
			errs = append(errs, crerr.Wrap(err, "stop pprof"))
		}
		if err := stopProfiler(); err != nil {
			errs = append(errs, crerr.Wrap(err, "stop pyroscope"))
		}
		if err := shutdownTracing(ctx); err != nil {
			errs = append(errs, crerr.Wrap(err, "shutdown uptrace"))
		}
		return crerr.Join(errs...)
	}
}
