package usecase

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
	"github.com/riskibarqy/livefeed-updater/internal/platform/resilience"
	"github.com/sourcegraph/conc/panics"
)

type CycleState string

const (
	StateIdle        CycleState = "idle"
	StateFetching    CycleState = "fetching"
	StateNormalizing CycleState = "normalizing"
	StateMerging     CycleState = "merging"
	StatePersisting  CycleState = "persisting"
	StateSleeping    CycleState = "sleeping"
	StateStopped     CycleState = "stopped"
)

type CycleOutcome string

const (
	OutcomeOK            CycleOutcome = "ok"
	OutcomeFetchFailed   CycleOutcome = "fetch_failed"
	OutcomeCircuitOpen   CycleOutcome = "circuit_open"
	OutcomePersistFailed CycleOutcome = "persist_failed"
	OutcomePanic         CycleOutcome = "panic"
)

// CycleReport summarizes one pass of fetch, normalize, merge and persist.
type CycleReport struct {
	Iteration int64
	Cycle     int64
	Outcome   CycleOutcome
	FetchKind string
	Fetched   int
	Accepted  int
	Rejected  int
	Merge     MergeStats
	Records   int
	Persisted bool
	Duration  time.Duration
	Err       error
}

type LiveUpdateConfig struct {
	PollInterval time.Duration
	SportID      *int
	Retention    RetentionPolicy
	Breaker      resilience.CircuitBreakerConfig
}

// LiveUpdateService owns the live database and drives the poll loop. Only one
// cycle runs at a time; cancellation is honored between cycles.
type LiveUpdateService struct {
	fetcher    FeedFetcher
	normalizer SnapshotNormalizer
	reconciler *Reconciler
	repo       livematch.Repository
	breaker    *resilience.CircuitBreaker
	logger     *logging.Logger
	interval   time.Duration
	sportID    *int

	db        livematch.Database
	loaded    bool
	cycle     int64
	iteration int64
	dirty     bool
	state     CycleState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewLiveUpdateService(
	cfg LiveUpdateConfig,
	fetcher FeedFetcher,
	normalizer SnapshotNormalizer,
	repo livematch.Repository,
	logger *logging.Logger,
) *LiveUpdateService {
	if logger == nil {
		logger = logging.Default()
	}

	return &LiveUpdateService{
		fetcher:    fetcher,
		normalizer: normalizer,
		reconciler: NewReconciler(cfg.Retention),
		repo:       repo,
		breaker:    resilience.NewCircuitBreaker(cfg.Breaker),
		logger:     logger,
		interval:   cfg.PollInterval,
		sportID:    cfg.SportID,
		db:         livematch.Database{},
		state:      StateIdle,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// Load reads the persisted database. A failing store never stops the
// updater: it starts from an empty database instead.
func (s *LiveUpdateService) Load(ctx context.Context) {
	db, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "load live database failed, starting empty", "error", err)
		db = livematch.Database{}
	}
	if db == nil {
		db = livematch.Database{}
	}

	s.db = db
	s.cycle = db.LastCycle()
	s.loaded = true
	s.logger.InfoContext(ctx, "live database loaded", "records", len(db), "last_cycle", s.cycle)
}

// Run polls until ctx is cancelled.
func (s *LiveUpdateService) Run(ctx context.Context) error {
	return s.RunCycles(ctx, 0)
}

// RunCycles polls at most limit times; limit <= 0 means until ctx is cancelled.
func (s *LiveUpdateService) RunCycles(ctx context.Context, limit int) error {
	if !s.loaded {
		s.Load(ctx)
	}

	s.logger.InfoContext(ctx, "live update loop started",
		"poll_interval", s.interval,
		"sport_id", sportLabel(s.sportID),
		"grace_cycles", s.reconciler.Policy().GraceCycles,
		"retention_mode", string(s.reconciler.Policy().Mode),
	)

	done := 0
	for {
		if ctx.Err() != nil {
			break
		}

		s.RunCycle(ctx)
		done++
		if limit > 0 && done >= limit {
			break
		}

		s.setState(StateSleeping)
		if !s.sleep(ctx, s.interval) {
			break
		}
	}

	s.shutdown(ctx)
	return nil
}

// RunCycle executes exactly one cycle and logs its summary line.
func (s *LiveUpdateService) RunCycle(ctx context.Context) CycleReport {
	s.iteration++
	started := s.now()

	cycleCtx, span := startCycleSpan(ctx, s.iteration)
	report := CycleReport{Iteration: s.iteration}

	var catcher panics.Catcher
	catcher.Try(func() {
		report = s.runCycle(cycleCtx, report)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		report.Outcome = OutcomePanic
		report.Cycle = s.cycle
		report.Err = crerr.Newf("cycle panicked: %v", recovered.Value)
		s.logger.ErrorContext(cycleCtx, "live update cycle panicked", "panic", recovered.Value, "stack", string(recovered.Stack))
	}

	report.Records = len(s.db)
	report.Duration = s.now().Sub(started)
	s.logCycle(cycleCtx, report)
	finishCycleSpan(span, report)
	s.setState(StateIdle)

	return report
}

func (s *LiveUpdateService) runCycle(ctx context.Context, report CycleReport) CycleReport {
	if err := s.breaker.Allow(); err != nil {
		snap := s.breaker.Snapshot()
		report.Outcome = OutcomeCircuitOpen
		report.FetchKind = FetchKindUnavailable
		report.Err = crerr.Mark(crerr.Wrapf(err, "feed skipped, retry in %s", snap.RetryAfter.Round(time.Second)), ErrFeedUnavailable)
		s.flushDirty(ctx, &report)
		return report
	}

	s.setState(StateFetching)
	raw, err := s.fetch(ctx)
	if err != nil {
		report.Outcome = OutcomeFetchFailed
		report.FetchKind = FetchErrorKind(err)
		report.Err = err
		s.flushDirty(ctx, &report)
		return report
	}

	s.cycle++
	report.Cycle = s.cycle
	report.Fetched = len(raw.Entries)
	if report.Fetched == 0 {
		s.logger.WarnContext(ctx, "no live games in feed", "cycle", s.cycle)
	}

	s.setState(StateNormalizing)
	candidates := func(yield func(livematch.Record) bool) {
		for record, recErr := range s.normalizer.Normalize(raw) {
			if recErr != nil {
				report.Rejected++
				s.logger.WarnContext(ctx, "dropping malformed feed entry", "cycle", s.cycle, "error", recErr)
				continue
			}
			report.Accepted++
			if !yield(record) {
				return
			}
		}
	}

	s.setState(StateMerging)
	next, stats := s.reconciler.Merge(s.db, candidates, s.cycle, s.now().UTC(), s.sportID)
	s.db = next
	s.dirty = true
	report.Merge = stats

	s.setState(StatePersisting)
	if err := s.persist(ctx); err != nil {
		report.Outcome = OutcomePersistFailed
		report.Err = err
		return report
	}

	report.Persisted = true
	report.Outcome = OutcomeOK
	return report
}

// fetch reports every allowed call back to the breaker, panics included.
// A fetch in flight is never interrupted by shutdown; it finishes or hits
// the client timeout.
func (s *LiveUpdateService) fetch(ctx context.Context) (raw RawSnapshot, err error) {
	trips := true
	defer func() {
		s.breaker.Record(trips)
	}()

	raw, err = s.fetcher.FetchLive(context.WithoutCancel(ctx), s.sportID)
	trips = IsTransientFeedError(err)
	return raw, err
}

// flushDirty retries a persist that failed in an earlier cycle.
func (s *LiveUpdateService) flushDirty(ctx context.Context, report *CycleReport) {
	if !s.dirty {
		return
	}
	s.setState(StatePersisting)
	if err := s.persist(ctx); err != nil {
		s.logger.ErrorContext(ctx, "retry persist failed", "error", err)
		return
	}
	report.Persisted = true
}

func (s *LiveUpdateService) persist(ctx context.Context) error {
	if err := s.repo.Persist(context.WithoutCancel(ctx), s.db); err != nil {
		return crerr.Mark(crerr.Wrap(err, "persist live database"), ErrPersist)
	}
	s.dirty = false
	return nil
}

func (s *LiveUpdateService) shutdown(ctx context.Context) {
	if s.dirty {
		if err := s.persist(ctx); err != nil {
			s.logger.ErrorContext(ctx, "final persist failed, previous file kept", "error", err)
		} else {
			s.logger.InfoContext(ctx, "pending live database persisted on shutdown", "records", len(s.db))
		}
	}
	s.setState(StateStopped)
	s.logger.InfoContext(ctx, "live update loop stopped", "iterations", s.iteration, "last_cycle", s.cycle, "records", len(s.db))
}

func (s *LiveUpdateService) logCycle(ctx context.Context, report CycleReport) {
	args := []any{
		"iteration", report.Iteration,
		"cycle", report.Cycle,
		"outcome", string(report.Outcome),
		"fetched", report.Fetched,
		"accepted", report.Accepted,
		"rejected", report.Rejected,
		"inserted", report.Merge.Inserted,
		"updated", report.Merge.Updated,
		"unchanged", report.Merge.Unchanged,
		"retained", report.Merge.Retained,
		"removed", report.Merge.Removed,
		"out_of_scope", report.Merge.OutOfScope,
		"records", report.Records,
		"records_by_sport", s.db.CountBySport(),
		"persisted", report.Persisted,
		"duration", report.Duration,
	}
	if report.Err != nil {
		if report.FetchKind != "" {
			args = append(args, "fetch_error_kind", report.FetchKind)
		}
		args = append(args, "error", report.Err)
		s.logger.WarnContext(ctx, "live update cycle finished", args...)
		return
	}
	s.logger.InfoContext(ctx, "live update cycle finished", args...)
}

func (s *LiveUpdateService) setState(state CycleState) {
	if s.state == state {
		return
	}
	s.logger.Debug("live update state", "from", string(s.state), "to", string(state), "iteration", s.iteration)
	s.state = state
}

// Database returns a copy of the in-memory working set.
func (s *LiveUpdateService) Database() livematch.Database {
	return s.db.Clone()
}

func (s *LiveUpdateService) State() CycleState {
	return s.state
}

func (s *LiveUpdateService) Cycle() int64 {
	return s.cycle
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func sportLabel(sportID *int) any {
	if sportID == nil {
		return "all"
	}
	return *sportID
}
