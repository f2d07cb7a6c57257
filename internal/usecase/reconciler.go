package usecase

import (
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
)

type RetentionMode string

const (
	RetentionByCycles RetentionMode = "cycles"
	RetentionByAge    RetentionMode = "age"
)

func ParseRetentionMode(v string) (RetentionMode, error) {
	switch RetentionMode(strings.ToLower(strings.TrimSpace(v))) {
	case "", RetentionByCycles:
		return RetentionByCycles, nil
	case RetentionByAge:
		return RetentionByAge, nil
	default:
		return "", fmt.Errorf("invalid retention mode %q: valid values are %s, %s", v, RetentionByCycles, RetentionByAge)
	}
}

// RetentionPolicy decides when a match missing from the feed is dropped.
// By cycles, a record goes once cycle-lastSeenCycle exceeds GraceCycles.
// By age, it goes once it has not been seen for longer than MaxMissing.
type RetentionPolicy struct {
	Mode        RetentionMode
	GraceCycles int64
	MaxMissing  time.Duration
}

type MergeStats struct {
	Candidates int
	Inserted   int
	Updated    int
	Unchanged  int
	Duplicates int
	OutOfScope int
	Retained   int
	Removed    int
}

type Reconciler struct {
	policy RetentionPolicy
}

func NewReconciler(policy RetentionPolicy) *Reconciler {
	if policy.Mode == "" {
		policy.Mode = RetentionByCycles
	}
	if policy.GraceCycles < 0 {
		policy.GraceCycles = 0
	}
	return &Reconciler{policy: policy}
}

func (r *Reconciler) Policy() RetentionPolicy {
	return r.policy
}

// Merge applies one snapshot to current and returns the next database.
// current is never modified. With a sport filter, candidates and stored
// records of other sports are left alone.
func (r *Reconciler) Merge(
	current livematch.Database,
	candidates iter.Seq[livematch.Record],
	cycle int64,
	now time.Time,
	sportFilter *int,
) (livematch.Database, MergeStats) {
	next := current.Clone()
	seen := make(map[string]struct{}, len(current))
	var stats MergeStats

	for candidate := range candidates {
		stats.Candidates++
		if sportFilter != nil && candidate.SportID != *sportFilter {
			stats.OutOfScope++
			continue
		}

		_, duplicate := seen[candidate.MatchID]
		seen[candidate.MatchID] = struct{}{}

		existing, exists := next[candidate.MatchID]
		if !exists {
			candidate.Sync = livematch.SyncMeta{
				FirstSeenCycle: cycle,
				LastSeenCycle:  cycle,
				LastSeenAt:     now,
				UpdatedAt:      now,
			}
			next[candidate.MatchID] = candidate
			stats.Inserted++
			continue
		}

		sync := existing.Sync
		if cycle > sync.LastSeenCycle {
			sync.LastSeenCycle = cycle
		}
		if now.After(sync.LastSeenAt) {
			sync.LastSeenAt = now
		}

		changed := !existing.SameContent(candidate)
		if changed {
			sync.UpdatedAt = now
		} else {
			candidate = existing
		}
		candidate.Sync = sync
		next[candidate.MatchID] = candidate

		switch {
		case duplicate:
			stats.Duplicates++
		case changed:
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}

	for matchID, record := range next {
		if _, ok := seen[matchID]; ok {
			continue
		}
		if sportFilter != nil && record.SportID != *sportFilter {
			continue
		}
		if r.expired(record, cycle, now) {
			delete(next, matchID)
			stats.Removed++
			continue
		}
		stats.Retained++
	}

	return next, stats
}

func (r *Reconciler) expired(record livematch.Record, cycle int64, now time.Time) bool {
	if r.policy.Mode == RetentionByAge && !record.Sync.LastSeenAt.IsZero() {
		return now.Sub(record.Sync.LastSeenAt) > r.policy.MaxMissing
	}
	return cycle-record.Sync.LastSeenCycle > r.policy.GraceCycles
}
