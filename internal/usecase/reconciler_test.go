package usecase

import (
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
)

func liveRecord(id string, sportID int, team1Score string) livematch.Record {
	return livematch.Record{
		MatchID: id,
		SportID: sportID,
		Sport:   "Football",
		Teams:   [2]string{id + "-home", id + "-away"},
		Score: &livematch.Score{
			Status: "1st half",
			Team1:  team1Score,
			Team2:  "0",
		},
	}
}

func mergeAt(r *Reconciler, db livematch.Database, cycle int64, filter *int, records ...livematch.Record) (livematch.Database, MergeStats) {
	now := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC).Add(time.Duration(cycle) * 15 * time.Second)
	return r.Merge(db, slices.Values(records), cycle, now, filter)
}

func TestReconciler_GracePeriodScenario(t *testing.T) {
	t.Parallel()

	r := NewReconciler(RetentionPolicy{Mode: RetentionByCycles, GraceCycles: 2})
	a := liveRecord("A", 1, "1")
	b := liveRecord("B", 1, "0")

	db, stats := mergeAt(r, livematch.Database{}, 1, nil, a, b)
	if stats.Inserted != 2 || len(db) != 2 {
		t.Fatalf("cycle 1: expected two inserts, got stats=%+v len=%d", stats, len(db))
	}
	firstA := db["A"]

	db, stats = mergeAt(r, db, 2, nil, a)
	if _, ok := db["B"]; !ok || stats.Retained != 1 {
		t.Fatalf("cycle 2: B must be retained, stats=%+v", stats)
	}

	db, stats = mergeAt(r, db, 3, nil, a)
	if _, ok := db["B"]; !ok {
		t.Fatalf("cycle 3: B must still be present at miss count 2")
	}
	if stats.Removed != 0 {
		t.Fatalf("cycle 3: expected no removal, got %+v", stats)
	}

	db, stats = mergeAt(r, db, 4, nil, a)
	if _, ok := db["B"]; ok {
		t.Fatalf("cycle 4: B must be removed at miss count 3")
	}
	if stats.Removed != 1 {
		t.Fatalf("cycle 4: expected one removal, got %+v", stats)
	}

	gotA := db["A"]
	if !gotA.SameContent(firstA) {
		t.Fatalf("A content changed across cycles: %+v vs %+v", gotA, firstA)
	}
	if gotA.Sync.LastSeenCycle != 4 || gotA.Sync.FirstSeenCycle != 1 {
		t.Fatalf("unexpected A sync meta: %+v", gotA.Sync)
	}
	if !gotA.Sync.UpdatedAt.Equal(firstA.Sync.UpdatedAt) {
		t.Fatalf("A updated_at moved without a content change")
	}
}

func TestReconciler_MergeIsIdempotentOnContent(t *testing.T) {
	t.Parallel()

	r := NewReconciler(RetentionPolicy{GraceCycles: 2})
	records := []livematch.Record{liveRecord("1", 1, "2"), liveRecord("2", 4, "15")}

	first, _ := mergeAt(r, livematch.Database{}, 7, nil, records...)
	second, stats := mergeAt(r, first, 8, nil, records...)

	if stats.Unchanged != 2 || stats.Updated != 0 || stats.Inserted != 0 {
		t.Fatalf("expected only unchanged records, got %+v", stats)
	}
	for id, before := range first {
		after := second[id]
		if !after.SameContent(before) {
			t.Fatalf("record %s content changed on identical merge", id)
		}
		if after.Sync.LastSeenCycle != 8 {
			t.Fatalf("record %s last_seen_cycle=%d, want 8", id, after.Sync.LastSeenCycle)
		}
		if after.Sync.FirstSeenCycle != before.Sync.FirstSeenCycle || !after.Sync.UpdatedAt.Equal(before.Sync.UpdatedAt) {
			t.Fatalf("record %s bookkeeping besides last seen changed: %+v -> %+v", id, before.Sync, after.Sync)
		}
	}
}

func TestReconciler_UpdatesMutableFields(t *testing.T) {
	t.Parallel()

	r := NewReconciler(RetentionPolicy{GraceCycles: 1})
	db, _ := mergeAt(r, livematch.Database{}, 1, nil, liveRecord("X", 1, "0"))
	db, stats := mergeAt(r, db, 2, nil, liveRecord("X", 1, "1"))

	if stats.Updated != 1 {
		t.Fatalf("expected one update, got %+v", stats)
	}
	got := db["X"]
	if got.Score.Team1 != "1" {
		t.Fatalf("expected score overwrite, got %s", got.Score.Team1)
	}
	if got.Sync.FirstSeenCycle != 1 || got.Sync.LastSeenCycle != 2 {
		t.Fatalf("unexpected sync meta: %+v", got.Sync)
	}
}

func TestReconciler_SportFilterIsolatesOtherSports(t *testing.T) {
	t.Parallel()

	r := NewReconciler(RetentionPolicy{GraceCycles: 0})
	db, _ := mergeAt(r, livematch.Database{}, 1, nil,
		liveRecord("football-1", 1, "0"),
		liveRecord("tennis-1", 4, "15"),
	)
	before := maps.Clone(db)

	football := 1
	next, stats := mergeAt(r, db, 5, &football, liveRecord("tennis-1", 4, "40"))

	if stats.OutOfScope != 1 {
		t.Fatalf("expected tennis candidate out of scope, got %+v", stats)
	}
	if _, ok := next["football-1"]; ok {
		t.Fatalf("expected stale football record removed under football filter")
	}
	if next["tennis-1"] != before["tennis-1"] {
		t.Fatalf("tennis record mutated by football-filtered merge")
	}
	if len(db) != 2 {
		t.Fatalf("merge must not modify the input database")
	}
}

func TestReconciler_AgeRetention(t *testing.T) {
	t.Parallel()

	r := NewReconciler(RetentionPolicy{Mode: RetentionByAge, MaxMissing: 40 * time.Second})
	db, _ := mergeAt(r, livematch.Database{}, 1, nil, liveRecord("A", 1, "0"), liveRecord("B", 1, "0"))

	// Cycles are 15s apart: B is 30s old at cycle 3 and 45s old at cycle 4.
	db, _ = mergeAt(r, db, 3, nil, liveRecord("A", 1, "0"))
	if _, ok := db["B"]; !ok {
		t.Fatalf("B removed before max missing age")
	}
	db, stats := mergeAt(r, db, 4, nil, liveRecord("A", 1, "0"))
	if _, ok := db["B"]; ok || stats.Removed != 1 {
		t.Fatalf("expected B removed after max missing age, stats=%+v", stats)
	}
}

func TestReconciler_DuplicateCandidatesLastWins(t *testing.T) {
	t.Parallel()

	r := NewReconciler(RetentionPolicy{GraceCycles: 2})
	db, stats := mergeAt(r, livematch.Database{}, 1, nil, liveRecord("A", 1, "0"), liveRecord("A", 1, "3"))

	if len(db) != 1 || stats.Inserted != 1 || stats.Duplicates != 1 {
		t.Fatalf("unexpected duplicate handling: len=%d stats=%+v", len(db), stats)
	}
	if db["A"].Score.Team1 != "3" {
		t.Fatalf("expected last duplicate to win, got %s", db["A"].Score.Team1)
	}
}

func TestParseRetentionMode(t *testing.T) {
	t.Parallel()

	if mode, err := ParseRetentionMode(""); err != nil || mode != RetentionByCycles {
		t.Fatalf("expected default cycles mode, got %s %v", mode, err)
	}
	if mode, err := ParseRetentionMode("AGE"); err != nil || mode != RetentionByAge {
		t.Fatalf("expected age mode, got %s %v", mode, err)
	}
	if _, err := ParseRetentionMode("wallclock"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
