package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
	"github.com/stretchr/testify/require"
)

func sampleDatabase() livematch.Database {
	seenAt := time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)
	minute := 63
	home := 2.1
	draw := 30.5

	return livematch.Database{
		"9": {
			MatchID:   "9",
			SportID:   1,
			Sport:     "Football",
			League:    "Liga 1",
			Teams:     [2]string{"Persija", "Persib"},
			StartTime: "2026-10-19T14:00:00-04:00",
			Score:     &livematch.Score{Status: "2nd half", MatchSeconds: &minute, Team1: "1", Team2: "0"},
			Odds:      &livematch.Odds{Team1Win: &home},
			WinProbability: &livematch.WinProbability{
				Team1Percent: 40.25,
				DrawPercent:  &draw,
				Team2Percent: 29.25,
				Source:       livematch.ProbabilitySourceOdds,
			},
			Sync: livematch.SyncMeta{FirstSeenCycle: 1, LastSeenCycle: 3, LastSeenAt: seenAt, UpdatedAt: seenAt},
		},
		"10": {
			MatchID: "10",
			SportID: 4,
			Sport:   "Tennis",
			Teams:   [2]string{"Sinner", "Zverev"},
			Sync:    livematch.SyncMeta{FirstSeenCycle: 2, LastSeenCycle: 3, LastSeenAt: seenAt, UpdatedAt: seenAt},
		},
	}
}

func TestLiveMatchStore_PersistThenLoadRoundTrips(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "live_data.json")
	store := NewLiveMatchStore(path, logging.NewNop())

	want := sampleDatabase()
	require.NoError(t, store.Persist(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLiveMatchStore_PersistIsByteStable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "live_data.json")
	store := NewLiveMatchStore(path, logging.NewNop())

	require.NoError(t, store.Persist(ctx, sampleDatabase()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, store.Persist(ctx, sampleDatabase()))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, string(first), string(second))
	if strings.Index(string(first), `"10"`) > strings.Index(string(first), `"9"`) {
		t.Fatalf("expected match ids in sorted key order")
	}
	if !strings.Contains(string(first), `"_sync"`) {
		t.Fatalf("expected bookkeeping under the _sync namespace")
	}
}

func TestLiveMatchStore_CrashBeforeRenameKeepsPreviousFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "live_data.json")
	store := NewLiveMatchStore(path, logging.NewNop())

	require.NoError(t, store.Persist(ctx, sampleDatabase()))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	store.beforeRename = func(string) error { return errors.New("power lost") }
	err = store.Persist(ctx, livematch.Database{})
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestLiveMatchStore_LoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewLiveMatchStore(filepath.Join(t.TempDir(), "absent.json"), logging.NewNop())
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestLiveMatchStore_LoadCorruptFileIsQuarantined(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "live_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"1": {"match_id": `), 0o644))

	store := NewLiveMatchStore(path, logging.NewNop())
	store.now = func() time.Time { return time.Unix(1760900400, 0) }

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	if _, err := os.Stat(path + ".corrupt-1760900400"); err != nil {
		t.Fatalf("expected quarantined copy: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected corrupt file moved away, stat err=%v", err)
	}
}

func TestLiveMatchStore_SnapshotLeavesCorruptFileInPlace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "live_data.json")
	corrupt := []byte(`{not json`)
	require.NoError(t, os.WriteFile(path, corrupt, 0o644))

	store := NewLiveMatchStore(path, logging.NewNop())
	got, err := store.Snapshot(context.Background())
	require.Error(t, err)
	require.Nil(t, got)
	if !crerr.Is(err, ErrCorruptDatabase) {
		t.Fatalf("expected corrupt database error, got %v", err)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, corrupt, raw)

	matches, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestLiveMatchStore_LoadFillsMissingMatchID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "live_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"77": {"sport_id": 1, "teams": ["A", "B"], "_sync": {"last_seen_cycle": 4}}}`), 0o644))

	got, err := NewLiveMatchStore(path, logging.NewNop()).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "77", got["77"].MatchID)
	require.Equal(t, int64(4), got.LastCycle())
}
