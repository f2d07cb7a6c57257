package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/livefeed-updater/internal/config"
	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
	"github.com/riskibarqy/livefeed-updater/internal/usecase"
)

const feedBody = `{"Success": true, "Value": [
	{"I": 1001, "SI": 1, "SN": "Football", "L": "Liga 1", "O1": "Persija", "O2": "Persib",
	 "SC": {"SLS": "1st half", "S": [{"Key": "Team1Scores", "Value": "1"}]},
	 "E": [{"G": 1, "T": 1, "C": 1.8}, {"G": 1, "T": 3, "C": 4.2}]},
	{"I": 1002, "SI": 4, "SN": "Tennis", "O1": "Sinner"}
]}`

func testConfig(t *testing.T, apiURL string) config.Config {
	t.Helper()
	return config.Config{
		AppEnv:            config.EnvDev,
		ServiceName:       "livefeed-updater",
		APIURL:            apiURL,
		PollInterval:      time.Millisecond,
		RequestTimeout:    time.Second,
		OutputFile:        filepath.Join(t.TempDir(), "live_data.json"),
		GracePeriodCycles: 2,
		RetentionMode:     config.RetentionCycles,
		Location:          time.UTC,
	}
}

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(feedBody))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewLiveUpdater_WritesOutputFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newFeedServer(t).URL)
	svc, err := NewLiveUpdater(context.Background(), cfg, Options{}, logging.NewNop())
	if err != nil {
		t.Fatalf("new live updater: %v", err)
	}

	report := svc.RunCycle(context.Background())
	if report.Outcome != usecase.OutcomeOK {
		t.Fatalf("unexpected cycle outcome: %+v", report)
	}
	if report.Accepted != 1 || report.Rejected != 1 {
		t.Fatalf("unexpected entry counts: accepted=%d rejected=%d", report.Accepted, report.Rejected)
	}

	raw, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	var db livematch.Database
	if err := sonic.Unmarshal(raw, &db); err != nil {
		t.Fatalf("decode output file: %v", err)
	}
	record, ok := db["1001"]
	if !ok {
		t.Fatalf("expected match 1001 in output, got ids=%v", db.MatchIDs())
	}
	if record.WinProbability == nil || record.WinProbability.Source != livematch.ProbabilitySourceOdds {
		t.Fatalf("expected implied probability, got %+v", record.WinProbability)
	}
}

func TestNewLiveUpdater_DryRunLeavesFileUntouched(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newFeedServer(t).URL)
	svc, err := NewLiveUpdater(context.Background(), cfg, Options{DryRun: true}, logging.NewNop())
	if err != nil {
		t.Fatalf("new live updater: %v", err)
	}

	if err := svc.RunCycles(context.Background(), 2); err != nil {
		t.Fatalf("run cycles: %v", err)
	}
	if len(svc.Database()) != 1 {
		t.Fatalf("unexpected in-memory database size: %d", len(svc.Database()))
	}
	if _, err := os.Stat(cfg.OutputFile); !os.IsNotExist(err) {
		t.Fatalf("dry run must not create the output file, stat err=%v", err)
	}
}

func TestNewLiveUpdater_DryRunKeepsCorruptOutputFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, newFeedServer(t).URL)
	corrupt := []byte(`{not json`)
	if err := os.WriteFile(cfg.OutputFile, corrupt, 0o644); err != nil {
		t.Fatalf("write output file: %v", err)
	}

	svc, err := NewLiveUpdater(context.Background(), cfg, Options{DryRun: true}, logging.NewNop())
	if err != nil {
		t.Fatalf("new live updater: %v", err)
	}
	if err := svc.RunCycles(context.Background(), 1); err != nil {
		t.Fatalf("run cycles: %v", err)
	}

	raw, err := os.ReadFile(cfg.OutputFile)
	if err != nil {
		t.Fatalf("output file moved by dry run: %v", err)
	}
	if string(raw) != string(corrupt) {
		t.Fatalf("dry run changed output file: %q", raw)
	}
	if matches, _ := filepath.Glob(cfg.OutputFile + ".corrupt-*"); len(matches) != 0 {
		t.Fatalf("dry run quarantined output file: %v", matches)
	}
	if len(svc.Database()) != 1 {
		t.Fatalf("unexpected in-memory database size: %d", len(svc.Database()))
	}
}

func TestNewLiveUpdater_RejectsUnknownRetentionMode(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "https://feed.example.com")
	cfg.RetentionMode = "forever"

	if _, err := NewLiveUpdater(context.Background(), cfg, Options{}, logging.NewNop()); err == nil {
		t.Fatalf("expected error for unknown retention mode")
	}
}
