package livefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/usecase"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		HTTPClient: server.Client(),
		BaseURL:    server.URL + "/LiveFeed/Get1x2_VZip",
		Timeout:    timeout,
	})
}

func TestClient_FetchLive_SendsQueryAndSplitsEntries(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("count") != "50" || query.Get("lng") != "en" || query.Get("mode") != "4" || query.Get("country") != "19" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if query.Get("sports") != "4" {
			t.Errorf("expected sports=4, got %q", query.Get("sports"))
		}
		if r.Header.Get("User-Agent") != defaultUserAgent {
			t.Errorf("unexpected user agent: %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Success": true, "Error": "", "Value": [` + footballEntry + `, ` + tennisEntry + `]}`))
	}, time.Second)

	sportID := 4
	snapshot, err := client.FetchLive(context.Background(), &sportID)
	if err != nil {
		t.Fatalf("fetch live: %v", err)
	}
	if len(snapshot.Entries) != 2 {
		t.Fatalf("unexpected entry count: got=%d want=2", len(snapshot.Entries))
	}
	if snapshot.SportID == nil || *snapshot.SportID != 4 {
		t.Fatalf("snapshot must carry the requested sport")
	}
	if snapshot.FetchedAt.IsZero() {
		t.Fatalf("expected fetched_at to be set")
	}

	records, errs := normalizeAll(t, NewNormalizer(time.UTC), string(snapshot.Entries[0]), string(snapshot.Entries[1]))
	if len(records) != 2 || len(errs) != 0 {
		t.Fatalf("raw entries must normalize: records=%d errs=%v", len(records), errs)
	}
}

func TestClient_FetchLive_OmitsSportsWithoutFilter(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("sports") {
			t.Errorf("unexpected sports param: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"Success": true, "Value": []}`))
	}, time.Second)

	snapshot, err := client.FetchLive(context.Background(), nil)
	if err != nil {
		t.Fatalf("fetch live: %v", err)
	}
	if len(snapshot.Entries) != 0 {
		t.Fatalf("expected empty snapshot, got=%d", len(snapshot.Entries))
	}
}

func TestClient_FetchLive_ErrorKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		body      string
		kind      string
		transient bool
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: "maintenance", kind: usecase.FetchKindHTTP, transient: true},
		{name: "client error", status: http.StatusForbidden, body: "blocked", kind: usecase.FetchKindHTTP},
		{name: "rate limited", status: http.StatusTooManyRequests, body: "slow down", kind: usecase.FetchKindHTTP, transient: true},
		{name: "bad json", status: http.StatusOK, body: `{"Value": [`, kind: usecase.FetchKindDecode},
		{name: "rejected", status: http.StatusOK, body: `{"Success": false, "Error": "country blocked"}`, kind: usecase.FetchKindHTTP},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, time.Second)

			_, err := client.FetchLive(context.Background(), nil)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := usecase.FetchErrorKind(err); got != tc.kind {
				t.Fatalf("unexpected kind: got=%s want=%s err=%v", got, tc.kind, err)
			}
			if got := usecase.IsTransientFeedError(err); got != tc.transient {
				t.Fatalf("unexpected transient flag: got=%v want=%v", got, tc.transient)
			}
		})
	}
}

func TestClient_FetchLive_TimeoutIsNetworkError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, 50*time.Millisecond)

	_, err := client.FetchLive(context.Background(), nil)
	if !crerr.Is(err, usecase.ErrFeedNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if !usecase.IsTransientFeedError(err) {
		t.Fatalf("timeouts must count against the breaker")
	}
}
