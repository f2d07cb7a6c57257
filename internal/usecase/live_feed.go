package usecase

import (
	"context"
	"iter"
	"time"

	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
)

// RawSnapshot is one feed answer, split into per-match entries that have not
// been interpreted yet.
type RawSnapshot struct {
	Entries   [][]byte
	SportID   *int
	FetchedAt time.Time
}

// FeedFetcher performs one bounded request against the live feed.
type FeedFetcher interface {
	FetchLive(ctx context.Context, sportID *int) (RawSnapshot, error)
}

// SnapshotNormalizer turns raw entries into match records. A non-nil error in
// the sequence marks one dropped entry; iteration continues after it.
type SnapshotNormalizer interface {
	Normalize(raw RawSnapshot) iter.Seq2[livematch.Record, error]
}
