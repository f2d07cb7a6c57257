package usecase

import (
	"fmt"
	"net/http"

	crerr "github.com/cockroachdb/errors"
)

var (
	ErrFeedNetwork     = crerr.New("feed network failure")
	ErrFeedHTTP        = crerr.New("feed http failure")
	ErrFeedDecode      = crerr.New("feed decode failure")
	ErrFeedUnavailable = crerr.New("feed temporarily unavailable")
	ErrMalformedRecord = crerr.New("malformed feed record")
	ErrPersist         = crerr.New("persist live database")
)

const (
	FetchKindNetwork     = "network"
	FetchKindHTTP        = "http"
	FetchKindDecode      = "decode"
	FetchKindUnavailable = "unavailable"
	FetchKindUnknown     = "unknown"
)

// FetchErrorKind classifies a feed error for logs.
func FetchErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case crerr.Is(err, ErrFeedUnavailable):
		return FetchKindUnavailable
	case crerr.Is(err, ErrFeedNetwork):
		return FetchKindNetwork
	case crerr.Is(err, ErrFeedHTTP):
		return FetchKindHTTP
	case crerr.Is(err, ErrFeedDecode):
		return FetchKindDecode
	default:
		return FetchKindUnknown
	}
}

// FeedStatusError is a non-success answer from the feed.
type FeedStatusError struct {
	StatusCode int
	Body       string
}

func (e *FeedStatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("feed rejected request: %s", e.Body)
	}
	return fmt.Sprintf("feed status=%d body=%s", e.StatusCode, e.Body)
}

func (e *FeedStatusError) Is(target error) bool {
	return target == ErrFeedHTTP
}

// IsTransientFeedError reports whether a feed error should count against the
// circuit breaker. Decode errors and client-side 4xx answers do not.
func IsTransientFeedError(err error) bool {
	if crerr.Is(err, ErrFeedNetwork) {
		return true
	}
	var statusErr *FeedStatusError
	if crerr.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// RecordError describes one feed entry the normalizer had to drop.
type RecordError struct {
	Index   int
	MatchID string
	Err     error
}

func (e *RecordError) Error() string {
	if e.MatchID != "" {
		return crerr.Wrapf(e.Err, "entry %d (match %s)", e.Index, e.MatchID).Error()
	}
	return crerr.Wrapf(e.Err, "entry %d", e.Index).Error()
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}
