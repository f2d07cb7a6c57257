package livefeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
	"github.com/riskibarqy/livefeed-updater/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultCount     = 50
	defaultLang      = "en"
	defaultMode      = 4
	defaultCountry   = 19
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	maxBodyBytes     = 16 << 20
)

var _ usecase.FeedFetcher = (*Client)(nil)

type ClientConfig struct {
	HTTPClient *http.Client
	BaseURL    string
	Timeout    time.Duration
	Count      int
	Lang       string
	Mode       int
	Country    int
	UserAgent  string
	Logger     *logging.Logger
}

// Client performs single live-feed requests. It never retries; the poll
// loop is the retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	count      int
	lang       string
	mode       int
	country    int
	userAgent  string
	logger     *logging.Logger
	now        func() time.Time
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = timeout
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		timeout:    timeout,
		count:      positiveOr(cfg.Count, defaultCount),
		lang:       firstNonEmpty(cfg.Lang, defaultLang),
		mode:       positiveOr(cfg.Mode, defaultMode),
		country:    positiveOr(cfg.Country, defaultCountry),
		userAgent:  firstNonEmpty(cfg.UserAgent, defaultUserAgent),
		logger:     logger,
		now:        time.Now,
	}
}

// FetchLive requests the current live snapshot, optionally narrowed to one
// sport, and splits it into raw per-match entries.
func (c *Client) FetchLive(ctx context.Context, sportID *int) (usecase.RawSnapshot, error) {
	fullURL, err := c.requestURL(sportID)
	if err != nil {
		return usecase.RawSnapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return usecase.RawSnapshot{}, crerr.Wrap(err, "build feed request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.DebugContext(ctx, "fetching live feed", "sport_id", sportParam(sportID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return usecase.RawSnapshot{}, crerr.Mark(crerr.Wrap(err, "send feed request"), usecase.ErrFeedNetwork)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return usecase.RawSnapshot{}, crerr.Mark(crerr.Wrap(err, "read feed response"), usecase.ErrFeedNetwork)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return usecase.RawSnapshot{}, &usecase.FeedStatusError{StatusCode: resp.StatusCode, Body: abbreviateBody(raw)}
	}
	if len(raw) > maxBodyBytes {
		return usecase.RawSnapshot{}, crerr.Mark(crerr.Newf("feed response exceeds %d bytes", maxBodyBytes), usecase.ErrFeedDecode)
	}

	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return usecase.RawSnapshot{}, crerr.Mark(crerr.Wrap(err, "decode feed envelope"), usecase.ErrFeedDecode)
	}
	if env.Success != nil && !*env.Success {
		return usecase.RawSnapshot{}, &usecase.FeedStatusError{Body: firstNonEmpty(env.Error, "success=false")}
	}

	entries := make([][]byte, 0, len(env.Value))
	for _, entry := range env.Value {
		entries = append(entries, entry)
	}

	return usecase.RawSnapshot{
		Entries:   entries,
		SportID:   sportID,
		FetchedAt: c.now().UTC(),
	}, nil
}

func (c *Client) requestURL(sportID *int) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", crerr.Wrapf(err, "parse feed url %q", c.baseURL)
	}

	values := parsed.Query()
	values.Set("count", strconv.Itoa(c.count))
	values.Set("lng", c.lang)
	values.Set("mode", strconv.Itoa(c.mode))
	values.Set("country", strconv.Itoa(c.country))
	if sportID != nil {
		values.Set("sports", strconv.Itoa(*sportID))
	}
	parsed.RawQuery = values.Encode()

	return parsed.String(), nil
}

func abbreviateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= 240 {
		return text
	}
	return text[:240] + "..."
}

func sportParam(sportID *int) string {
	if sportID == nil {
		return "all"
	}
	return fmt.Sprint(*sportID)
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
