package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// FearGreedOptions parameterise the alternative.me index fetcher.
type FearGreedOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
	// CacheTTL keeps a reading this long; the index only moves once a day.
	CacheTTL time.Duration
}

// FearGreed fetches the crypto fear & greed index.
type FearGreed struct {
	opts   FearGreedOptions
	logger zerolog.Logger
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	cached    FearGreedReading
	fetchedAt time.Time
}

// NewFearGreed constructs an index fetcher.
func NewFearGreed(opts FearGreedOptions, logger zerolog.Logger) *FearGreed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = "https://api.alternative.me/fng/"
	}
	if opts.CacheTTL < 0 {
		opts.CacheTTL = 0
	}

	return &FearGreed{
		opts:   opts,
		logger: logger.With().Str("component", "fear_greed_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// FetchFearGreed returns the latest index value, served from cache while fresh.
func (f *FearGreed) FetchFearGreed(ctx context.Context) (FearGreedReading, error) {
	f.mu.Lock()
	if !f.fetchedAt.IsZero() && f.now().Sub(f.fetchedAt) < f.opts.CacheTTL {
		reading := f.cached
		f.mu.Unlock()
		return reading, nil
	}
	f.mu.Unlock()

	reading, err := f.fetch(ctx)
	if err != nil {
		return FearGreedReading{}, err
	}

	f.mu.Lock()
	f.cached = reading
	f.fetchedAt = f.now()
	f.mu.Unlock()
	return reading, nil
}

func (f *FearGreed) fetch(ctx context.Context) (FearGreedReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.URL, nil)
	if err != nil {
		return FearGreedReading{}, err
	}
	q := req.URL.Query()
	q.Set("limit", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "nofomo/1.0")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return FearGreedReading{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return FearGreedReading{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return FearGreedReading{}, parseHTTPError(resp.StatusCode, payload)
	}
	return parseFearGreed(payload)
}

func parseFearGreed(payload []byte) (FearGreedReading, error) {
	if !gjson.ValidBytes(payload) {
		return FearGreedReading{}, errors.New("fear & greed response is not valid JSON")
	}
	point := gjson.GetBytes(payload, "data.0")
	if !point.Exists() {
		return FearGreedReading{}, errors.New("fear & greed response has no data")
	}

	value, err := strconv.Atoi(strings.TrimSpace(point.Get("value").String()))
	if err != nil {
		return FearGreedReading{}, fmt.Errorf("parse fear & greed value: %w", err)
	}
	if value < 0 || value > 100 {
		return FearGreedReading{}, fmt.Errorf("fear & greed value %d out of range", value)
	}

	reading := FearGreedReading{
		Value:          value,
		Classification: point.Get("value_classification").String(),
	}
	if ts := point.Get("timestamp").Int(); ts > 0 {
		reading.Timestamp = time.Unix(ts, 0).UTC()
	}
	return reading, nil
}

func parseHTTPError(status int, payload []byte) error {
	if msg := gjson.GetBytes(payload, "metadata.error"); msg.Exists() && msg.String() != "" {
		return fmt.Errorf("fear & greed api error (%d): %s", status, msg.String())
	}
	if len(payload) > 0 {
		return fmt.Errorf("fear & greed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("fear & greed api error (%d)", status)
}

var _ FearGreedFetcher = (*FearGreed)(nil)
