package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nofomo/internal/engine"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestBinanceTickerSuccess(t *testing.T) {
	var gotSymbol string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		gotSymbol = r.URL.Query().Get("symbol")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","priceChange":"5000.00","priceChangePercent":"8.512","lastPrice":"63750.10"}`))
	}))
	defer srv.Close()

	b := NewBinanceTicker(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	ticker, err := b.Ticker24h(context.Background(), "btc")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.True(t, ticker.LastPrice.Equal(decimal.RequireFromString("63750.10")))
	assert.True(t, ticker.ChangePct.Equal(decimal.RequireFromString("8.512")))
}

func TestBinanceTickerHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	b := NewBinanceTicker(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	_, err := b.Ticker24h(context.Background(), "NOPEUSDT")
	assert.Error(t, err)

	_, err = b.Ticker24h(context.Background(), " ")
	assert.Error(t, err)
}

func TestMarketSymbol(t *testing.T) {
	b := NewBinanceTicker(BinanceOptions{QuoteAsset: "usdt"}, noopLogger())
	assert.Equal(t, "BTCUSDT", b.MarketSymbol("BTC"))
	assert.Equal(t, "ETHUSDT", b.MarketSymbol("ethusdt"))
}

func TestFearGreedSuccessAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Fear and Greed Index","data":[{"value":"82","value_classification":"Extreme Greed","timestamp":"1767225600"}],"metadata":{"error":null}}`))
	}))
	defer srv.Close()

	f := NewFearGreed(FearGreedOptions{URL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute}, noopLogger())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	reading, err := f.FetchFearGreed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 82, reading.Value)
	assert.Equal(t, "Extreme Greed", reading.Classification)
	assert.Equal(t, int64(1767225600), reading.Timestamp.Unix())

	_, err = f.FetchFearGreed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	now = now.Add(2 * time.Minute)
	_, err = f.FetchFearGreed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFearGreedRejectsBadPayloads(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"http error":   {http.StatusInternalServerError, `{"metadata":{"error":"boom"}}`},
		"no data":      {http.StatusOK, `{"data":[]}`},
		"out of range": {http.StatusOK, `{"data":[{"value":"140"}]}`},
		"not a number": {http.StatusOK, `{"data":[{"value":"lots"}]}`},
		"not json":     {http.StatusOK, `<html>`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			f := NewFearGreed(FearGreedOptions{URL: srv.URL, Timeout: time.Second}, noopLogger())
			_, err := f.FetchFearGreed(context.Background())
			assert.Error(t, err)
		})
	}
}

type stubTicker struct {
	ticker Ticker
	err    error
	calls  int
}

func (s *stubTicker) Ticker24h(ctx context.Context, symbol string) (Ticker, error) {
	s.calls++
	return s.ticker, s.err
}

type stubFearGreed struct {
	reading FearGreedReading
	err     error
	calls   int
}

func (s *stubFearGreed) FetchFearGreed(ctx context.Context) (FearGreedReading, error) {
	s.calls++
	return s.reading, s.err
}

func TestEnricherFillsOnlyMissingFields(t *testing.T) {
	ticker := &stubTicker{ticker: Ticker{
		Symbol:    "BTCUSDT",
		LastPrice: decimal.RequireFromString("64000"),
		ChangePct: decimal.RequireFromString("12.5"),
	}}
	fg := &stubFearGreed{reading: FearGreedReading{Value: 77}}
	e := NewEnricher(ticker, fg, time.Second, noopLogger())

	snap := e.Enrich(context.Background(), "BTCUSDT", engine.MarketSnapshot{Price: engine.NumberFrom("63000")})
	assert.Equal(t, "63000", snap.Price.Raw(), "supplied price is kept")
	assert.Equal(t, "12.5", snap.Change24h.Raw())
	fgi, ok := snap.FearGreed()
	assert.True(t, ok)
	assert.Equal(t, 77, fgi)

	full := engine.MarketSnapshot{
		Price:          engine.NumberFrom("1"),
		Change24h:      engine.NumberFrom("garbage"),
		FearGreedIndex: engine.NumberOf(50),
	}
	ticker.calls, fg.calls = 0, 0
	assert.Equal(t, full, e.Enrich(context.Background(), "BTCUSDT", full))
	assert.Zero(t, ticker.calls)
	assert.Zero(t, fg.calls)
}

func TestEnricherDegradesOnFailure(t *testing.T) {
	e := NewEnricher(&stubTicker{err: errors.New("down")}, &stubFearGreed{err: errors.New("down")}, time.Second, noopLogger())
	snap := e.Enrich(context.Background(), "BTCUSDT", engine.MarketSnapshot{})
	assert.False(t, snap.Price.IsSet())
	assert.False(t, snap.Change24h.IsSet())
	assert.False(t, snap.FearGreedIndex.IsSet())

	none := NewEnricher(nil, nil, 0, noopLogger())
	assert.Equal(t, engine.MarketSnapshot{}, none.Enrich(context.Background(), "BTCUSDT", engine.MarketSnapshot{}))
}
