package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"nofomo/internal/engine"
)

// Enricher fills snapshot fields the client left out from public feeds.
// Supplied fields are never replaced, even when malformed, and a failed
// fetch leaves the field absent.
type Enricher struct {
	ticker    TickerFetcher
	fearGreed FearGreedFetcher
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewEnricher wires the fetchers. Either fetcher may be nil.
func NewEnricher(ticker TickerFetcher, fearGreed FearGreedFetcher, timeout time.Duration, logger zerolog.Logger) *Enricher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Enricher{
		ticker:    ticker,
		fearGreed: fearGreed,
		timeout:   timeout,
		logger:    logger.With().Str("component", "enricher").Logger(),
	}
}

// Enrich returns snap with missing price, change24h and fearGreedIndex filled where possible.
func (e *Enricher) Enrich(ctx context.Context, symbol string, snap engine.MarketSnapshot) engine.MarketSnapshot {
	needTicker := e.ticker != nil && (!snap.Price.IsSet() || !snap.Change24h.IsSet())
	needFearGreed := e.fearGreed != nil && !snap.FearGreedIndex.IsSet()
	if !needTicker && !needFearGreed {
		return snap
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var (
		ticker    Ticker
		tickerOK  bool
		reading   FearGreedReading
		readingOK bool
	)
	g, gctx := errgroup.WithContext(ctx)
	if needTicker {
		g.Go(func() error {
			t, err := e.ticker.Ticker24h(gctx, symbol)
			if err != nil {
				e.logger.Warn().Err(err).Str("symbol", symbol).Msg("ticker enrichment failed")
				return nil
			}
			ticker, tickerOK = t, true
			return nil
		})
	}
	if needFearGreed {
		g.Go(func() error {
			r, err := e.fearGreed.FetchFearGreed(gctx)
			if err != nil {
				e.logger.Warn().Err(err).Msg("fear & greed enrichment failed")
				return nil
			}
			reading, readingOK = r, true
			return nil
		})
	}
	_ = g.Wait()

	if tickerOK {
		if !snap.Price.IsSet() {
			snap.Price = engine.NumberFrom(ticker.LastPrice.String())
		}
		if !snap.Change24h.IsSet() {
			snap.Change24h = engine.NumberFrom(ticker.ChangePct.String())
		}
	}
	if readingOK {
		snap.FearGreedIndex = engine.NumberOf(float64(reading.Value))
	}
	return snap
}
