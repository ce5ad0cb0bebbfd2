package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is the 24h rolling window of one instrument.
type Ticker struct {
	Symbol    string
	LastPrice decimal.Decimal
	ChangePct decimal.Decimal
}

// FearGreedReading is one value of the crypto fear & greed index.
type FearGreedReading struct {
	Value          int
	Classification string
	Timestamp      time.Time
}

// TickerFetcher retrieves 24h ticker statistics.
type TickerFetcher interface {
	Ticker24h(ctx context.Context, symbol string) (Ticker, error)
}

// FearGreedFetcher retrieves the latest fear & greed index.
type FearGreedFetcher interface {
	FetchFearGreed(ctx context.Context) (FearGreedReading, error)
}
