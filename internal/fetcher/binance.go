package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BinanceOptions parameterise the Binance ticker fetcher.
type BinanceOptions struct {
	BaseURL    string
	QuoteAsset string
	Timeout    time.Duration
}

// BinanceTicker reads public 24h ticker statistics from Binance spot.
type BinanceTicker struct {
	client *binance.Client
	quote  string
	logger zerolog.Logger
}

// NewBinanceTicker constructs a ticker fetcher. No API key is needed.
func NewBinanceTicker(opts BinanceOptions, logger zerolog.Logger) *BinanceTicker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := binance.NewClient("", "")
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		client.BaseURL = base
	}
	client.HTTPClient = &http.Client{Timeout: timeout}

	quote := strings.ToUpper(strings.TrimSpace(opts.QuoteAsset))
	if quote == "" {
		quote = "USDT"
	}

	return &BinanceTicker{
		client: client,
		quote:  quote,
		logger: logger.With().Str("component", "binance_ticker").Logger(),
	}
}

// MarketSymbol maps a client symbol onto a Binance pair. A bare base asset
// such as "BTC" gets the configured quote asset appended.
func (b *BinanceTicker) MarketSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" || strings.HasSuffix(s, b.quote) {
		return s
	}
	return s + b.quote
}

// Ticker24h fetches the 24h statistics for symbol.
func (b *BinanceTicker) Ticker24h(ctx context.Context, symbol string) (Ticker, error) {
	pair := b.MarketSymbol(symbol)
	if pair == "" {
		return Ticker{}, errors.New("symbol is required")
	}

	stats, err := b.client.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
	if err != nil {
		return Ticker{}, fmt.Errorf("binance ticker %s: %w", pair, err)
	}
	if len(stats) == 0 || stats[0] == nil {
		return Ticker{}, fmt.Errorf("binance ticker %s: empty response", pair)
	}

	last, err := decimal.NewFromString(stats[0].LastPrice)
	if err != nil {
		return Ticker{}, fmt.Errorf("parse last price: %w", err)
	}
	change, err := decimal.NewFromString(stats[0].PriceChangePercent)
	if err != nil {
		return Ticker{}, fmt.Errorf("parse price change percent: %w", err)
	}

	b.logger.Debug().
		Str("symbol", pair).
		Str("last_price", last.String()).
		Str("change_pct", change.String()).
		Msg("ticker fetched")

	return Ticker{Symbol: pair, LastPrice: last, ChangePct: change}, nil
}

var _ TickerFetcher = (*BinanceTicker)(nil)
