package storage

import (
	"time"

	"nofomo/internal/engine"
)

// MarketData is the reduced snapshot kept for audit context. Sentiment is
// left out to keep entries compact.
type MarketData struct {
	Price          string `json:"price,omitempty"`
	Change24h      string `json:"change24h,omitempty"`
	FearGreedIndex *int   `json:"fearGreedIndex,omitempty"`
}

// NewMarketData reduces a snapshot to its audit fields, keeping the values as supplied.
func NewMarketData(snap engine.MarketSnapshot) MarketData {
	md := MarketData{
		Price:     snap.Price.Raw(),
		Change24h: snap.Change24h.Raw(),
	}
	if fgi, ok := snap.FearGreed(); ok {
		md.FearGreedIndex = &fgi
	}
	return md
}

// Snapshot rebuilds an engine snapshot from the audit fields.
func (m MarketData) Snapshot() engine.MarketSnapshot {
	var snap engine.MarketSnapshot
	if m.Price != "" {
		snap.Price = engine.NumberFrom(m.Price)
	}
	if m.Change24h != "" {
		snap.Change24h = engine.NumberFrom(m.Change24h)
	}
	if m.FearGreedIndex != nil {
		snap.FearGreedIndex = engine.NumberOf(float64(*m.FearGreedIndex))
	}
	return snap
}

// Entry is one self-contained decision record. The decision is embedded so
// the entry stays readable after the scoring parameters change.
type Entry struct {
	RequestID  string           `json:"requestId"`
	Symbol     string           `json:"symbol"`
	Direction  engine.Direction `json:"direction"`
	Decision   engine.Decision  `json:"decision"`
	MarketData MarketData       `json:"marketData"`
	CreatedAt  time.Time        `json:"createdAt"`
}
