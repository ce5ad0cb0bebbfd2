package service

import (
	"context"

	"nofomo/internal/engine"
	"nofomo/internal/storage"
)

// ReplayResult compares a logged decision with the one the current
// parameters produce for the same market data.
type ReplayResult struct {
	Entry    storage.Entry   `json:"entry"`
	Replayed engine.Decision `json:"replayed"`
	Changed  bool            `json:"changed"`
}

// Replay re-scores the most recent entries. Sentiment is not kept in the
// log, so replayed decisions only see volatility and fear & greed.
func (s *Service) Replay(ctx context.Context, limit int) ([]ReplayResult, error) {
	entries, err := s.ListDecisions(ctx, limit)
	if err != nil {
		return nil, err
	}
	return ReplayEntries(s.engine, entries), nil
}

// ReplayEntries re-scores entries with eng.
func ReplayEntries(eng *engine.Engine, entries []storage.Entry) []ReplayResult {
	results := make([]ReplayResult, 0, len(entries))
	for _, e := range entries {
		intent := engine.TradeIntent{Symbol: e.Symbol, Direction: e.Direction, Snapshot: e.MarketData.Snapshot()}
		replayed := eng.Evaluate(intent)
		results = append(results, ReplayResult{
			Entry:    e,
			Replayed: replayed,
			Changed:  replayed.Action != e.Decision.Action,
		})
	}
	return results
}
