package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"nofomo/internal/engine"
	"nofomo/internal/service"
)

var errAppendFailed = errors.New("decision could not be appended to the log")

// EvaluateResult is printed by the evaluate command.
type EvaluateResult struct {
	Symbol     string            `json:"symbol"`
	Direction  engine.Direction  `json:"direction"`
	Assessment engine.Assessment `json:"assessment"`
	Recorded   bool              `json:"recorded"`
	RequestID  string            `json:"requestId,omitempty"`
}

// Evaluate scores a single intent without the HTTP layer and prints the full
// breakdown. With Record set the decision is appended to the log as well.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) (EvaluateResult, error) {
	eng, err := a.newEngine()
	if err != nil {
		return EvaluateResult{}, err
	}

	snap := opts.snapshot()
	intent, err := engine.NewTradeIntent(opts.Symbol, opts.Direction, snap)
	if err != nil {
		return EvaluateResult{}, err
	}
	if enricher := a.newEnricher(); enricher != nil {
		intent.Snapshot = enricher.Enrich(ctx, intent.Symbol, intent.Snapshot)
	}

	result := EvaluateResult{
		Symbol:     intent.Symbol,
		Direction:  intent.Direction,
		Assessment: eng.Assess(intent),
	}

	if opts.Record {
		requestID, err := a.record(ctx, eng, intent)
		if err != nil {
			return EvaluateResult{}, err
		}
		result.Recorded = true
		result.RequestID = requestID
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return EvaluateResult{}, err
	}
	return result, nil
}

// record appends one decision through the service so CLI entries look
// exactly like HTTP ones.
func (a *App) record(ctx context.Context, eng *engine.Engine, intent engine.TradeIntent) (string, error) {
	store, err := a.openStore(ctx)
	if err != nil {
		return "", err
	}
	defer a.closeStore(store)

	svc := service.New(eng, store, nil, nil, a.serviceOptions(), a.Logger)
	requestID := "cli-" + uuid.NewString()
	_, err = svc.Decide(ctx, service.DecideRequest{
		RequestID: requestID,
		Symbol:    intent.Symbol,
		Direction: string(intent.Direction),
		Snapshot:  intent.Snapshot,
	})
	if err != nil {
		a.shutdownService(svc)
		return "", err
	}
	if err := svc.Flush(ctx); err != nil {
		a.shutdownService(svc)
		return "", err
	}
	a.shutdownService(svc)

	if svc.Stats().Failed > 0 {
		return "", errAppendFailed
	}
	return requestID, nil
}

func (o EvaluateOptions) snapshot() engine.MarketSnapshot {
	var snap engine.MarketSnapshot
	if v := strings.TrimSpace(o.Price); v != "" {
		snap.Price = engine.NumberFrom(v)
	}
	if v := strings.TrimSpace(o.Change24h); v != "" {
		snap.Change24h = engine.NumberFrom(v)
	}
	if v := strings.TrimSpace(o.FearGreedIndex); v != "" {
		snap.FearGreedIndex = engine.NumberFrom(v)
	}
	if label := strings.TrimSpace(o.Sentiment); label != "" {
		snap.Sentiment = &engine.Sentiment{
			Label:             label,
			ConfidencePercent: engine.NumberFrom(o.SentimentConfidence),
		}
	}
	return snap
}
