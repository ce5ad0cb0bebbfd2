// Package engine scores trade intents for impulse risk.
//
// The pipeline is Normalize -> Score -> Classify. It is pure: the same intent
// always yields the same Decision, so logged decisions can be replayed.
package engine

import "fmt"

// Assessment is a Decision together with the intermediate values that produced it.
type Assessment struct {
	Signals       Signals        `json:"signals"`
	Contributions []Contribution `json:"contributions"`
	Decision      Decision       `json:"decision"`
}

// Engine evaluates trade intents with a fixed set of parameters.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	params Params
}

// New validates params and builds an Engine.
func New(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine params: %w", err)
	}
	params.VolatilityTiers = sortedTiers(params.VolatilityTiers)
	return &Engine{params: params}, nil
}

// Params returns a copy of the parameters in use.
func (e *Engine) Params() Params {
	p := e.params
	p.VolatilityTiers = sortedTiers(e.params.VolatilityTiers)
	return p
}

// Assess runs the full pipeline and keeps the breakdown.
func (e *Engine) Assess(intent TradeIntent) Assessment {
	signals := Normalize(e.params, intent)
	score, contributions := Score(e.params.Weights, signals)
	return Assessment{
		Signals:       signals,
		Contributions: contributions,
		Decision:      Classify(e.params, score, contributions, signals),
	}
}

// Evaluate returns the Decision for intent.
func (e *Engine) Evaluate(intent TradeIntent) Decision {
	return e.Assess(intent).Decision
}
