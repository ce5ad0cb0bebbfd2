package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// VolatilityTier maps a minimum absolute 24h change (in percent) to a caution score.
type VolatilityTier struct {
	MinAbsChange float64 `mapstructure:"min_abs_change" json:"minAbsChange"`
	Score        float64 `mapstructure:"score" json:"score"`
}

// Weights of the three normalized factors. They must sum to 1.
type Weights struct {
	Volatility float64 `mapstructure:"volatility" json:"volatility"`
	Alignment  float64 `mapstructure:"alignment" json:"alignment"`
	Extremity  float64 `mapstructure:"extremity" json:"extremity"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Volatility + w.Alignment + w.Extremity
}

// ConfidenceParams lower the decision confidence for every missing input.
type ConfidenceParams struct {
	Base             int `mapstructure:"base" json:"base"`
	MissingChange    int `mapstructure:"missing_change" json:"missingChange"`
	MissingFearGreed int `mapstructure:"missing_fear_greed" json:"missingFearGreed"`
	MissingSentiment int `mapstructure:"missing_sentiment" json:"missingSentiment"`
}

// Params holds every tunable of the scoring pipeline.
type Params struct {
	Weights             Weights          `mapstructure:"weights" json:"weights"`
	VolatilityTiers     []VolatilityTier `mapstructure:"volatility_tiers" json:"volatilityTiers"`
	WarnThreshold       int              `mapstructure:"warn_threshold" json:"warnThreshold"`
	BlockThreshold      int              `mapstructure:"block_threshold" json:"blockThreshold"`
	WarnCoolingSeconds  int              `mapstructure:"warn_cooling_seconds" json:"warnCoolingSeconds"`
	BlockCoolingSeconds int              `mapstructure:"block_cooling_seconds" json:"blockCoolingSeconds"`
	MaterialityPoints   float64          `mapstructure:"materiality_points" json:"materialityPoints"`
	Confidence          ConfidenceParams `mapstructure:"confidence" json:"confidence"`
}

// DefaultParams returns the shipped tuning.
func DefaultParams() Params {
	return Params{
		Weights: Weights{Volatility: 0.5, Alignment: 0.3, Extremity: 0.2},
		VolatilityTiers: []VolatilityTier{
			{MinAbsChange: 20, Score: 100},
			{MinAbsChange: 15, Score: 85},
			{MinAbsChange: 10, Score: 70},
			{MinAbsChange: 5, Score: 50},
			{MinAbsChange: 3, Score: 25},
		},
		WarnThreshold:       30,
		BlockThreshold:      60,
		WarnCoolingSeconds:  30,
		BlockCoolingSeconds: 300,
		MaterialityPoints:   5,
		Confidence: ConfidenceParams{
			Base:             100,
			MissingChange:    20,
			MissingFearGreed: 30,
			MissingSentiment: 30,
		},
	}
}

const weightTolerance = 1e-6

// Validate checks internal consistency. Tiers may be listed in any order.
func (p Params) Validate() error {
	w := p.Weights
	// Comparisons are negated so NaN fails them.
	if !(w.Volatility >= 0) || !(w.Alignment >= 0) || !(w.Extremity >= 0) {
		return errors.New("engine.weights cannot be negative")
	}
	if !(math.Abs(w.Sum()-1) <= weightTolerance) {
		return fmt.Errorf("engine.weights must sum to 1, got %.4f", w.Sum())
	}

	if len(p.VolatilityTiers) == 0 {
		return errors.New("engine.volatility_tiers must not be empty")
	}
	tiers := sortedTiers(p.VolatilityTiers)
	for i, tier := range tiers {
		if !(tier.MinAbsChange > 0) || math.IsInf(tier.MinAbsChange, 1) {
			return fmt.Errorf("engine.volatility_tiers[%d].min_abs_change must be positive and finite", i)
		}
		if !(tier.Score >= 0 && tier.Score <= 100) {
			return fmt.Errorf("engine.volatility_tiers[%d].score must be within [0, 100]", i)
		}
		if i > 0 {
			prev := tiers[i-1]
			if prev.MinAbsChange == tier.MinAbsChange {
				return fmt.Errorf("engine.volatility_tiers has duplicate threshold %.2f", tier.MinAbsChange)
			}
			if prev.Score < tier.Score {
				return errors.New("engine.volatility_tiers must not decrease as the change grows")
			}
		}
	}

	if p.WarnThreshold <= 0 || p.WarnThreshold >= 100 {
		return errors.New("engine.warn_threshold must be within (0, 100)")
	}
	if p.BlockThreshold <= 0 || p.BlockThreshold >= 100 {
		return errors.New("engine.block_threshold must be within (0, 100)")
	}
	if p.WarnThreshold >= p.BlockThreshold {
		return errors.New("engine.warn_threshold must be lower than engine.block_threshold")
	}
	if p.WarnCoolingSeconds <= 0 {
		return errors.New("engine.warn_cooling_seconds must be greater than zero")
	}
	if p.BlockCoolingSeconds < p.WarnCoolingSeconds {
		return errors.New("engine.block_cooling_seconds cannot be shorter than the warn cooldown")
	}
	if !(p.MaterialityPoints >= 0) || math.IsInf(p.MaterialityPoints, 1) {
		return errors.New("engine.materiality_points must be a finite non-negative number")
	}

	c := p.Confidence
	if c.Base <= 0 || c.Base > 100 {
		return errors.New("engine.confidence.base must be within (0, 100]")
	}
	if c.MissingChange < 0 || c.MissingFearGreed < 0 || c.MissingSentiment < 0 {
		return errors.New("engine.confidence penalties cannot be negative")
	}
	return nil
}

// sortedTiers returns a copy ordered by descending threshold.
func sortedTiers(tiers []VolatilityTier) []VolatilityTier {
	out := make([]VolatilityTier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinAbsChange > out[j].MinAbsChange
	})
	return out
}
