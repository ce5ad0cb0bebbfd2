package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// StableReason is emitted when no factor is material.
const StableReason = "market conditions appear stable"

// Classify maps an impulse score to an action and cooldown and explains it.
//
// Each call is independent. Enforcing the cooldown across a session is the
// client's job; the engine cannot stop a client that ignores it.
func Classify(p Params, score int, contributions []Contribution, s Signals) Decision {
	action, cooling := classifyAction(p, score)
	return Decision{
		Action:         action,
		ImpulseScore:   score,
		Confidence:     s.Confidence,
		CoolingSeconds: cooling,
		Reasons:        buildReasons(p.MaterialityPoints, contributions, s),
	}
}

func classifyAction(p Params, score int) (Action, int) {
	switch {
	case score >= p.BlockThreshold:
		return ActionBlock, p.BlockCoolingSeconds
	case score >= p.WarnThreshold:
		return ActionWarn, p.WarnCoolingSeconds
	default:
		return ActionAllow, 0
	}
}

// buildReasons lists material factors strongest first; equal contributions
// keep the factor order of Score.
func buildReasons(materiality float64, contributions []Contribution, s Signals) []string {
	material := make([]Contribution, 0, len(contributions))
	for _, c := range contributions {
		if c.Weighted > 0 && c.Weighted >= materiality {
			material = append(material, c)
		}
	}
	if len(material) == 0 {
		return []string{StableReason}
	}

	sort.SliceStable(material, func(i, j int) bool {
		return material[i].Weighted > material[j].Weighted
	})

	reasons := make([]string, 0, len(material))
	for _, c := range material {
		reasons = append(reasons, describe(c, s))
	}
	return reasons
}

func describe(c Contribution, s Signals) string {
	switch c.Factor {
	case FactorVolatility:
		change := decimal.NewFromFloat(s.Change24h).Round(2).String()
		return fmt.Sprintf("24h change of %s%% indicates %s volatility", change, volatilityWord(c.Raw))
	case FactorAlignment:
		return fmt.Sprintf("%s sentiment at %.0f%% confidence aligns with %s entry (herd risk)",
			s.SentimentLabel, s.SentimentConfidence, alignedDirection(s.SentimentLabel))
	case FactorExtremity:
		return fmt.Sprintf("fear & greed index at %d signals %s", s.FearGreed, fearGreedWord(s.FearGreed))
	default:
		return string(c.Factor)
	}
}

func volatilityWord(raw float64) string {
	switch {
	case raw >= 100:
		return "extreme"
	case raw >= 85:
		return "very high"
	case raw >= 70:
		return "high"
	case raw >= 50:
		return "elevated"
	default:
		return "mild"
	}
}

func fearGreedWord(index int) string {
	switch {
	case index >= 75:
		return "extreme greed"
	case index > 55:
		return "greed"
	case index <= 25:
		return "extreme fear"
	case index < 45:
		return "fear"
	default:
		return "neutral sentiment"
	}
}

func alignedDirection(label SentimentLabel) Direction {
	if label == SentimentBearish {
		return DirectionShort
	}
	return DirectionLong
}
