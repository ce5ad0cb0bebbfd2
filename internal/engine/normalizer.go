package engine

import "math"

// Signals is the normalized view of a trade intent. Contributions are on a
// 0-100 scale, each saying how strongly that factor alone argues for caution.
type Signals struct {
	Change24h    float64
	HasChange    bool
	FearGreed    int
	HasFearGreed bool

	SentimentLabel      SentimentLabel
	SentimentConfidence float64
	HasSentiment        bool

	Volatility float64
	Extremity  float64
	Alignment  float64

	Confidence int
}

// Normalize converts the raw snapshot fields into bounded contributions.
// Missing or malformed inputs contribute 0 and lower the confidence.
func Normalize(p Params, intent TradeIntent) Signals {
	snap := intent.Snapshot

	var s Signals
	s.Change24h, s.HasChange = snap.Change24h.Float()
	s.FearGreed, s.HasFearGreed = snap.FearGreed()
	s.SentimentLabel, s.SentimentConfidence, s.HasSentiment = snap.Sentiment.Resolve()

	s.Volatility = VolatilityContribution(p.VolatilityTiers, s.Change24h)
	if s.HasFearGreed {
		s.Extremity = SentimentExtremityContribution(s.FearGreed)
	}
	if s.HasSentiment {
		s.Alignment = SentimentAlignmentContribution(s.SentimentLabel, s.SentimentConfidence, intent.Direction)
	}
	s.Confidence = Confidence(p.Confidence, s.HasChange, s.HasFearGreed, s.HasSentiment)
	return s
}

// VolatilityContribution is a step function on |change24h|: the highest tier
// whose threshold is reached wins, below every tier the contribution is 0.
// Pumps and dumps are treated alike.
func VolatilityContribution(tiers []VolatilityTier, change24h float64) float64 {
	if math.IsNaN(change24h) {
		return 0
	}
	abs := math.Abs(change24h)
	best := 0.0
	for _, tier := range tiers {
		if abs >= tier.MinAbsChange && tier.Score > best {
			best = tier.Score
		}
	}
	return clamp(best, 0, 100)
}

// SentimentExtremityContribution is U-shaped around the neutral midpoint 50:
// 0 at 50, 100 at either extreme.
func SentimentExtremityContribution(fearGreedIndex int) float64 {
	if fearGreedIndex < 0 || fearGreedIndex > 100 {
		return 0
	}
	return clamp(2*math.Abs(float64(fearGreedIndex)-50), 0, 100)
}

// SentimentAlignmentContribution penalises following the crowd: bullish
// sentiment with a LONG or bearish sentiment with a SHORT contributes the
// sentiment confidence. Neutral or contrarian trades contribute 0.
func SentimentAlignmentContribution(label SentimentLabel, confidencePercent float64, direction Direction) float64 {
	if math.IsNaN(confidencePercent) {
		return 0
	}
	aligned := (label == SentimentBullish && direction == DirectionLong) ||
		(label == SentimentBearish && direction == DirectionShort)
	if !aligned {
		return 0
	}
	return clamp(confidencePercent, 0, 100)
}

// Confidence starts at the base value and drops for every absent input.
func Confidence(p ConfidenceParams, hasChange, hasFearGreed, hasSentiment bool) int {
	c := p.Base
	if !hasChange {
		c -= p.MissingChange
	}
	if !hasFearGreed {
		c -= p.MissingFearGreed
	}
	if !hasSentiment {
		c -= p.MissingSentiment
	}
	return int(clamp(float64(c), 0, 100))
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
