package engine

import "math"

// Factor names one input of the impulse score.
type Factor string

const (
	FactorVolatility Factor = "volatility"
	FactorAlignment  Factor = "sentiment_alignment"
	FactorExtremity  Factor = "sentiment_extremity"
)

// Contribution is one factor's share of the impulse score.
type Contribution struct {
	Factor   Factor  `json:"factor"`
	Raw      float64 `json:"raw"`
	Weighted float64 `json:"weighted"`
}

// Score combines the contributions into a 0-100 impulse score. The returned
// contributions keep the fixed factor order volatility, alignment, extremity.
func Score(w Weights, s Signals) (int, []Contribution) {
	contributions := []Contribution{
		{Factor: FactorVolatility, Raw: s.Volatility, Weighted: w.Volatility * s.Volatility},
		{Factor: FactorAlignment, Raw: s.Alignment, Weighted: w.Alignment * s.Alignment},
		{Factor: FactorExtremity, Raw: s.Extremity, Weighted: w.Extremity * s.Extremity},
	}

	total := 0.0
	for i := range contributions {
		if math.IsNaN(contributions[i].Weighted) || math.IsInf(contributions[i].Weighted, 0) {
			contributions[i].Weighted = 0
		}
		total += contributions[i].Weighted
	}
	return int(math.Round(clamp(total, 0, 100))), contributions
}
