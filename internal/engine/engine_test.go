package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultParams())
	require.NoError(t, err)
	return e
}

func intent(t *testing.T, direction string, snap MarketSnapshot) TradeIntent {
	t.Helper()
	in, err := NewTradeIntent("BTCUSDT", direction, snap)
	require.NoError(t, err)
	return in
}

func bullish(confidence float64) *Sentiment {
	return &Sentiment{Label: "BULLISH", ConfidencePercent: NumberOf(confidence)}
}

func bearish(confidence float64) *Sentiment {
	return &Sentiment{Label: "BEARISH", ConfidencePercent: NumberOf(confidence)}
}

func TestScenarioCalmMarketAllows(t *testing.T) {
	e := newTestEngine(t)
	d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
		Price:          NumberFrom("64000"),
		Change24h:      NumberFrom("1.4"),
		FearGreedIndex: NumberOf(51),
	}))

	assert.Equal(t, ActionAllow, d.Action)
	assert.Equal(t, 0, d.CoolingSeconds)
	assert.Equal(t, 0, d.ImpulseScore)
	assert.Equal(t, []string{StableReason}, d.Reasons)
	assert.Equal(t, 70, d.Confidence)
}

func TestScenarioGreedyVolatileLongWarns(t *testing.T) {
	e := newTestEngine(t)
	d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
		Change24h:      NumberFrom("8.5"),
		FearGreedIndex: NumberOf(83),
	}))

	assert.Contains(t, []Action{ActionWarn, ActionBlock}, d.Action)
	assert.Greater(t, d.CoolingSeconds, 0)
	assert.Equal(t, 38, d.ImpulseScore)
	require.Len(t, d.Reasons, 2)
	assert.Equal(t, "24h change of 8.5% indicates elevated volatility", d.Reasons[0])
	assert.Equal(t, "fear & greed index at 83 signals extreme greed", d.Reasons[1])
}

func TestScenarioPanicShortWarns(t *testing.T) {
	e := newTestEngine(t)
	d := e.Evaluate(intent(t, "SHORT", MarketSnapshot{
		Change24h:      NumberFrom("-11.2"),
		FearGreedIndex: NumberOf(16),
	}))

	assert.Contains(t, []Action{ActionWarn, ActionBlock}, d.Action)
	assert.Equal(t, 49, d.ImpulseScore)
	assert.Equal(t, "24h change of -11.2% indicates high volatility", d.Reasons[0])
}

func TestScenarioPriceOnlyLowersConfidence(t *testing.T) {
	e := newTestEngine(t)
	calm := e.Evaluate(intent(t, "LONG", MarketSnapshot{
		Change24h:      NumberFrom("1.4"),
		FearGreedIndex: NumberOf(51),
	}))
	bare := e.Evaluate(intent(t, "LONG", MarketSnapshot{Price: NumberFrom("64000")}))

	assert.Less(t, bare.Confidence, calm.Confidence)
	assert.Equal(t, 0, bare.ImpulseScore)
	assert.Equal(t, ActionAllow, bare.Action)
	assert.Equal(t, 20, bare.Confidence)
}

func TestScenarioMalformedChangeIsTreatedAsZero(t *testing.T) {
	e := newTestEngine(t)
	var d Decision
	require.NotPanics(t, func() {
		d = e.Evaluate(intent(t, "LONG", MarketSnapshot{
			Change24h:      NumberFrom("not-a-number"),
			FearGreedIndex: NumberOf(50),
		}))
	})
	assert.Equal(t, 0, d.ImpulseScore)
	assert.Equal(t, ActionAllow, d.Action)
}

func TestHerdSignalBlocks(t *testing.T) {
	e := newTestEngine(t)
	d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
		Change24h:      NumberFrom("25"),
		FearGreedIndex: NumberOf(95),
		Sentiment:      bullish(90),
	}))

	assert.Equal(t, ActionBlock, d.Action)
	assert.Equal(t, 95, d.ImpulseScore)
	assert.Equal(t, DefaultParams().BlockCoolingSeconds, d.CoolingSeconds)
	assert.Equal(t, 100, d.Confidence)
	require.Len(t, d.Reasons, 3)
	assert.Contains(t, d.Reasons[0], "volatility")
	assert.Contains(t, d.Reasons[1], "BULLISH sentiment at 90% confidence aligns with LONG")
	assert.Contains(t, d.Reasons[2], "extreme greed")
}

func TestAlignmentIsSymmetric(t *testing.T) {
	e := newTestEngine(t)
	long := e.Evaluate(intent(t, "LONG", MarketSnapshot{Sentiment: bullish(80)}))
	short := e.Evaluate(intent(t, "SHORT", MarketSnapshot{Sentiment: bearish(80)}))

	assert.Equal(t, long.ImpulseScore, short.ImpulseScore)
	assert.Equal(t, 24, short.ImpulseScore)
	assert.Equal(t, "BEARISH sentiment at 80% confidence aligns with SHORT entry (herd risk)", short.Reasons[0])
}

func TestContrarianTradesAreNotPenalised(t *testing.T) {
	e := newTestEngine(t)
	for _, tc := range []struct {
		direction string
		sentiment *Sentiment
	}{
		{"SHORT", bullish(95)},
		{"LONG", bearish(95)},
		{"LONG", &Sentiment{Label: "NEUTRAL", ConfidencePercent: NumberOf(99)}},
	} {
		d := e.Evaluate(intent(t, tc.direction, MarketSnapshot{Sentiment: tc.sentiment}))
		assert.Equal(t, 0, d.ImpulseScore, "%s with %s", tc.direction, tc.sentiment.Label)
	}
}

func TestDeterminism(t *testing.T) {
	e := newTestEngine(t)
	in := intent(t, "LONG", MarketSnapshot{
		Change24h:      NumberFrom("12.3"),
		FearGreedIndex: NumberOf(71),
		Sentiment:      bullish(64),
	})
	first := e.Evaluate(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, e.Evaluate(in))
	}
}

func TestImpulseScoreMonotonicInAbsoluteChange(t *testing.T) {
	e := newTestEngine(t)
	for _, sign := range []float64{1, -1} {
		prev := -1
		for step := 0; step <= 160; step++ {
			change := sign * float64(step) * 0.25
			d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
				Change24h:      NumberOf(change),
				FearGreedIndex: NumberOf(70),
				Sentiment:      bullish(40),
			}))
			require.GreaterOrEqual(t, d.ImpulseScore, prev, "change %.2f", change)
			prev = d.ImpulseScore
		}
	}
}

func TestBoundsWithAdversarialInputs(t *testing.T) {
	e := newTestEngine(t)
	raws := []string{"NaN", "Infinity", "-Inf", "1e400", "-1e400", "", "abc", "9999999", "-9999999", "0x10", "%", "1e10000000", "1e-10000000"}
	start := time.Now()
	for _, change := range raws {
		for _, fgi := range []string{"-5", "150", "NaN", "1e400", "50.5", "", "5e-10000000"} {
			for _, conf := range []string{"1e9", "-40", "NaN", "100", "1e-10000000"} {
				d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
					Change24h:      NumberFrom(change),
					FearGreedIndex: NumberFrom(fgi),
					Sentiment:      &Sentiment{Label: "bullish", ConfidencePercent: NumberFrom(conf)},
				}))
				label := fmt.Sprintf("change=%q fgi=%q conf=%q", change, fgi, conf)
				require.GreaterOrEqual(t, d.ImpulseScore, 0, label)
				require.LessOrEqual(t, d.ImpulseScore, 100, label)
				require.GreaterOrEqual(t, d.Confidence, 0, label)
				require.LessOrEqual(t, d.Confidence, 100, label)
				require.NotEmpty(t, d.Reasons, label)
			}
		}
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestActionCoolingCoupling(t *testing.T) {
	e := newTestEngine(t)
	p := e.Params()
	for change := -30.0; change <= 30; change += 2.5 {
		for fgi := 0; fgi <= 100; fgi += 10 {
			for _, s := range []*Sentiment{nil, bullish(100), bearish(60)} {
				d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
					Change24h:      NumberOf(change),
					FearGreedIndex: NumberOf(float64(fgi)),
					Sentiment:      s,
				}))
				assert.Equal(t, d.Action == ActionAllow, d.CoolingSeconds == 0)
				if d.Action == ActionBlock {
					assert.Equal(t, p.BlockCoolingSeconds, d.CoolingSeconds)
				}
				assert.NotEmpty(t, d.Reasons)
			}
		}
	}
}

func TestThresholdBoundaries(t *testing.T) {
	p := DefaultParams()
	action, cooling := classifyAction(p, p.WarnThreshold-1)
	assert.Equal(t, ActionAllow, action)
	assert.Zero(t, cooling)

	action, cooling = classifyAction(p, p.WarnThreshold)
	assert.Equal(t, ActionWarn, action)
	assert.Equal(t, p.WarnCoolingSeconds, cooling)

	action, cooling = classifyAction(p, p.BlockThreshold)
	assert.Equal(t, ActionBlock, action)
	assert.Equal(t, p.BlockCoolingSeconds, cooling)

	action, _ = classifyAction(p, 100)
	assert.Equal(t, ActionBlock, action)
}

func TestReasonTieKeepsFactorOrder(t *testing.T) {
	p := DefaultParams()
	p.Weights = Weights{Volatility: 0.4, Alignment: 0.4, Extremity: 0.2}
	e, err := New(p)
	require.NoError(t, err)

	d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
		Change24h: NumberOf(5),
		Sentiment: bullish(50),
	}))
	require.Len(t, d.Reasons, 2)
	assert.Contains(t, d.Reasons[0], "volatility")
	assert.Contains(t, d.Reasons[1], "herd risk")
}

func TestImmaterialFactorsAreNotReported(t *testing.T) {
	e := newTestEngine(t)
	// extremity 2*(62-50)=24, weighted 4.8 stays under the 5 point threshold
	d := e.Evaluate(intent(t, "LONG", MarketSnapshot{
		Change24h:      NumberOf(6),
		FearGreedIndex: NumberOf(62),
	}))
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "volatility")
}

func TestVolatilityContributionTiers(t *testing.T) {
	tiers := DefaultParams().VolatilityTiers
	cases := map[float64]float64{
		0: 0, 2.99: 0, 3: 25, -4.9: 25, 5: 50, 9.99: 50, 10: 70, -14: 70, 15: 85, 19.9: 85, 20: 100, -75: 100,
	}
	for change, want := range cases {
		assert.Equal(t, want, VolatilityContribution(tiers, change), "change %.2f", change)
	}
}

func TestSentimentExtremityIsSymmetric(t *testing.T) {
	assert.Zero(t, SentimentExtremityContribution(50))
	assert.Equal(t, 100.0, SentimentExtremityContribution(0))
	assert.Equal(t, 100.0, SentimentExtremityContribution(100))
	for d := 0; d <= 50; d++ {
		assert.Equal(t, SentimentExtremityContribution(50-d), SentimentExtremityContribution(50+d))
	}
	assert.Zero(t, SentimentExtremityContribution(101))
}

func TestNewTradeIntentValidation(t *testing.T) {
	cases := []struct {
		symbol, direction, code string
	}{
		{"", "LONG", CodeMissingSymbol},
		{"  ", "LONG", CodeMissingSymbol},
		{"BTCUSDT", "", CodeMissingDirection},
		{"BTCUSDT", "SIDEWAYS", CodeInvalidDirection},
	}
	for _, tc := range cases {
		_, err := NewTradeIntent(tc.symbol, tc.direction, MarketSnapshot{})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, tc.code, verr.Code)
	}

	in, err := NewTradeIntent("btc/usdt", "short", MarketSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", in.Symbol)
	assert.Equal(t, DirectionShort, in.Direction)
}

func TestParseOrDefault(t *testing.T) {
	v, ok := ParseOrDefault(" 8.5 ", 0)
	assert.True(t, ok)
	assert.Equal(t, 8.5, v)

	v, ok = ParseOrDefault("-3.25%", 0)
	assert.True(t, ok)
	assert.Equal(t, -3.25, v)

	v, ok = ParseOrDefault("0e-10000000", 7)
	assert.True(t, ok)
	assert.Zero(t, v)

	v, ok = ParseOrDefault("1.5e300", 0)
	assert.True(t, ok)
	assert.InEpsilon(t, 1.5e300, v, 1e-12)

	start := time.Now()
	for _, raw := range []string{
		"", "NaN", "Infinity", "1e400", "8,5", "abc",
		"1e10000000", "-1e10000000", "1e-10000000", "1e-400", "1e2147483647",
		strings.Repeat("9", 65),
	} {
		v, ok = ParseOrDefault(raw, 7)
		assert.False(t, ok, raw)
		assert.Equal(t, 7.0, v, raw)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "huge exponents must be rejected without converting")
}

func TestMarketSnapshotDecodesFlexibleNumbers(t *testing.T) {
	payload := `{
		"price": 64000.5,
		"change24h": "8.5",
		"fearGreedIndex": null,
		"sentiment": {"overallSentiment": "bullish", "confidencePercent": "85"}
	}`
	var snap MarketSnapshot
	require.NoError(t, json.Unmarshal([]byte(payload), &snap))

	price, ok := snap.Price.Float()
	assert.True(t, ok)
	assert.Equal(t, 64000.5, price)
	assert.Equal(t, 8.5, snap.Change24h.Or(0))
	assert.False(t, snap.FearGreedIndex.IsSet())

	label, conf, ok := snap.Sentiment.Resolve()
	assert.True(t, ok)
	assert.Equal(t, SentimentBullish, label)
	assert.Equal(t, 85.0, conf)
}

func TestMarketSnapshotToleratesWrongTypes(t *testing.T) {
	var snap MarketSnapshot
	require.NoError(t, json.Unmarshal([]byte(`{"change24h": true, "fearGreedIndex": {"v": 1}}`), &snap))
	assert.True(t, snap.Change24h.IsSet())
	_, ok := snap.Change24h.Float()
	assert.False(t, ok)
	_, ok = snap.FearGreed()
	assert.False(t, ok)
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	mutate := map[string]func(p *Params){
		"weights sum":          func(p *Params) { p.Weights.Volatility = 0.9 },
		"negative weight":      func(p *Params) { p.Weights = Weights{Volatility: 1.2, Alignment: -0.2} },
		"no tiers":             func(p *Params) { p.VolatilityTiers = nil },
		"decreasing tiers":     func(p *Params) { p.VolatilityTiers[0].Score = 10 },
		"duplicate tier":       func(p *Params) { p.VolatilityTiers[1].MinAbsChange = 20 },
		"thresholds order":     func(p *Params) { p.WarnThreshold = 70 },
		"threshold range":      func(p *Params) { p.BlockThreshold = 100 },
		"warn cooling":         func(p *Params) { p.WarnCoolingSeconds = 0 },
		"block cooling":        func(p *Params) { p.BlockCoolingSeconds = 10 },
		"confidence base":      func(p *Params) { p.Confidence.Base = 0 },
		"negative penalty":     func(p *Params) { p.Confidence.MissingSentiment = -1 },
		"negative materiality": func(p *Params) { p.MaterialityPoints = -1 },
		"NaN weight":           func(p *Params) { p.Weights.Volatility = math.NaN() },
		"NaN weights":          func(p *Params) { p.Weights = Weights{Volatility: math.NaN(), Alignment: math.NaN(), Extremity: math.NaN()} },
		"infinite weight":      func(p *Params) { p.Weights.Extremity = math.Inf(1) },
		"NaN tier threshold":   func(p *Params) { p.VolatilityTiers[2].MinAbsChange = math.NaN() },
		"infinite tier":        func(p *Params) { p.VolatilityTiers[0].MinAbsChange = math.Inf(1) },
		"NaN tier score":       func(p *Params) { p.VolatilityTiers[0].Score = math.NaN() },
		"NaN materiality":      func(p *Params) { p.MaterialityPoints = math.NaN() },
		"infinite materiality": func(p *Params) { p.MaterialityPoints = math.Inf(1) },
	}
	for name, fn := range mutate {
		p := DefaultParams()
		fn(&p)
		assert.Error(t, p.Validate(), name)
	}
}

func TestNewSortsTiers(t *testing.T) {
	p := DefaultParams()
	p.VolatilityTiers = []VolatilityTier{{3, 25}, {20, 100}, {10, 70}, {5, 50}, {15, 85}}
	e, err := New(p)
	require.NoError(t, err)
	tiers := e.Params().VolatilityTiers
	assert.Equal(t, 20.0, tiers[0].MinAbsChange)
	assert.Equal(t, 3.0, tiers[len(tiers)-1].MinAbsChange)
}
