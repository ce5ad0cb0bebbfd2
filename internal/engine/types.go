package engine

import (
	"fmt"
	"math"
	"strings"
)

// Direction is the side of the requested trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// ParseDirection normalises a client supplied direction.
func ParseDirection(raw string) (Direction, bool) {
	switch Direction(strings.ToUpper(strings.TrimSpace(raw))) {
	case DirectionLong:
		return DirectionLong, true
	case DirectionShort:
		return DirectionShort, true
	default:
		return "", false
	}
}

// Action is the verdict handed back to the client.
type Action string

const (
	ActionAllow Action = "ALLOW"
	ActionWarn  Action = "WARN"
	ActionBlock Action = "BLOCK"
)

// SentimentLabel is the overall social sentiment reported by the sentiment provider.
type SentimentLabel string

const (
	SentimentBullish SentimentLabel = "BULLISH"
	SentimentBearish SentimentLabel = "BEARISH"
	SentimentNeutral SentimentLabel = "NEUTRAL"
)

// ParseSentimentLabel normalises a sentiment label; unknown labels are rejected.
func ParseSentimentLabel(raw string) (SentimentLabel, bool) {
	switch SentimentLabel(strings.ToUpper(strings.TrimSpace(raw))) {
	case SentimentBullish:
		return SentimentBullish, true
	case SentimentBearish:
		return SentimentBearish, true
	case SentimentNeutral:
		return SentimentNeutral, true
	default:
		return "", false
	}
}

// Sentiment carries the social sentiment reading attached to a snapshot.
// OverallSentiment is accepted as an alias of Label because that is the key
// the sentiment provider emits.
type Sentiment struct {
	Label             string `json:"label,omitempty"`
	OverallSentiment  string `json:"overallSentiment,omitempty"`
	ConfidencePercent Number `json:"confidencePercent"`
}

// Resolve returns the usable label and confidence (clamped to [0, 100]).
// ok is false when the reading is missing, mislabelled or has no parsable confidence.
func (s *Sentiment) Resolve() (SentimentLabel, float64, bool) {
	if s == nil {
		return "", 0, false
	}
	raw := s.Label
	if strings.TrimSpace(raw) == "" {
		raw = s.OverallSentiment
	}
	label, ok := ParseSentimentLabel(raw)
	if !ok {
		return "", 0, false
	}
	confidence, ok := s.ConfidencePercent.Float()
	if !ok {
		return "", 0, false
	}
	return label, clamp(confidence, 0, 100), true
}

// MarketSnapshot is the market context supplied with a trade intent.
// Every field is optional and degrades to a zero contribution when absent or malformed.
type MarketSnapshot struct {
	Price          Number     `json:"price"`
	Change24h      Number     `json:"change24h"`
	FearGreedIndex Number     `json:"fearGreedIndex"`
	Sentiment      *Sentiment `json:"sentiment,omitempty"`
}

// FearGreed returns the index rounded to an integer when it is present and within [0, 100].
func (m MarketSnapshot) FearGreed() (int, bool) {
	v, ok := m.FearGreedIndex.Float()
	if !ok || v < 0 || v > 100 {
		return 0, false
	}
	return int(math.Round(v)), true
}

// TradeIntent is a validated request to evaluate a trade.
type TradeIntent struct {
	Symbol    string
	Direction Direction
	Snapshot  MarketSnapshot
}

// NewTradeIntent validates raw client fields and builds a TradeIntent.
func NewTradeIntent(symbol, direction string, snapshot MarketSnapshot) (TradeIntent, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return TradeIntent{}, &ValidationError{Code: CodeMissingSymbol, Field: "symbol", Message: "symbol is required"}
	}
	if strings.TrimSpace(direction) == "" {
		return TradeIntent{}, &ValidationError{Code: CodeMissingDirection, Field: "direction", Message: "direction is required"}
	}
	dir, ok := ParseDirection(direction)
	if !ok {
		return TradeIntent{}, &ValidationError{
			Code:    CodeInvalidDirection,
			Field:   "direction",
			Message: fmt.Sprintf("direction must be LONG or SHORT, got %q", direction),
		}
	}
	return TradeIntent{Symbol: sym, Direction: dir, Snapshot: snapshot}, nil
}

// NormalizeSymbol upper-cases the instrument and strips separators so that
// "btc/usdt", "BTC-USDT" and "BTCUSDT" refer to the same instrument.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(s)
}

// Decision is the immutable verdict for one trade intent.
type Decision struct {
	Action         Action   `json:"action"`
	ImpulseScore   int      `json:"impulseScore"`
	Confidence     int      `json:"confidence"`
	CoolingSeconds int      `json:"coolingSeconds"`
	Reasons        []string `json:"reasons"`
}

// Validation error codes surfaced at the API boundary.
const (
	CodeInvalidJSON       = "INVALID_JSON"
	CodeInvalidMarketData = "INVALID_MARKET_DATA"
	CodeMissingSymbol     = "MISSING_SYMBOL"
	CodeMissingDirection  = "MISSING_DIRECTION"
	CodeInvalidDirection  = "INVALID_DIRECTION"
)

// ValidationError reports a client-caused problem with a trade intent.
type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
