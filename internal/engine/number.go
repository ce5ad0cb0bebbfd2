package engine

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Inputs are at most maxNumericLength characters, so the coefficient has at
// most that many digits and the exponent alone bounds the magnitude.
const (
	maxNumericLength = 64
	maxExponent      = 309
	minExponent      = -324 - maxNumericLength
)

// ParseOrDefault parses a decimal string and falls back to def when the value
// is empty, malformed, not finite or outside the float64 range. A trailing
// percent sign is tolerated.
func ParseOrDefault(raw string, def float64) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return def, false
	}
	if len(s) > maxNumericLength {
		return def, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return def, false
	}
	if d.IsZero() {
		return 0, true
	}
	// Converting costs time proportional to the exponent, so values far
	// outside the float64 range are rejected before conversion.
	if exp := d.Exponent(); exp > maxExponent || exp < minExponent {
		return def, false
	}
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) || f == 0 {
		return def, false
	}
	return f, true
}

// Number is a numeric field that never fails to decode. It accepts JSON
// numbers, numeric strings and null; anything else is kept verbatim and
// reads as absent.
type Number struct {
	raw     string
	present bool
}

// NumberFrom wraps a raw textual value.
func NumberFrom(raw string) Number {
	return Number{raw: strings.TrimSpace(raw), present: true}
}

// NumberOf wraps a float value.
func NumberOf(v float64) Number {
	return Number{raw: strconv.FormatFloat(v, 'f', -1, 64), present: true}
}

// IsSet reports whether the field was supplied at all, parsable or not.
func (n Number) IsSet() bool { return n.present }

// Raw returns the value as supplied.
func (n Number) Raw() string { return n.raw }

// Float returns the parsed value; ok is false when absent or malformed.
func (n Number) Float() (float64, bool) {
	if !n.present {
		return 0, false
	}
	return ParseOrDefault(n.raw, 0)
}

// Or returns the parsed value or def.
func (n Number) Or(def float64) float64 {
	if v, ok := n.Float(); ok {
		return v
	}
	return def
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	switch res.Type {
	case gjson.Null:
		*n = Number{}
	case gjson.Number:
		*n = Number{raw: res.Raw, present: true}
	case gjson.String:
		*n = Number{raw: strings.TrimSpace(res.Str), present: true}
	default:
		*n = Number{raw: strings.TrimSpace(res.Raw), present: true}
	}
	return nil
}

// MarshalJSON emits the raw value as a string, or null when absent.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.present {
		return []byte("null"), nil
	}
	return json.Marshal(n.raw)
}
