package instance

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Universal rule literals accepted by every instance type.
const (
	RuleEnabled  = "enabled"
	RuleDisabled = "disabled"
)

// UniversalLiteral reports whether v is "enabled" or "disabled" in any case
// and returns the lower-case form.
func UniversalLiteral(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case RuleEnabled:
		return RuleEnabled, true
	case RuleDisabled:
		return RuleDisabled, true
	}
	return "", false
}

// isRule compares a rule value against a literal without risking a panic
// on uncomparable dynamic types.
func isRule(v any, literal string) bool {
	s, ok := v.(string)
	return ok && s == literal
}

// IsUsable reports whether v is a concrete rule rather than a universal
// literal or nothing at all.
func IsUsable(v any) bool {
	if v == nil {
		return false
	}
	_, literal := UniversalLiteral(v)
	return !literal
}

// FloatRule coerces v to a finite float64. Booleans are never numbers.
func FloatRule(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case bool:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IntRule coerces v to an int. Floats must be integral; "50" and 50.0 are
// accepted, 50.5 and true are not.
func IntRule(v any) (int, bool) {
	f, ok := FloatRule(v)
	if !ok || f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}
