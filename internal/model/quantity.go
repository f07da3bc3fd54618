package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultQuantity is used when a quantity is absent or unparseable.
const DefaultQuantity = 1

// ParseQuantity converts user input to a quantity. Anything that is not an
// integer (after trimming) yields DefaultQuantity; it never fails.
func ParseQuantity(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultQuantity
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return clampInt(math.Trunc(f))
	}
	return DefaultQuantity
}

// CoerceQuantity converts a decoded JSON value to a quantity using the same
// tolerant rules as ParseQuantity.
func CoerceQuantity(v any) int {
	switch q := v.(type) {
	case nil:
		return DefaultQuantity
	case float64:
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return DefaultQuantity
		}
		return clampInt(math.Trunc(q))
	case json.Number:
		return ParseQuantity(q.String())
	case string:
		return ParseQuantity(q)
	case int:
		return q
	case int64:
		return clampInt(float64(q))
	default:
		return DefaultQuantity
	}
}

// FloorQuantity clamps negative quantities to zero.
func FloorQuantity(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampInt(f float64) int {
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}
