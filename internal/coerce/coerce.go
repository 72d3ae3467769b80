// Package coerce turns loosely typed upstream trade fields into numbers,
// sides and timestamps. Nothing here returns an error: malformed input is
// replaced by a safe default and the result records that it was.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// millisThreshold separates epoch seconds from epoch milliseconds.
const millisThreshold = 1_000_000_000_000

// maxEpochSeconds is 9999-12-31T23:59:59Z.
const maxEpochSeconds = 253402300799

// Number is a parsed numeric field. Defaulted is set when the raw value could
// not be read as a finite number and Value holds the substitute.
type Number struct {
	Value     float64
	Defaulted bool
}

// Float reads raw as a finite float64, falling back to zero.
func Float(raw any) Number {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return Number{Defaulted: true}
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return Number{Defaulted: true}
		}
		f = parsed
	default:
		return Number{Defaulted: true}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{Defaulted: true}
	}
	return Number{Value: f}
}

// Size reads a trade size; negative sizes become zero.
func Size(raw any) Number {
	n := Float(raw)
	if n.Value < 0 {
		n.Value = 0
	}
	return n
}

// Price reads an outcome price clamped to [0, 1].
func Price(raw any) Number {
	n := Float(raw)
	n.Value = math.Max(0, math.Min(1, n.Value))
	return n
}

// Side normalizes a trade side to upper case.
func Side(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Timestamp converts epoch seconds or milliseconds (detected by magnitude)
// to an ISO-8601 UTC string. Missing or invalid input yields "".
func Timestamp(raw any) string {
	n := Float(raw)
	if n.Defaulted {
		return ""
	}
	ts := n.Value
	if ts > millisThreshold {
		ts /= 1000
	}
	if ts < 0 || ts > maxEpochSeconds {
		return ""
	}
	sec, frac := math.Modf(ts)
	t := time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
	return t.Format(time.RFC3339Nano)
}

// String renders a loosely typed field for display, "" for nil.
func String(raw any) string {
	if raw == nil {
		return ""
	}
	return fmt.Sprint(raw)
}
