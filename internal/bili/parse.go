package bili

import (
	"strconv"
	"strings"
	"time"
)

// ParseCount converts a count the API hands back as free text. Plain
// integers and comma-separated integers parse directly; "3.5万" and "2亿"
// style locale suffixes multiply the prefix. Anything unparseable is 0 —
// a count never produces an error.
func ParseCount(s string) int64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if rest, ok := strings.CutSuffix(s, "万"); ok {
		if f, err := strconv.ParseFloat(rest, 64); err == nil {
			return int64(f * 10_000)
		}
		return 0
	}
	if rest, ok := strings.CutSuffix(s, "亿"); ok {
		if f, err := strconv.ParseFloat(rest, 64); err == nil {
			return int64(f * 100_000_000)
		}
		return 0
	}
	return 0
}

// WithinDays reports whether a unix publish timestamp falls within the
// last days calendar days. Zero timestamps are never within.
func WithinDays(pubTS int64, days int) bool {
	return WithinDaysAt(pubTS, days, time.Now())
}

// WithinDaysAt is WithinDays against an explicit clock.
// The comparison is day-granular: floor of the elapsed days, inclusive.
func WithinDaysAt(pubTS int64, days int, now time.Time) bool {
	if pubTS == 0 {
		return false
	}
	pub := time.Unix(pubTS, 0).UTC()
	elapsed := int(now.UTC().Sub(pub).Hours() / 24)
	return elapsed <= days
}
