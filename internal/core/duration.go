package core

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseDuration parses a single-unit duration such as "30s", "5m", "2h" or "1d".
func ParseDuration(s string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q: expected <digits><d|h|m|s>", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	var unit time.Duration
	switch m[2] {
	case "d":
		unit = 24 * time.Hour
	case "h":
		unit = time.Hour
	case "m":
		unit = time.Minute
	default:
		unit = time.Second
	}
	if n > int64(1<<63-1)/int64(unit) {
		return 0, fmt.Errorf("invalid duration %q: out of range", s)
	}
	return time.Duration(n) * unit, nil
}

// FormatDuration renders d in the largest unit that divides it exactly.
// Sub-second remainders are truncated.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case secs == 0:
		return "0s"
	case secs%86400 == 0:
		return strconv.FormatInt(secs/86400, 10) + "d"
	case secs%3600 == 0:
		return strconv.FormatInt(secs/3600, 10) + "h"
	case secs%60 == 0:
		return strconv.FormatInt(secs/60, 10) + "m"
	default:
		return strconv.FormatInt(secs, 10) + "s"
	}
}
