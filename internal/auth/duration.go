package auth

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseDuration reads the compact "<n><unit>" form used by token expiry settings,
// where unit is one of s, m, h or d. Anything else yields fallback.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return fallback
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	var unit time.Duration
	switch m[2] {
	case "s":
		unit = time.Second
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if n > int64(1<<63-1)/int64(unit) {
		return fallback
	}
	return time.Duration(n) * unit
}
