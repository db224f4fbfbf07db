package auth

import (
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	fallback := 42 * time.Second
	cases := map[string]time.Duration{
		"30s":   30 * time.Second,
		"15m":   15 * time.Minute,
		"2h":    2 * time.Hour,
		"7d":    7 * 24 * time.Hour,
		" 1d ":  24 * time.Hour,
		"":      fallback,
		"15":    fallback,
		"m":     fallback,
		"1w":    fallback,
		"1.5h":  fallback,
		"-5m":   fallback,
		"0s":    fallback,
		"10 m":  fallback,
		"15M":   fallback,
		"abc1m": fallback,
	}
	for input, want := range cases {
		if got := ParseDuration(input, fallback); got != want {
			t.Fatalf("ParseDuration(%q)=%v, want %v", input, got, want)
		}
	}
	if got := ParseDuration("99999999999999999999d", fallback); got != fallback {
		t.Fatalf("overflowing value should fall back, got %v", got)
	}
}
