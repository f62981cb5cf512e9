package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatTime renders seconds as M:SS. Minutes are not padded and keep growing past 59.
// Negative input renders as 0:00.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || seconds < 0 {
		seconds = 0
	}
	minutes := int64(math.Floor(seconds / 60))
	secs := int64(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// ParseTimecode reads manual capture input as "MM:SS" or plain "SS".
// Only non-negative integers are accepted; seconds after a colon must be 0-59.
func ParseTimecode(text string) (float64, error) {
	text = strings.TrimSpace(text)

	minPart, secPart, hasColon := strings.Cut(text, ":")
	if !hasColon {
		secs, ok := parseUint(text)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimecode, text)
		}
		return float64(secs), nil
	}

	mins, ok := parseUint(minPart)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimecode, text)
	}
	secs, ok := parseUint(secPart)
	if !ok || len(secPart) > 2 || secs > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimecode, text)
	}
	return float64(mins*60 + secs), nil
}

func parseUint(s string) (int64, bool) {
	if s == "" || strings.ContainsAny(s, "+-") {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
