package platform

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// iso8601Duration matches the subset of ISO 8601 durations the platform
// emits for videos (no years/months; hours, minutes, seconds only).
var iso8601Duration = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseDuration converts a platform duration string like "PT1H2M30S" into
// whole seconds. "P0D" (live or zero-length content) parses to 0.
func ParseDuration(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	if s == "P0D" {
		return 0, nil
	}

	m := iso8601Duration.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("unrecognized duration format: %q", s)
	}

	total := 0
	for i, mult := range []int{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration component %q: %w", m[i+1], err)
		}
		total += n * mult
	}
	return total, nil
}

// parseTimestamp parses the RFC 3339 timestamps the API returns.
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
