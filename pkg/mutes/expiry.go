package mutes

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrExpiryTooFar is returned for durations that do not fit in a
// time.Duration.
var ErrExpiryTooFar = errors.New("expiry too far in the future")

var expiryLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseExpiry turns user input into an absolute expiry. It accepts a
// duration such as "90m", "2h30m", "3d" or "1w2d", or a UTC date such as
// "2026-01-02 15:04". A date in the past is mirrored into the future by the
// same distance.
func ParseExpiry(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("no expiry given")
	}

	d, err := parseDuration(s)
	if errors.Is(err, ErrExpiryTooFar) {
		return time.Time{}, fmt.Errorf("%q: %w", s, err)
	}
	if err == nil {
		if d <= 0 {
			return time.Time{}, fmt.Errorf("duration %q must be positive", s)
		}
		return now.Add(d).UTC(), nil
	}

	for _, layout := range expiryLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err != nil {
			continue
		}
		if t.Before(now) {
			t = now.Add(now.Sub(t))
		}
		if !t.After(now) {
			return time.Time{}, fmt.Errorf("expiry %q is not in the future", s)
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("failed to parse expiry from %q", s)
}

// parseDuration extends time.ParseDuration with days (d) and weeks (w).
func parseDuration(s string) (time.Duration, error) {
	var total time.Duration
	var rest strings.Builder
	for i := 0; i < len(s); {
		j := i
		for j < len(s) && (s[j] == '.' || unicode.IsDigit(rune(s[j]))) {
			j++
		}
		if j == i {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		k := j
		for k < len(s) && unicode.IsLetter(rune(s[k])) {
			k++
		}
		num, unit := s[i:j], s[j:k]
		switch unit {
		case "d", "w":
			n, err := strconv.ParseInt(num, 10, 64)
			if errors.Is(err, strconv.ErrRange) {
				return 0, ErrExpiryTooFar
			}
			if err != nil {
				return 0, fmt.Errorf("invalid day value: %s", num)
			}
			day := 24 * time.Hour
			if unit == "w" {
				day *= 7
			}
			if n > math.MaxInt64/int64(day) {
				return 0, ErrExpiryTooFar
			}
			if total, err = addDuration(total, time.Duration(n)*day); err != nil {
				return 0, err
			}
		case "":
			return 0, fmt.Errorf("missing unit in %q", s)
		default:
			rest.WriteString(s[i:k])
		}
		i = k
	}
	if rest.Len() > 0 {
		d, err := time.ParseDuration(rest.String())
		if err != nil {
			return 0, err
		}
		if total, err = addDuration(total, d); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// addDuration adds two non-negative durations, failing on overflow.
func addDuration(a, b time.Duration) (time.Duration, error) {
	if b > math.MaxInt64-a {
		return 0, ErrExpiryTooFar
	}
	return a + b, nil
}
