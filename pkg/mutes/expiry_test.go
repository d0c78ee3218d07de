package mutes

import (
	"errors"
	"testing"
	"time"
)

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"90m", now.Add(90 * time.Minute)},
		{"2h30m", now.Add(150 * time.Minute)},
		{"3d", now.Add(72 * time.Hour)},
		{"1w2d", now.Add(9 * 24 * time.Hour)},
		{"1d12h", now.Add(36 * time.Hour)},
		{" 45s ", now.Add(45 * time.Second)},
		{"2026-03-11 08:30", time.Date(2026, 3, 11, 8, 30, 0, 0, time.UTC)},
		{"2026-03-12", time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		{"2026-03-11T13:00:00+01:00", now.Add(24 * time.Hour)},
		// A date in the past is mirrored into the future.
		{"2026-03-09 12:00", now.Add(24 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseExpiry(tt.in, now)
			if err != nil {
				t.Fatalf("ParseExpiry(%q): %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseExpiry(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseExpiryInvalid(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for _, in := range []string{"", "soon", "0m", "-5m", "12", "1.5d", "2026-03-10 12:00", "3 days"} {
		if got, err := ParseExpiry(in, now); err == nil {
			t.Errorf("ParseExpiry(%q) = %v, want error", in, got)
		}
	}
}

func TestParseExpiryTooFar(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"100000000000w",
		"30500w",
		"106752d",
		"99999999999999999999d",
		"106751d1000h",
		"15250w1w",
	} {
		t.Run(in, func(t *testing.T) {
			got, err := ParseExpiry(in, now)
			if !errors.Is(err, ErrExpiryTooFar) {
				t.Errorf("ParseExpiry(%q) = %v, %v; want ErrExpiryTooFar", in, got, err)
			}
		})
	}

	// The largest whole number of days that fits is still accepted.
	got, err := ParseExpiry("106751d", now)
	if err != nil {
		t.Fatalf("ParseExpiry(106751d): %v", err)
	}
	if want := now.Add(106751 * 24 * time.Hour); !got.Equal(want) {
		t.Errorf("ParseExpiry(106751d) = %v, want %v", got, want)
	}
}
