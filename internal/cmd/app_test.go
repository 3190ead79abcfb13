package cmd

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/release"
	"github.com/fclairamb/releasekit/internal/versioning"
)

func TestParseFileTargets(t *testing.T) {
	t.Parallel()

	got := parseFileTargets([]string{"package.json", " Chart.yaml:appVersion ", ""})
	want := []release.FileTarget{
		{Path: "package.json"},
		{Path: "Chart.yaml", Key: "appVersion"},
	}
	if !slices.EqualFunc(got, want, func(a, b release.FileTarget) bool {
		return a.Path == b.Path && a.Key == b.Key
	}) {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestParseBump(t *testing.T) {
	t.Parallel()

	bump, err := parseBump("")
	if err != nil || bump != nil {
		t.Errorf("empty bump should be nil, got %v, %v", bump, err)
	}

	bump, err = parseBump("minor")
	if err != nil || bump == nil || *bump != versioning.SeverityMinor {
		t.Errorf("expected minor, got %v, %v", bump, err)
	}

	if _, err := parseBump("huge"); !errors.Is(err, apperrors.ErrInvalidBump) {
		t.Errorf("expected ErrInvalidBump, got %v", err)
	}
}

func TestParseLogFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		want  LogFormat
		valid bool
	}{
		{"", LogFormatText, true},
		{"TEXT", LogFormatText, true},
		{"json", LogFormatJSON, true},
		{"xml", LogFormatText, false},
	}
	for _, tt := range tests {
		got, valid := parseLogFormat(tt.in)
		if got != tt.want || valid != tt.valid {
			t.Errorf("parseLogFormat(%q) = %v, %v", tt.in, got, valid)
		}
	}
}

func TestFormatTimeSince(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{90 * time.Second, "1 minute ago"},
		{3 * time.Hour, "3 hours ago"},
		{2 * hoursPerDay * time.Hour, "2 days ago"},
		{10 * hoursPerDay * time.Hour, "1 week ago"},
		{65 * hoursPerDay * time.Hour, "2 months ago"},
	}
	for _, tt := range tests {
		if got := formatTimeSince(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("formatTimeSince(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if got := formatTimeSince(time.Time{}); got != "never" {
		t.Errorf("zero time = %q", got)
	}
}
