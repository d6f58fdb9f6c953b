package version

import (
	"regexp"
	"testing"
)

var semver = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

func TestCurrent(t *testing.T) {
	t.Parallel()

	if !semver.MatchString(Current) {
		t.Fatalf("Current=%q must match <major>.<minor>.<patch>", Current)
	}
}

func TestSemverPattern(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in   string
		want bool
	}{
		{"0.1.0", true},
		{"12.0.3", true},
		{"v0.1.0", false},
		{"0.1", false},
		{"0.1.0-rc1", false},
	} {
		if got := semver.MatchString(tt.in); got != tt.want {
			t.Errorf("%q: got %v want %v", tt.in, got, tt.want)
		}
	}
}
