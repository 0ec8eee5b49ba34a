package version

import (
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	tests := []struct {
		name     string
		revision string
		dirty    bool
		want     string
	}{
		{"empty", "", true, ""},
		{"long hash", "0123456789abcdef", false, "0123456"},
		{"short hash", "abc", false, "abc"},
		{"dirty", "0123456789abcdef", true, "0123456-dirty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shortCommit(tt.revision, tt.dirty); got != tt.want {
				t.Errorf("shortCommit() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" || info.Commit == "" {
		t.Errorf("Get() = %+v, want version and commit populated", info)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if !strings.Contains(info.String(), info.Version) {
		t.Errorf("String() = %q, want it to contain %q", info.String(), info.Version)
	}
	if !strings.Contains(Full(), Commit) {
		t.Errorf("Full() = %q, want it to contain %q", Full(), Commit)
	}
}
