package version

import "testing"

func TestString(t *testing.T) {
	origV, origSHA, origTime := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = origV, origSHA, origTime }()

	Version, GitSHA, BuildTime = "1.2.3", "abc123", "2026-01-01T00:00:00Z"
	want := "rangescan 1.2.3 (git abc123, built 2026-01-01T00:00:00Z)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := Get(); got.Version != "1.2.3" || got.GitSHA != "abc123" {
		t.Errorf("Get() = %+v", got)
	}
}
