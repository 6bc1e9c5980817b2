package version

import "testing"

func TestString(t *testing.T) {
	prev := [3]string{Version, GitSHA, BuildTime}
	t.Cleanup(func() { Version, GitSHA, BuildTime = prev[0], prev[1], prev[2] })

	if got, want := String("sfm"), "sfm version dev (unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	Version, GitSHA, BuildTime = "v0.3.0", "abc1234", "2026-01-02T03:04:05Z"
	if got, want := String("sfm"), "sfm version v0.3.0 (abc1234, built 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
