package version

import "testing"

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestBuildInfo(t *testing.T) {
	if BuildTime == "" || GitCommit == "" {
		t.Error("build metadata should default to 'unknown', not empty")
	}
}
