package version

import (
	"strings"
	"testing"
)

func TestGetUsesLdflags(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version = "v1.2.3"
	Commit = "0123456789abcdef0123"

	info := Get()
	if info.Version != "v1.2.3" {
		t.Errorf("Version = %q, want v1.2.3", info.Version)
	}
	if info.Platform == "" || info.GoVersion == "" {
		t.Errorf("expected platform and go version, got %+v", info)
	}

	line := info.String()
	if !strings.Contains(line, "v1.2.3") || !strings.Contains(line, "commit 0123456789ab,") {
		t.Errorf("String() = %q", line)
	}
}
