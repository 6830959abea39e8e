package cmd

import (
	"strings"
	"testing"
)

func TestVersionCmd_PrintsVersion(t *testing.T) {
	out := captureStdout(t, func() {
		versionCmd.Run(versionCmd, nil)
	})
	if !strings.Contains(out, Version) {
		t.Errorf("expected output to contain version %q, got %q", Version, out)
	}
}
