package config_test

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/louisbranch/healthrecords/internal/platform/config"
)

const exitModeEnv = "HEALTHRECORDS_TEST_EXIT_MODE"

// TestExitCodes runs each exit helper in a subprocess since os.Exit cannot be
// intercepted in-process.
func TestExitCodes(t *testing.T) {
	switch os.Getenv(exitModeEnv) {
	case "failure":
		config.Exitf("retention sweep failed: %s", "disk full")
		return
	case "usage":
		config.UsageExitf("invalid flag: %s", "-retention-days")
		return
	}

	tests := []struct {
		mode     string
		wantCode int
		wantOut  string
	}{
		{mode: "failure", wantCode: config.ExitFailure, wantOut: "healthrecords: retention sweep failed: disk full"},
		{mode: "usage", wantCode: config.ExitUsage, wantOut: "healthrecords: invalid flag: -retention-days"},
	}
	for _, tc := range tests {
		t.Run(tc.mode, func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^TestExitCodes$")
			cmd.Env = append(os.Environ(), exitModeEnv+"="+tc.mode)

			out, err := cmd.CombinedOutput()
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				t.Fatalf("err = %T %v, want *exec.ExitError", err, err)
			}
			if exitErr.ExitCode() != tc.wantCode {
				t.Fatalf("exit code = %d, want %d", exitErr.ExitCode(), tc.wantCode)
			}
			if !strings.Contains(string(out), tc.wantOut) {
				t.Fatalf("output = %q, want containing %q", string(out), tc.wantOut)
			}
		})
	}
}
