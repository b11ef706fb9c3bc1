package config

import (
	"fmt"
	"os"
)

// Process exit codes of module binaries.
const (
	ExitFailure = 1
	// ExitUsage matches the code the flag package uses for bad arguments.
	ExitUsage = 2
)

// Exitf reports a failed run on stderr and exits with ExitFailure.
func Exitf(format string, args ...any) {
	exitf(ExitFailure, format, args...)
}

// UsageExitf reports invalid flags or environment and exits with ExitUsage.
func UsageExitf(format string, args ...any) {
	exitf(ExitUsage, format, args...)
}

func exitf(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "healthrecords: "+format+"\n", args...)
	os.Exit(code)
}
