// Package main runs health record maintenance tasks.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	entrypoint "github.com/louisbranch/healthrecords/internal/platform/cmd"
	"github.com/louisbranch/healthrecords/internal/platform/config"
	"github.com/louisbranch/healthrecords/internal/tools/maintenance"
)

func main() {
	log.SetPrefix("[MAINTENANCE] ")

	cfg, err := maintenance.ParseConfig(flag.CommandLine, os.Args[1:], nil)
	if err != nil {
		config.UsageExitf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMaintenance, func(ctx context.Context) error {
		return maintenance.Run(ctx, cfg, os.Stdout, os.Stderr)
	}); err != nil {
		config.Exitf("maintenance: %v", err)
	}
}
