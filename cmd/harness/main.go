package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	harness "github.com/litesql/ha-harness"
)

func main() {
	cfg := harness.NewConfig()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	level, _ := cfg.Level()
	slog.SetLogLoggerLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := harness.Run(ctx, cfg, os.Stdout); err != nil {
		slog.Error("harness stopped", "error", err)
		stop()
		os.Exit(1)
	}
}
