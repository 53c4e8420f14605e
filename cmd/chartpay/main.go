package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/chartpay/pkg/apperrors"
	"github.com/platinummonkey/chartpay/pkg/cli"
	"github.com/platinummonkey/chartpay/pkg/config"
	"github.com/platinummonkey/chartpay/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session logs are diagnostics here, not output.
	level := cfg.Observability.LogLevel
	if os.Getenv("CHARTPAY_LOG_LEVEL") == "" {
		level = observability.WarnLevel
	}
	app := &cli.App{
		Config: cfg,
		Out:    os.Stdout,
		Logger: observability.NewLogger(level, os.Stderr),
	}
	if err := cli.NewRootCommand().Execute(ctx, app, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes a quota rejection and an auth failure from other
// errors for scripts.
func exitCode(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeQuotaExceeded:
		return 2
	case apperrors.CodeUnauthorized:
		return 3
	default:
		return 1
	}
}
