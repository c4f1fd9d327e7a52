// Command relayd runs the chat relay server: config load, Service
// construction, and signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/configwatch"
	"github.com/nextlevelbuilder/chatrelay/internal/relay"
	"github.com/nextlevelbuilder/chatrelay/internal/relayerr"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the relay's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		var cerr *relayerr.ConfigError
		if ok := asConfigError(err, &cerr); ok {
			for _, e := range cerr.Errors {
				fmt.Fprintln(os.Stderr, "config error:", e)
			}
		} else {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := slog.New(logHandler(cfg.Server.LogFormat, &slog.HandlerOptions{
		Level: logLevel(cfg.Server.LogLevel),
	}))

	svc, err := relay.New(cfg, *configPath, logger)
	if err != nil {
		logger.Error("failed to build relay service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configwatch.Watch(ctx, *configPath, logger)

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start relay service", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx := context.Background()
	if err := svc.Stop(stopCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}
}

func asConfigError(err error, target **relayerr.ConfigError) bool {
	cerr, ok := err.(*relayerr.ConfigError)
	if ok {
		*target = cerr
	}
	return ok
}

// logHandler picks the slog handler SPEC_FULL.md's server.log_format
// names: "text" for local/dev readability, anything else (including
// "json" and an unset field) for machine-parseable production logs.
func logHandler(format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
