// SuiGuard - risk analysis API and DeFi protocol monitor for Sui
package main

import (
	"context"
	"os"
	"time"

	"github.com/suiguard/suiguard/internal/config"
	"github.com/suiguard/suiguard/internal/logging"
	"github.com/suiguard/suiguard/internal/server"
	"github.com/suiguard/suiguard/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	bootLogger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting suiguard",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"sui_rpc", cfg.SuiRPCURL,
		"ml_enabled", cfg.MLEnabled,
		"monitor_enabled", cfg.MonitorEnabled,
	)

	ctx := context.Background()

	shutdownTracing, err := traces.Init(ctx, cfg.OTLPEndpoint, "suiguard", logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	runErr := srv.Run(ctx)

	if shutdownTracing != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace flush failed", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		logger.Error("server error", "error", runErr)
		os.Exit(1)
	}
}
