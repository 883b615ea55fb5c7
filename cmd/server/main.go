// Package main implements the entry point of the measure hub, which turns
// evaluate-measure messages received through a Beam proxy into FHIR tasks,
// evaluates them against a FHIR data store and answers the requesting site.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/measure-hub/internal/config"
	"github.com/phrazzld/measure-hub/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("measure-hub: %v", err)
		os.Exit(1)
	}
}

// run loads configuration, wires the application and serves until ctx is
// cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"beam_app_id", cfg.Beam.AppID,
		"auto_start", cfg.Pipelines.AutoStart)
	if cfg.Pipelines.WatermarkDB != "" {
		l.Debug("durable watermark configured", "path_present", true)
	}

	app, err := newApplication(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.cleanup()

	return app.serve(ctx)
}
