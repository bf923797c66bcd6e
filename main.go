package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"tradePilot/config"
	"tradePilot/internal/adapters/logger"
	"tradePilot/internal/app"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Wire calendar, risk, venue, audit store, notifiers, strategy,
	// pipeline, orchestrator and the HTTP API
	svc, err := app.NewService(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing audit store")
		}
	}()

	// 4. Run until SIGINT/SIGTERM
	if err := svc.Run(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading service exited with error")
		log.Printf("Trading service exited with error: %v", err)
		return
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
