package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/config"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/logging"
	"github.com/GriffinCanCode/kioskhelper/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment
	port := flag.String("port", cfg.Server.Port, "HTTP port")
	driver := flag.String("driver", cfg.Platform.Driver, "Platform driver (bridge|memory)")
	bridgeURL := flag.String("bridge", cfg.Platform.BridgeURL, "Companion bridge base URL")
	profile := flag.String("profile", cfg.Kiosk.Profile, "Kiosk profile YAML")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Platform.Driver = *driver
	cfg.Platform.BridgeURL = *bridgeURL
	cfg.Kiosk.Profile = *profile
	cfg.Logging.Development = *dev
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
	logger.Info("Shut down cleanly")
}
