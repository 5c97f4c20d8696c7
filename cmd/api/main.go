package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/azniosman/vms/internal/infra/app"
	"github.com/azniosman/vms/internal/infra/config"
)

func main() {
	if err := run(); err != nil {
		log.Printf("vms-security: %v", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	security, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	return security.Run(ctx)
}
