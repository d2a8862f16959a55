package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/devicesim"
)

func main() {
	logger := log.New(os.Stdout, "locker-sim ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	sim := cfg.Simulator
	if sim.BaseURL == "" || sim.DeviceID == "" || sim.APIKey == "" || len(sim.CabinetIDs) == 0 {
		logger.Fatalf("simulator.base_url, device_id, api_key and cabinet_ids must be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	devicesim.NewService(sim, nil).Run(ctx)
	logger.Println("Simulator stopped")
}
