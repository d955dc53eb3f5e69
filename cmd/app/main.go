package main

import (
	"CasinoApi/internal/app"
	"CasinoApi/internal/config"
	"CasinoApi/pkg/logger"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogFile); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	app.Start(cfg)
}
