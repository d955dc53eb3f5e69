package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"CasinoApi/internal/config"
	"CasinoApi/internal/middleware"
	"CasinoApi/internal/models"
	"CasinoApi/internal/service"
	"CasinoApi/pkg/logger"
	"CasinoApi/pkg/store"
)

const apiPrefix = "api/"

// Start assembles the services, wires the routes and runs the server until
// SIGINT/SIGTERM, then drains the write-back store before exiting.
func Start(cfg config.Config) {
	gin.DisableConsoleColor()

	accounts, err := store.Open(cfg.UsersFile)
	if err != nil {
		logger.Fatal("Failed to open account store: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.BetHistoryDB), 0755); err != nil {
		logger.Fatal("Failed to create data directory: %v", err)
	}
	history, err := models.OpenBetHistory(cfg.BetHistoryDB)
	if err != nil {
		logger.Fatal("Failed to open bet history store: %v", err)
	}

	hub := service.NewHub()
	registry := service.NewSessionRegistry()
	ledger := service.NewCreditLedger(accounts)
	timers := service.WallTimers{}

	roulette := service.NewRouletteService(hub, ledger, timers, history)
	coinflip := service.NewCoinflipService(hub, ledger, history)
	crash := service.NewCrashService(hub, ledger, registry, timers, history)
	casino := service.NewCasino(hub, registry, ledger, accounts, roulette, coinflip, crash)
	users := service.NewUserService(accounts, history, cfg.JWTKey, cfg.InitialCredit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Round schedulers run independently of any connection.
	go roulette.Run(ctx)
	go crash.Run(ctx)

	router := gin.Default()
	router.Use(middleware.CORSMiddleware())

	// open endpoints
	{
		router.POST(apiPrefix+"register", users.Register)
		router.POST(apiPrefix+"login", users.Login)
		router.GET(apiPrefix+"ws", casino.WebsocketHandler)
	}

	// authorized
	authorized := router.Group("/", middleware.AuthMiddleware(cfg.JWTKey, accounts))
	{
		authorized.GET(apiPrefix+"bets/history", users.BetHistory)
		authorized.GET(apiPrefix+"leaderboard", users.Leaderboard)
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router.Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server Shutdown: %v", err)
	}

	cancel()
	accounts.Close()
	logger.Info("Server exiting")
}
