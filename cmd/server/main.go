package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xtrntr/crash/internal/api"
	"github.com/xtrntr/crash/internal/auth"
	"github.com/xtrntr/crash/internal/config"
	"github.com/xtrntr/crash/internal/db"
	"github.com/xtrntr/crash/internal/engine"
	"github.com/xtrntr/crash/internal/price"
	"github.com/xtrntr/crash/internal/ws"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Main entry point: sets up database, round engine, and HTTP server
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize database connection
	database, err := db.NewDB(ctx, cfg.Database.ConnString)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(ctx)

	// Price oracle with fallback prices from config
	oracle := price.New(nil, cfg.Prices.TTL.Std(), cfg.Prices.Fallback, logger)

	// Websocket hub receives engine events and pushes them to clients
	hub := ws.NewHub(logger)
	go hub.Run()
	defer hub.Close()

	// Round engine: the database serves as both wallet backend and
	// round history store
	eng, err := engine.New(engine.Config{
		WaitingDelay:  cfg.Engine.WaitingDelay.Std(),
		BettingDelay:  cfg.Engine.BettingDelay.Std(),
		CrashGrace:    cfg.Engine.CrashGrace.Std(),
		TickInterval:  cfg.Engine.TickInterval.Std(),
		GrowthFactor:  cfg.Engine.GrowthFactor,
		MaxCrashValue: cfg.Engine.MaxCrashValue,
		WalletTimeout: cfg.Engine.WalletTimeout.Std(),
		Currencies:    cfg.Engine.Currencies,
		RecentLimit:   cfg.Engine.RecentLimit,
	}, database, oracle, database, hub, logger)
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}

	// Initialize auth service
	authService := auth.NewAuthService(database, cfg.Server.JWTSecret, cfg.Engine.Currencies, cfg.Wallet.StartingBalance)

	// Initialize API handlers
	handler := api.NewHandler(database, eng, authService)

	// Set up HTTP router
	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Serve static files
	r.Handle("/*", http.FileServer(http.Dir(cfg.Server.StaticDir)))

	// WebSocket endpoint
	r.Get("/ws", hub.Handler())

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)
	r.Get("/state", handler.GetState)
	r.Get("/rounds/recent", handler.GetRecentRounds)
	r.Get("/verify", handler.VerifyRound)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Get("/balance", handler.GetBalance)
		r.Post("/bets", handler.PlaceBet)
		r.Post("/cashout", handler.CashOut)
	})

	// Operator commands, unauthenticated for local use
	r.Post("/admin/pause", handler.Pause)
	r.Post("/admin/resume", handler.Resume)
	r.Post("/admin/stop", handler.Stop)
	r.Post("/admin/start", handler.Start)

	// Start the round loop
	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}
	defer eng.Shutdown()

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: r}

	go func() {
		logger.Info("starting server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop the round loop before closing the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	eng.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}
