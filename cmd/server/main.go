package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/xtrntr/matchengine/internal/api"
	"github.com/xtrntr/matchengine/internal/auth"
	"github.com/xtrntr/matchengine/internal/config"
	"github.com/xtrntr/matchengine/internal/db"
	"github.com/xtrntr/matchengine/internal/exchange"
	"github.com/xtrntr/matchengine/internal/matching"
	"github.com/xtrntr/matchengine/migrations"
)

// Main entry point: sets up database, exchange, and HTTP server
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx, migrations.Init); err != nil {
		logger.Fatalw("Failed to apply migrations", "error", err)
	}

	// Initialize exchange (order books and matching engine)
	pricing, err := matching.ParsePricingPolicy(cfg.Matching.Pricing)
	if err != nil {
		logger.Fatalw("Invalid pricing policy", "error", err)
	}
	algorithm, err := matching.ParseAlgorithm(cfg.Matching.Algorithm)
	if err != nil {
		logger.Fatalw("Invalid matching algorithm", "error", err)
	}
	symbols, err := cfg.ParsedSymbols()
	if err != nil {
		logger.Fatalw("Invalid symbols", "error", err)
	}
	ex := exchange.NewExchange(exchange.Options{
		Algorithm: algorithm,
		Pricing:   pricing,
		Symbols:   symbols,
	}, database, exchange.NewMetrics("matchengine"), logger.Named("exchange"))

	open, err := database.GetOpenOrders(ctx)
	if err != nil {
		logger.Fatalw("Failed to load open orders", "error", err)
	}
	ex.Restore(open)

	authService := auth.NewAuthService(database, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler := api.NewHandler(database, ex, authService, logger.Named("api"), cfg.Matching.DepthLevels)
	hub := api.NewHub(func() interface{} { return ex.Overview() }, logger.Named("ws"))

	// Set up HTTP router
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Get("/ws", hub.ServeWS)
	r.Handle("/metrics", ex.Metrics().Handler())
	handler.Routes(r)

	go hub.Run(ctx, cfg.Server.BroadcastInterval)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Server shutdown failed", "error", err)
		}
	}()

	logger.Infow("Starting server", "addr", cfg.Server.Addr, "symbols", symbols,
		"pricing", cfg.Matching.Pricing, "algorithm", cfg.Matching.Algorithm)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalw("Server failed", "error", err)
	}
	logger.Info("Server stopped")
}
