package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/auth"
	"github.com/xtrntr/matchengine/internal/config"
	"github.com/xtrntr/matchengine/internal/db"
	"github.com/xtrntr/matchengine/internal/exchange"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
	"github.com/xtrntr/matchengine/migrations"
)

const seedPassword = "password123"

// ladder of resting orders around a mid price: offset from mid in quote units and size
var ladder = []struct {
	offset   int64
	quantity string
}{
	{50, "0.10"},
	{100, "0.25"},
	{200, "0.50"},
}

// Seed the database with two traders and a resting book
func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	mid := flag.Int64("mid", 30000, "mid price the ladder is built around")
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

	ctx := context.Background()
	database, err := db.NewDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatalw("Failed to connect to database", "error", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx, migrations.Init); err != nil {
		logger.Fatalw("Failed to apply migrations", "error", err)
	}

	open, err := database.GetOpenOrders(ctx)
	if err != nil {
		logger.Fatalw("Failed to check open orders", "error", err)
	}
	if len(open) > 0 {
		fmt.Printf("Database already has %d open orders. No need to seed.\n", len(open))
		return
	}

	authService := auth.NewAuthService(database, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	buyer, err := seedUser(ctx, database, authService, "trader1")
	if err != nil {
		logger.Fatalw("Failed to create trader1", "error", err)
	}
	seller, err := seedUser(ctx, database, authService, "trader2")
	if err != nil {
		logger.Fatalw("Failed to create trader2", "error", err)
	}

	symbols, err := cfg.ParsedSymbols()
	if err != nil {
		logger.Fatalw("Invalid symbols", "error", err)
	}
	ex := exchange.NewExchange(exchange.Options{Symbols: symbols}, database, nil, logger.Named("exchange"))

	placed := 0
	for _, symbol := range symbols {
		for _, step := range ladder {
			for _, o := range []struct {
				user  *models.User
				side  models.Side
				price int64
			}{
				{buyer, models.Buy, *mid - step.offset},
				{seller, models.Sell, *mid + step.offset},
			} {
				order, err := models.NewOrder(models.OrderParams{
					UserID:   o.user.ID,
					Symbol:   symbol,
					Side:     o.side,
					Price:    money.NewFromInt(o.price, symbol.Quote()),
					Quantity: decimal.RequireFromString(step.quantity),
				})
				if err != nil {
					logger.Fatalw("Failed to build order", "error", err)
				}
				if _, err := ex.Submit(ctx, order); err != nil {
					logger.Fatalw("Failed to place order", "symbol", symbol, "error", err)
				}
				placed++
			}
		}
	}

	fmt.Printf("Successfully seeded %d resting orders across %d symbols (password %q)\n", placed, len(symbols), seedPassword)
}

// seedUser registers username or returns the existing account
func seedUser(ctx context.Context, database *db.DB, authService *auth.AuthService, username string) (*models.User, error) {
	user, err := database.GetUserByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, db.ErrUserNotFound) {
		return nil, err
	}
	return authService.Register(ctx, username, seedPassword)
}
