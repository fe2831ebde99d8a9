package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
	"github.com/xtrntr/matchengine/internal/trade"
)

var (
	// ErrUserNotFound is returned when no user has the username
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when registering an existing username
	ErrUsernameTaken = errors.New("username already taken")
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate applies a schema script. The scripts are idempotent.
func (db *DB) Migrate(ctx context.Context, script string) error {
	if _, err := db.Pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SaveOrder inserts the order or updates its execution state. Older
// snapshots never overwrite newer ones.
func (db *DB) SaveOrder(ctx context.Context, o models.OrderSnapshot) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, symbol, side, price, quantity, executed_quantity, status, created_at, updated_at)
		VALUES ($1::text::uuid, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7::text::numeric, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			executed_quantity = EXCLUDED.executed_quantity,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE orders.updated_at <= EXCLUDED.updated_at
			AND orders.executed_quantity <= EXCLUDED.executed_quantity`,
		o.ID.String(), o.UserID, string(o.Symbol), string(o.Side),
		o.Price.Amount().String(), o.Quantity.String(), o.Executed.String(),
		string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// RecordTransaction inserts an executed trade once
func (db *DB) RecordTransaction(ctx context.Context, r trade.Record) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO transactions (id, symbol, buy_order_id, sell_order_id, price, quantity, executed_at)
		VALUES ($1::text::uuid, $2, $3::text::uuid, $4::text::uuid, $5::text::numeric, $6::text::numeric, $7)
		ON CONFLICT (id) DO NOTHING`,
		r.ID.String(), string(r.Symbol), r.BuyOrderID.String(), r.SellOrderID.String(),
		r.Price.Amount().String(), r.Quantity.String(), r.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}
	return nil
}

const orderColumns = `id::text, user_id, symbol, side, price::text, quantity::text, executed_quantity::text, status, created_at, updated_at`

type orderRow struct {
	id, symbol, side, price, quantity, executed, status string
	userID                                              int
	createdAt, updatedAt                                time.Time
}

func scanOrderRow(row pgx.Row) (orderRow, error) {
	var r orderRow
	err := row.Scan(&r.id, &r.userID, &r.symbol, &r.side, &r.price, &r.quantity, &r.executed, &r.status, &r.createdAt, &r.updatedAt)
	return r, err
}

func (r orderRow) order() (*models.Order, error) {
	id, err := uuid.Parse(r.id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order id: %w", err)
	}
	symbol, err := models.ParseSymbol(r.symbol)
	if err != nil {
		return nil, err
	}
	price, err := money.NewFromString(r.price, symbol.Quote())
	if err != nil {
		return nil, err
	}
	quantity, err := decimal.NewFromString(r.quantity)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quantity: %w", err)
	}
	executed, err := decimal.NewFromString(r.executed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse executed quantity: %w", err)
	}
	status, err := models.ParseOrderStatus(r.status)
	if err != nil {
		return nil, err
	}
	return models.RestoreOrder(models.OrderParams{
		ID:        id,
		UserID:    r.userID,
		Symbol:    symbol,
		Side:      models.Side(r.side),
		Price:     price,
		Quantity:  quantity,
		CreatedAt: r.createdAt,
	}, executed, status, r.updatedAt)
}

func (db *DB) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		r, err := scanOrderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o, err := r.order()
		if err != nil {
			return nil, fmt.Errorf("failed to load order %s: %w", r.id, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

// GetUserOrders retrieves all orders for a user, oldest first
func (db *DB) GetUserOrders(ctx context.Context, userID int) ([]models.OrderSnapshot, error) {
	orders, err := db.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at, id", userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.OrderSnapshot, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Snapshot())
	}
	return out, nil
}

// GetOpenOrders retrieves every pending or partially filled order in
// arrival order, for rebuilding the books at start-up
func (db *DB) GetOpenOrders(ctx context.Context) ([]*models.Order, error) {
	return db.queryOrders(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status IN ('pending', 'partial') ORDER BY created_at, id")
}

// GetUserTrades retrieves the trades on either side of a user's orders
func (db *DB) GetUserTrades(ctx context.Context, userID int) ([]trade.Record, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT t.id::text, t.symbol, t.buy_order_id::text, t.sell_order_id::text, t.price::text, t.quantity::text, t.executed_at
		FROM transactions t
		WHERE EXISTS (
			SELECT 1 FROM orders o
			WHERE o.user_id = $1 AND (o.id = t.buy_order_id OR o.id = t.sell_order_id)
		)
		ORDER BY t.executed_at, t.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	var trades []trade.Record
	for rows.Next() {
		var id, symbol, buyID, sellID, price, quantity string
		var rec trade.Record
		if err := rows.Scan(&id, &symbol, &buyID, &sellID, &price, &quantity, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if rec, err = parseRecord(rec, id, symbol, buyID, sellID, price, quantity); err != nil {
			return nil, err
		}
		trades = append(trades, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}
	return trades, nil
}

func parseRecord(rec trade.Record, id, symbol, buyID, sellID, price, quantity string) (trade.Record, error) {
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return rec, fmt.Errorf("failed to parse trade id: %w", err)
	}
	if rec.BuyOrderID, err = uuid.Parse(buyID); err != nil {
		return rec, fmt.Errorf("failed to parse buy order id: %w", err)
	}
	if rec.SellOrderID, err = uuid.Parse(sellID); err != nil {
		return rec, fmt.Errorf("failed to parse sell order id: %w", err)
	}
	if rec.Symbol, err = models.ParseSymbol(symbol); err != nil {
		return rec, err
	}
	if rec.Price, err = money.NewFromString(price, rec.Symbol.Quote()); err != nil {
		return rec, err
	}
	if rec.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return rec, fmt.Errorf("failed to parse trade quantity: %w", err)
	}
	return rec, nil
}
