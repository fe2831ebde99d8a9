package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/matching"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/trade"
	"go.uber.org/zap"
)

// Journal persists order state and executed trades
type Journal interface {
	// SaveOrder upserts the order, ignoring snapshots older than the stored one
	SaveOrder(ctx context.Context, o models.OrderSnapshot) error
	RecordTransaction(ctx context.Context, r trade.Record) error
}

type nopJournal struct{}

func (nopJournal) SaveOrder(context.Context, models.OrderSnapshot) error { return nil }
func (nopJournal) RecordTransaction(context.Context, trade.Record) error { return nil }

// Options configures the books an Exchange creates
type Options struct {
	Algorithm matching.Algorithm
	Pricing   matching.PricingPolicy
	// Symbols restricts trading to the listed symbols; empty allows any
	Symbols []models.Symbol
}

// Result is the outcome of a submitted order
type Result struct {
	Order      models.OrderSnapshot `json:"order"`
	Executions []Execution          `json:"-"`
	Trades     []trade.Record       `json:"trades"`
}

// Exchange routes orders to their books, matches them and journals the outcome
type Exchange struct {
	books   *Registry
	allowed map[models.Symbol]struct{}
	journal Journal
	metrics *Metrics
	logger  *zap.SugaredLogger
}

// NewExchange creates a new exchange. A nil journal keeps state in memory only.
func NewExchange(opts Options, journal Journal, metrics *Metrics, logger *zap.SugaredLogger) *Exchange {
	if journal == nil {
		journal = nopJournal{}
	}
	if metrics == nil {
		metrics = NewMetrics("matchengine")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	allowed := make(map[models.Symbol]struct{}, len(opts.Symbols))
	for _, s := range opts.Symbols {
		allowed[s] = struct{}{}
	}
	return &Exchange{
		books: NewRegistry(func(symbol models.Symbol) *OrderBook {
			return NewOrderBook(symbol, opts.Algorithm, opts.Pricing)
		}),
		allowed: allowed,
		journal: journal,
		metrics: metrics,
		logger:  logger,
	}
}

// Metrics returns the exchange's collectors
func (e *Exchange) Metrics() *Metrics { return e.metrics }

func (e *Exchange) checkSymbol(symbol models.Symbol) error {
	if len(e.allowed) == 0 {
		return nil
	}
	if _, ok := e.allowed[symbol]; !ok {
		return models.ArgumentError("symbol %s is not traded", symbol)
	}
	return nil
}

// Submit rests the order in its book, matches the book and journals every
// order and trade touched. A non-empty Result.Order means the order was
// accepted, even when an error is returned with it.
func (e *Exchange) Submit(ctx context.Context, o *models.Order) (Result, error) {
	if o == nil {
		return Result{}, models.ArgumentError("order is nil")
	}
	if err := e.checkSymbol(o.Symbol()); err != nil {
		e.metrics.orderRejected(o.Symbol())
		return Result{}, err
	}

	b := e.books.GetOrCreate(o.Symbol())
	if err := b.AddOrder(o); err != nil {
		e.metrics.orderRejected(o.Symbol())
		e.logger.Warnw("Order rejected", "orderID", o.ID(), "symbol", o.Symbol(), "error", err)
		return Result{}, err
	}
	e.metrics.orderSubmitted(o.Symbol(), o.Side())

	start := time.Now()
	execs, matchErr := b.Match()
	e.metrics.observeMatch(o.Symbol(), start)
	if matchErr != nil {
		e.logger.Errorw("Matching stopped early", "symbol", o.Symbol(), "error", matchErr)
	}

	res := Result{Executions: execs, Trades: make([]trade.Record, 0, len(execs))}
	latest := map[uuid.UUID]models.OrderSnapshot{}
	order := []uuid.UUID{o.ID()}
	for _, exec := range execs {
		e.metrics.executed(exec)
		res.Trades = append(res.Trades, exec.Transaction.Record())
		for _, snap := range []models.OrderSnapshot{exec.Buy, exec.Sell} {
			if _, seen := latest[snap.ID]; !seen && snap.ID != o.ID() {
				order = append(order, snap.ID)
			}
			latest[snap.ID] = snap
		}
	}
	if snap, ok := b.Order(o.ID()); ok {
		latest[o.ID()] = snap
	} else if _, ok := latest[o.ID()]; !ok {
		// cancelled by a concurrent request before trading; the book no longer touches it
		latest[o.ID()] = o.Snapshot()
	}
	res.Order = latest[o.ID()]
	e.metrics.updateDepth(b.Summary())

	e.logger.Infow("Order submitted",
		"orderID", o.ID(), "symbol", o.Symbol(), "side", o.Side(),
		"status", res.Order.Status, "trades", len(execs))

	if err := e.record(ctx, order, latest, res.Trades); err != nil {
		// the book already holds the outcome; keep it traceable
		e.logger.Errorw("Order executed but not journaled",
			"orderID", o.ID(), "symbol", o.Symbol(), "status", res.Order.Status,
			"trades", res.Trades, "error", err)
		return res, err
	}
	return res, matchErr
}

func (e *Exchange) record(ctx context.Context, ids []uuid.UUID, latest map[uuid.UUID]models.OrderSnapshot, trades []trade.Record) error {
	for _, id := range ids {
		if err := e.journal.SaveOrder(ctx, latest[id]); err != nil {
			return fmt.Errorf("failed to save order %s: %w", id, err)
		}
	}
	for _, rec := range trades {
		if err := e.journal.RecordTransaction(ctx, rec); err != nil {
			return fmt.Errorf("failed to record transaction %s: %w", rec.ID, err)
		}
	}
	return nil
}

// ownedOrder finds the book resting order id if it belongs to userID
func (e *Exchange) ownedOrder(id uuid.UUID, userID int) (*OrderBook, error) {
	for _, symbol := range e.books.Symbols() {
		b, ok := e.books.Get(symbol)
		if !ok {
			continue
		}
		if snap, ok := b.Order(id); ok {
			if snap.UserID != userID {
				return nil, ErrOrderNotFound
			}
			return b, nil
		}
	}
	return nil, ErrOrderNotFound
}

// Cancel removes a user's resting order and cancels it
func (e *Exchange) Cancel(ctx context.Context, id uuid.UUID, userID int) (models.OrderSnapshot, error) {
	b, err := e.ownedOrder(id, userID)
	if err != nil {
		return models.OrderSnapshot{}, err
	}
	snap, err := b.CancelOrder(id)
	if err != nil {
		return snap, err
	}
	e.metrics.orderCancelled(b.Symbol())
	e.metrics.updateDepth(b.Summary())
	e.logger.Infow("Order cancelled", "orderID", id, "symbol", b.Symbol())

	if err := e.journal.SaveOrder(ctx, snap); err != nil {
		return snap, fmt.Errorf("failed to save order %s: %w", id, err)
	}
	return snap, nil
}

// Reduce cancels part of a user's resting order
func (e *Exchange) Reduce(ctx context.Context, id uuid.UUID, userID int, amount decimal.Decimal) (models.OrderSnapshot, error) {
	b, err := e.ownedOrder(id, userID)
	if err != nil {
		return models.OrderSnapshot{}, err
	}
	snap, err := b.ReduceOrder(id, amount)
	if err != nil {
		return snap, err
	}
	e.metrics.updateDepth(b.Summary())
	e.logger.Infow("Order reduced", "orderID", id, "symbol", b.Symbol(), "by", amount)

	if err := e.journal.SaveOrder(ctx, snap); err != nil {
		return snap, fmt.Errorf("failed to save order %s: %w", id, err)
	}
	return snap, nil
}

// Restore rests previously persisted open orders without journaling them
// again. Orders that cannot rest are logged and skipped.
func (e *Exchange) Restore(orders []*models.Order) int {
	restored := 0
	for _, o := range orders {
		if err := e.checkSymbol(o.Symbol()); err != nil {
			e.logger.Warnw("Skipping restored order", "orderID", o.ID(), "error", err)
			continue
		}
		b := e.books.GetOrCreate(o.Symbol())
		if err := b.AddOrder(o); err != nil {
			e.logger.Warnw("Skipping restored order", "orderID", o.ID(), "error", err)
			continue
		}
		restored++
	}
	for _, s := range e.books.Symbols() {
		if b, ok := e.books.Get(s); ok {
			e.metrics.updateDepth(b.Summary())
		}
	}
	e.logger.Infow("Order books restored", "orders", restored, "books", len(e.books.Symbols()))
	return restored
}

// Book returns the symbol's book if any order has been routed to it
func (e *Exchange) Book(symbol models.Symbol) (*OrderBook, bool) {
	return e.books.Get(symbol)
}

// Depth returns the n best levels of the symbol's book
func (e *Exchange) Depth(symbol models.Symbol, n int) (Depth, error) {
	if err := e.checkSymbol(symbol); err != nil {
		return Depth{}, err
	}
	b, ok := e.books.Get(symbol)
	if !ok {
		return Depth{Symbol: symbol, Bids: []LevelSnapshot{}, Asks: []LevelSnapshot{}, Timestamp: time.Now()}, nil
	}
	return b.MarketDepth(n), nil
}

// Summary reports the headline view of the symbol's book
func (e *Exchange) Summary(symbol models.Symbol) (Summary, error) {
	if err := e.checkSymbol(symbol); err != nil {
		return Summary{}, err
	}
	b, ok := e.books.Get(symbol)
	if !ok {
		return Summary{Symbol: symbol, BidVolume: decimal.Zero, AskVolume: decimal.Zero}, nil
	}
	return b.Summary(), nil
}

// Overview summarises every book
func (e *Exchange) Overview() []Summary {
	return e.books.Overview()
}
