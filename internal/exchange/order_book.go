package exchange

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/book"
	"github.com/xtrntr/matchengine/internal/matching"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
	"github.com/xtrntr/matchengine/internal/trade"
)

// ErrOrderNotFound is returned for ids that are not resting in the book
var ErrOrderNotFound = errors.New("order not found")

// Execution is a transaction together with the state both orders were
// left in, captured under the book lock
type Execution struct {
	Transaction *trade.Transaction
	Buy         models.OrderSnapshot
	Sell        models.OrderSnapshot
}

// Candidate is a crossable pair found by the matching algorithm, copied
// out of the book without executing it
type Candidate struct {
	Buy      models.OrderSnapshot `json:"buy"`
	Sell     models.OrderSnapshot `json:"sell"`
	Quantity decimal.Decimal      `json:"quantity"`
	Price    money.Money          `json:"price"`
}

// OrderBook holds the bid and ask side of one symbol. Every method takes
// the book lock and only snapshots leave it, so orders held by the book
// must not be mutated elsewhere.
type OrderBook struct {
	mu        sync.Mutex
	symbol    models.Symbol
	bids      *book.PriceLevelManager
	asks      *book.PriceLevelManager
	orders    map[uuid.UUID]*models.Order
	algorithm matching.Algorithm
	strategy  matching.Strategy
	pricing   matching.PricingPolicy
	updatedAt time.Time
}

// NewOrderBook creates an empty book. Nil arguments select the two-pointer
// walk and midpoint pricing.
func NewOrderBook(symbol models.Symbol, algorithm matching.Algorithm, pricing matching.PricingPolicy) *OrderBook {
	if algorithm == nil {
		algorithm = matching.TwoPointer{}
	}
	return &OrderBook{
		symbol:    symbol,
		bids:      book.NewBidSideManager(),
		asks:      book.NewAskSideManager(),
		orders:    make(map[uuid.UUID]*models.Order),
		algorithm: algorithm,
		strategy:  matching.NewPriceTimeStrategy(pricing),
		pricing:   pricing,
		updatedAt: time.Now(),
	}
}

// Symbol traded in this book
func (b *OrderBook) Symbol() models.Symbol { return b.symbol }

func (b *OrderBook) side(s models.Side) *book.PriceLevelManager {
	if s == models.Buy {
		return b.bids
	}
	return b.asks
}

// AddOrder rests an active order of this symbol in the book
func (b *OrderBook) AddOrder(o *models.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addOrder(o)
}

func (b *OrderBook) addOrder(o *models.Order) error {
	if o == nil {
		return models.ArgumentError("order is nil")
	}
	if o.Symbol() != b.symbol {
		return models.ArgumentError("order symbol %s does not match book %s", o.Symbol(), b.symbol)
	}
	if !o.IsActive() {
		return models.ArgumentError("order %s is not active", o.ID())
	}
	if _, ok := b.orders[o.ID()]; ok {
		return models.ArgumentError("order %s is already in the book", o.ID())
	}

	added, err := b.side(o.Side()).AddOrder(o)
	if err != nil {
		return err
	}
	if !added {
		return models.ArgumentError("order %s was not accepted by its price level", o.ID())
	}
	b.orders[o.ID()] = o
	b.updatedAt = time.Now()
	return nil
}

// RemoveOrder takes an active order out of the book without changing its status
func (b *OrderBook) RemoveOrder(o *models.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if o == nil {
		return models.ArgumentError("order is nil")
	}
	if o.Symbol() != b.symbol {
		return models.ArgumentError("order symbol %s does not match book %s", o.Symbol(), b.symbol)
	}
	if !o.IsActive() {
		return models.ArgumentError("order %s is not active", o.ID())
	}
	if b.orders[o.ID()] != o {
		return ErrOrderNotFound
	}
	b.remove(o)
	return nil
}

func (b *OrderBook) remove(o *models.Order) {
	_, dropped := b.side(o.Side()).RemoveOrder(o)
	delete(b.orders, o.ID())
	b.forget(dropped)
	b.updatedAt = time.Now()
}

// forget unindexes stale orders that left the book with a pruned level
func (b *OrderBook) forget(dropped []*models.Order) {
	for _, o := range dropped {
		delete(b.orders, o.ID())
	}
}

// Order returns a snapshot of a resting order
func (b *OrderBook) Order(id uuid.UUID) (models.OrderSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return models.OrderSnapshot{}, false
	}
	return o.Snapshot(), true
}

// CancelOrder removes a resting order and cancels it
func (b *OrderBook) CancelOrder(id uuid.UUID) (models.OrderSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return models.OrderSnapshot{}, ErrOrderNotFound
	}
	b.remove(o)
	// an order already terminal only leaves the book, Cancel reports which state blocked it
	err := o.Cancel()
	return o.Snapshot(), err
}

// ReduceOrder cancels part of a resting order's remaining quantity
func (b *OrderBook) ReduceOrder(id uuid.UUID, amount decimal.Decimal) (models.OrderSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return models.OrderSnapshot{}, ErrOrderNotFound
	}
	if err := o.Reduce(amount); err != nil {
		return o.Snapshot(), err
	}
	b.forget(b.side(o.Side()).Refresh(o))
	b.updatedAt = time.Now()
	return o.Snapshot(), nil
}

// BestBid is the highest bid price
func (b *OrderBook) BestBid() (money.Money, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.BestPrice()
}

// BestAsk is the lowest ask price
func (b *OrderBook) BestAsk() (money.Money, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asks.BestPrice()
}

// BestBuyOrder is a snapshot of the first active order at the best bid
func (b *OrderBook) BestBuyOrder() (models.OrderSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshotOf(b.bids.BestOrder())
}

// BestSellOrder is a snapshot of the first active order at the best ask
func (b *OrderBook) BestSellOrder() (models.OrderSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return snapshotOf(b.asks.BestOrder())
}

func snapshotOf(o *models.Order) (models.OrderSnapshot, bool) {
	if o == nil {
		return models.OrderSnapshot{}, false
	}
	return o.Snapshot(), true
}

// Spread is best ask minus best bid. A crossed book yields a negative spread.
func (b *OrderBook) Spread() (money.Money, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spread()
}

func (b *OrderBook) spread() (money.Money, bool) {
	bid, okBid := b.bids.BestPrice()
	ask, okAsk := b.asks.BestPrice()
	if !okBid || !okAsk {
		return money.Money{}, false
	}
	return ask.Subtract(bid), true
}

// TotalBidVolume sums the quantity resting on the bid side
func (b *OrderBook) TotalBidVolume() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.TotalVolume()
}

// TotalAskVolume sums the quantity resting on the ask side
func (b *OrderBook) TotalAskVolume() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asks.TotalVolume()
}

// OrderCount is the number of active resting orders
func (b *OrderBook) OrderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.OrderCount() + b.asks.OrderCount()
}

// FindMatches lists the candidate pairs the algorithm finds without
// executing any of them
func (b *OrderBook) FindMatches() []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	matches := b.algorithm.FindMatchCandidates(b.bids, b.asks, b.strategy)
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{
			Buy:      m.BuyOrder().Snapshot(),
			Sell:     m.SellOrder().Snapshot(),
			Quantity: m.Quantity(),
			Price:    m.Price(),
		})
	}
	return out
}

// Execute trades two resting orders against each other, revalidating the
// pair under the book lock. Orders left inactive leave the book.
func (b *OrderBook) Execute(buyID, sellID uuid.UUID) (Execution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buy, okBuy := b.orders[buyID]
	sell, okSell := b.orders[sellID]
	if !okBuy || !okSell {
		return Execution{}, ErrOrderNotFound
	}
	return b.execute(matching.NewOrderMatch(buy, sell, b.pricing))
}

func (b *OrderBook) execute(m *matching.OrderMatch) (Execution, error) {
	if m == nil || !m.IsValid() {
		reason := "match is nil"
		if m != nil {
			reason = m.Reason()
		}
		return Execution{}, models.ArgumentError("invalid match: %s", reason)
	}
	buy, sell := m.BuyOrder(), m.SellOrder()
	if b.orders[buy.ID()] != buy || b.orders[sell.ID()] != sell {
		return Execution{}, ErrOrderNotFound
	}

	tx, err := trade.New(trade.Params{
		Symbol:   b.symbol,
		Buy:      buy,
		Sell:     sell,
		Price:    m.Price(),
		Quantity: m.Quantity(),
	})
	if err != nil {
		return Execution{}, err
	}

	b.settle(buy)
	b.settle(sell)
	b.updatedAt = tx.CreatedAt()
	return Execution{Transaction: tx, Buy: buy.Snapshot(), Sell: sell.Snapshot()}, nil
}

func (b *OrderBook) settle(o *models.Order) {
	b.forget(b.side(o.Side()).Refresh(o))
	if !o.IsActive() {
		delete(b.orders, o.ID())
	}
}

// Match runs the algorithm and executes its first candidate, the best bid
// against the best ask, until the book no longer crosses
func (b *OrderBook) Match() ([]Execution, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Execution
	for {
		candidates := b.algorithm.FindMatchCandidates(b.bids, b.asks, b.strategy)
		if len(candidates) == 0 {
			return out, nil
		}
		exec, err := b.execute(candidates[0])
		if err != nil {
			return out, err
		}
		out = append(out, exec)
	}
}

// Sweep drops orders that went inactive outside the book
func (b *OrderBook) Sweep() []*models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := append(b.bids.Sweep(), b.asks.Sweep()...)
	for _, o := range removed {
		delete(b.orders, o.ID())
	}
	if len(removed) > 0 {
		b.updatedAt = time.Now()
	}
	return removed
}
