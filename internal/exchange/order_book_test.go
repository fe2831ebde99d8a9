package exchange

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/matchengine/internal/book"
	"github.com/xtrntr/matchengine/internal/matching"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

const btc models.Symbol = "BTC-USD"

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func usd(v int64) money.Money { return money.NewFromInt(v, "USD") }

func usdStr(v string) money.Money { return money.New(decimal.RequireFromString(v), "USD") }

func qty(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func newOrder(t require.TestingT, user int, side models.Side, price int64, quantity string, at time.Time) *models.Order {
	o, err := models.NewOrder(models.OrderParams{
		UserID:    user,
		Symbol:    btc,
		Side:      side,
		Price:     usd(price),
		Quantity:  qty(quantity),
		CreatedAt: at,
	})
	require.NoError(t, err)
	return o
}

func newBook(t require.TestingT, orders ...*models.Order) *OrderBook {
	b := NewOrderBook(btc, nil, nil)
	for _, o := range orders {
		require.NoError(t, b.AddOrder(o))
	}
	return b
}

func TestOrderBook_AddOrderValidation(t *testing.T) {
	eth, err := models.NewOrder(models.OrderParams{
		Symbol: "ETH-USD", Side: models.Buy, Price: usd(100), Quantity: qty("1"),
	})
	require.NoError(t, err)
	cancelled := newOrder(t, 1, models.Buy, 100, "1", t0)
	require.NoError(t, cancelled.Cancel())
	resting := newOrder(t, 1, models.Buy, 100, "1", t0)

	tests := []struct {
		name  string
		order *models.Order
	}{
		{"Nil", nil},
		{"SymbolMismatch", eth},
		{"Inactive", cancelled},
		{"Duplicate", resting},
	}

	b := newBook(t, resting)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.AddOrder(tt.order)
			assert.ErrorIs(t, err, models.ErrInvalidArgument)
			assert.Equal(t, 1, b.OrderCount())
		})
	}
}

func TestOrderBook_RemoveOrder(t *testing.T) {
	bid := newOrder(t, 1, models.Buy, 100, "1", t0)
	other := newOrder(t, 1, models.Buy, 100, "1", t0)
	b := newBook(t, bid)

	assert.ErrorIs(t, b.RemoveOrder(other), ErrOrderNotFound)
	require.NoError(t, b.RemoveOrder(bid))

	_, ok := b.BestBid()
	assert.False(t, ok, "emptied level is pruned")
	assert.Zero(t, b.OrderCount())
	assert.Equal(t, models.StatusPending, bid.Status())
	assert.ErrorIs(t, b.RemoveOrder(bid), ErrOrderNotFound)
}

func TestOrderBook_NoCross(t *testing.T) {
	t1 := t0.Add(time.Second)
	b := newBook(t,
		newOrder(t, 1, models.Buy, 101, "10", t0),
		newOrder(t, 1, models.Buy, 100, "5", t1),
		newOrder(t, 2, models.Sell, 102, "6", t0),
		newOrder(t, 2, models.Sell, 103, "4", t1),
	)

	assert.Empty(t, b.FindMatches())
	execs, err := b.Match()
	require.NoError(t, err)
	assert.Empty(t, execs)

	bid, _ := b.BestBid()
	ask, _ := b.BestAsk()
	spread, ok := b.Spread()
	require.True(t, ok)
	assert.True(t, bid.Equal(usd(101)))
	assert.True(t, ask.Equal(usd(102)))
	assert.True(t, spread.Equal(usd(1)))
	assert.True(t, b.TotalBidVolume().Equal(qty("15")))
	assert.True(t, b.TotalAskVolume().Equal(qty("10")))
	assert.Equal(t, 4, b.OrderCount())

	depth := b.MarketDepth(1)
	require.Len(t, depth.Bids, 1)
	require.Len(t, depth.Asks, 1)
	assert.True(t, depth.Bids[0].Quantity.Equal(qty("10")))
	assert.True(t, depth.Asks[0].Price.Equal(usd(102)))
	assert.Len(t, b.MarketDepth(0).Bids, 2)
}

func TestOrderBook_SpreadAbsentOrCrossed(t *testing.T) {
	b := newBook(t, newOrder(t, 1, models.Buy, 103, "10", t0))
	_, ok := b.Spread()
	assert.False(t, ok)

	require.NoError(t, b.AddOrder(newOrder(t, 2, models.Sell, 102, "6", t0)))
	spread, ok := b.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(usd(-1)))

	summary := b.Summary()
	require.NotNil(t, summary.Spread)
	assert.True(t, summary.Spread.Equal(usd(-1)))
}

func TestOrderBook_MatchSingleCross(t *testing.T) {
	buy := newOrder(t, 1, models.Buy, 103, "10", t0)
	sell := newOrder(t, 2, models.Sell, 102, "6", t0)
	b := newBook(t, buy, sell)

	matches := b.FindMatches()
	require.Len(t, matches, 1)
	assert.Equal(t, buy.ID(), matches[0].Buy.ID)
	assert.Equal(t, sell.ID(), matches[0].Sell.ID)
	assert.True(t, matches[0].Quantity.Equal(qty("6")))
	assert.True(t, matches[0].Price.Equal(usdStr("102.5")))

	best, ok := b.BestBuyOrder()
	require.True(t, ok)
	assert.Equal(t, buy.ID(), best.ID)

	execs, err := b.Match()
	require.NoError(t, err)
	require.Len(t, execs, 1)

	tx := execs[0].Transaction
	assert.True(t, tx.Price().Equal(usdStr("102.5")))
	assert.True(t, tx.TotalValue().Equal(usd(615)))
	assert.Equal(t, models.StatusPartial, execs[0].Buy.Status)
	assert.True(t, execs[0].Buy.Remaining.Equal(qty("4")))
	assert.Equal(t, models.StatusFilled, execs[0].Sell.Status)

	_, ok = b.BestAsk()
	assert.False(t, ok, "filled ask level is pruned")
	_, ok = b.Order(sell.ID())
	assert.False(t, ok)
	assert.True(t, b.TotalBidVolume().Equal(qty("4")))
}

func TestOrderBook_MatchWalksPriceTime(t *testing.T) {
	algorithms := []struct {
		name string
		algo matching.Algorithm
	}{
		{"TwoPointer", matching.TwoPointer{}},
		{"Exhaustive", matching.MatchFinder{}},
	}

	for _, tt := range algorithms {
		t.Run(tt.name, func(t *testing.T) {
			buy := newOrder(t, 1, models.Buy, 105, "3", t0.Add(time.Minute))
			first := newOrder(t, 2, models.Sell, 100, "1", t0)
			second := newOrder(t, 3, models.Sell, 100, "1", t0.Add(time.Second))
			deeper := newOrder(t, 4, models.Sell, 101, "2", t0)

			b := NewOrderBook(btc, tt.algo, matching.RestingOrder)
			for _, o := range []*models.Order{first, deeper, second, buy} {
				require.NoError(t, b.AddOrder(o))
			}

			execs, err := b.Match()
			require.NoError(t, err)
			require.Len(t, execs, 3)

			assert.Equal(t, first.ID(), execs[0].Sell.ID)
			assert.Equal(t, second.ID(), execs[1].Sell.ID)
			assert.Equal(t, deeper.ID(), execs[2].Sell.ID)
			// resting sells set the price
			assert.True(t, execs[0].Transaction.Price().Equal(usd(100)))
			assert.True(t, execs[2].Transaction.Price().Equal(usd(101)))
			assert.Equal(t, models.StatusFilled, execs[2].Buy.Status)
			assert.Equal(t, models.StatusPartial, execs[2].Sell.Status)

			_, ok := b.BestBid()
			assert.False(t, ok)
			ask, _ := b.BestAsk()
			assert.True(t, ask.Equal(usd(101)))
			assert.True(t, b.TotalAskVolume().Equal(qty("1")))
		})
	}
}

type countingAlgorithm struct {
	calls atomic.Int64
	inner matching.Algorithm
}

func (c *countingAlgorithm) FindMatchCandidates(bids, asks *book.PriceLevelManager, s matching.Strategy) []*matching.OrderMatch {
	c.calls.Add(1)
	return c.inner.FindMatchCandidates(bids, asks, s)
}

func TestOrderBook_MatchUsesConfiguredAlgorithm(t *testing.T) {
	algo := &countingAlgorithm{inner: matching.TwoPointer{}}
	b := NewOrderBook(btc, algo, nil)
	require.NoError(t, b.AddOrder(newOrder(t, 1, models.Buy, 101, "1", t0)))
	require.NoError(t, b.AddOrder(newOrder(t, 2, models.Sell, 100, "1", t0)))

	execs, err := b.Match()
	require.NoError(t, err)
	assert.Len(t, execs, 1)
	// one pass finds the pair, one more confirms nothing crosses
	assert.Equal(t, int64(2), algo.calls.Load())

	silent := &countingAlgorithm{inner: matching.MatchFinder{}}
	b = NewOrderBook(btc, silent, nil)
	require.NoError(t, b.AddOrder(newOrder(t, 1, models.Buy, 101, "1", t0)))
	require.NoError(t, b.AddOrder(newOrder(t, 2, models.Sell, 100, "1", t0)))
	assert.Len(t, b.FindMatches(), 1)
	assert.Equal(t, int64(1), silent.calls.Load())
}

func TestOrderBook_MatchFinePrices(t *testing.T) {
	sell, err := models.NewOrder(models.OrderParams{UserID: 2, Symbol: btc, Side: models.Sell,
		Price: usdStr("100.000000001"), Quantity: qty("1")})
	require.NoError(t, err)
	buy, err := models.NewOrder(models.OrderParams{UserID: 1, Symbol: btc, Side: models.Buy,
		Price: usdStr("100.000000002"), Quantity: qty("1")})
	require.NoError(t, err)
	b := newBook(t, sell, buy)

	execs, err := b.Match()
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Transaction.Price().Equal(usdStr("100.0000000015")))
	assert.Zero(t, b.OrderCount())
	_, ok := b.Spread()
	assert.False(t, ok)
}

func TestOrderBook_CancelOrder(t *testing.T) {
	bid := newOrder(t, 1, models.Buy, 100, "1", t0)
	b := newBook(t, bid)

	snap, err := b.CancelOrder(bid.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, snap.Status)
	assert.Zero(t, b.OrderCount())

	_, err = b.CancelOrder(bid.ID())
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = b.CancelOrder(uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderBook_ReduceOrder(t *testing.T) {
	bid := newOrder(t, 1, models.Buy, 100, "5", t0)
	b := newBook(t, bid)

	snap, err := b.ReduceOrder(bid.ID(), qty("2"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, snap.Status)
	assert.True(t, b.TotalBidVolume().Equal(qty("3")))

	_, err = b.ReduceOrder(bid.ID(), qty("3"))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.True(t, b.TotalBidVolume().Equal(qty("3")))
}

func TestOrderBook_SweepAndStaleExecution(t *testing.T) {
	buy := newOrder(t, 1, models.Buy, 101, "1", t0)
	sell := newOrder(t, 2, models.Sell, 100, "1", t0)
	b := newBook(t, buy, sell)

	matches := b.FindMatches()
	require.Len(t, matches, 1)

	// cancelled behind the book's back
	require.NoError(t, sell.Cancel())
	_, err := b.Execute(matches[0].Buy.ID, matches[0].Sell.ID)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	assert.True(t, buy.ExecutedQuantity().IsZero())

	assert.Empty(t, b.FindMatches())
	removed := b.Sweep()
	require.Len(t, removed, 1)
	assert.Same(t, sell, removed[0])
	_, ok := b.BestAsk()
	assert.False(t, ok)
	assert.Equal(t, 1, b.OrderCount())
}

func TestOrderBook_StaleLevelLeavesIndex(t *testing.T) {
	stale := newOrder(t, 2, models.Sell, 100, "1", t0)
	live := newOrder(t, 3, models.Sell, 100, "1", t0.Add(time.Second))
	b := newBook(t, stale, live)

	// cancelled behind the book's back, then the level's last active order goes
	require.NoError(t, stale.Cancel())
	_, err := b.CancelOrder(live.ID())
	require.NoError(t, err)

	_, ok := b.Order(stale.ID())
	assert.False(t, ok)
	assert.Empty(t, b.Sweep())
	_, err = b.CancelOrder(stale.ID())
	assert.ErrorIs(t, err, ErrOrderNotFound)

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Empty(t, b.orders)
}

func TestOrderBook_ExecuteRejectsInvalidMatch(t *testing.T) {
	buy := newOrder(t, 1, models.Buy, 99, "1", t0)
	sell := newOrder(t, 2, models.Sell, 100, "1", t0)
	b := newBook(t, buy, sell)

	tests := []struct {
		name   string
		buyID  uuid.UUID
		sellID uuid.UUID
		expect error
	}{
		{"NoCross", buy.ID(), sell.ID(), models.ErrInvalidArgument},
		{"SwappedSides", sell.ID(), buy.ID(), models.ErrInvalidArgument},
		{"UnknownBuy", uuid.New(), sell.ID(), ErrOrderNotFound},
		{"UnknownSell", buy.ID(), uuid.New(), ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Execute(tt.buyID, tt.sellID)
			assert.ErrorIs(t, err, tt.expect)
			assert.Equal(t, 2, b.OrderCount())
		})
	}
}

func TestOrderBook_SnapshotsAreSafeToReadWhileMatching(t *testing.T) {
	b := NewOrderBook(btc, nil, nil)
	require.NoError(t, b.AddOrder(newOrder(t, 1, models.Buy, 100, "1000", t0)))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if best, ok := b.BestBuyOrder(); ok {
				assert.True(t, best.Remaining.IsPositive())
			}
			for _, c := range b.FindMatches() {
				assert.True(t, c.Quantity.IsPositive())
			}
		}
	}()

	for i := 0; i < 200; i++ {
		require.NoError(t, b.AddOrder(newOrder(t, 2, models.Sell, 100, "1", t0)))
		_, err := b.Match()
		require.NoError(t, err)
	}
	close(done)
	wg.Wait()

	best, ok := b.BestBuyOrder()
	require.True(t, ok)
	assert.True(t, best.Executed.Equal(qty("200")))
	_, ok = b.BestSellOrder()
	assert.False(t, ok)
}

func TestOrderBook_ConcurrentMutation(t *testing.T) {
	b := NewOrderBook(btc, nil, nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				side := models.Buy
				if (w+i)%2 == 0 {
					side = models.Sell
				}
				o, err := models.NewOrder(models.OrderParams{
					UserID:   w,
					Symbol:   btc,
					Side:     side,
					Price:    usd(int64(95 + i%10)),
					Quantity: decimal.New(int64(1+i%3), 0),
				})
				if err != nil {
					t.Error(err)
					return
				}
				if err := b.AddOrder(o); err != nil {
					t.Error(err)
					return
				}
				if i%7 == 0 {
					b.CancelOrder(o.ID())
				}
				if _, err := b.Match(); err != nil {
					t.Error(err)
					return
				}
				b.MarketDepth(5)
			}
		}(w)
	}
	wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, len(b.orders), b.bids.OrderCount()+b.asks.OrderCount())

	bidVolume := decimal.Zero
	for _, o := range b.orders {
		assert.True(t, o.IsActive())
		if o.Side() == models.Buy {
			bidVolume = bidVolume.Add(o.RemainingQuantity())
		}
	}
	assert.True(t, bidVolume.Equal(b.bids.TotalVolume()))

	bid, okBid := b.bids.BestPrice()
	ask, okAsk := b.asks.BestPrice()
	if okBid && okAsk {
		assert.True(t, bid.IsLessThan(ask), "book left crossed: %s >= %s", bid, ask)
	}
}
