package exchange

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/book"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

// LevelSnapshot aggregates one price level
type LevelSnapshot struct {
	Price    money.Money     `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth is the top of both sides of a book
type Depth struct {
	Symbol    models.Symbol   `json:"symbol"`
	Bids      []LevelSnapshot `json:"bids"`
	Asks      []LevelSnapshot `json:"asks"`
	Timestamp time.Time       `json:"timestamp"`
}

// Summary is the headline view of a book
type Summary struct {
	Symbol    models.Symbol   `json:"symbol"`
	BestBid   *money.Money    `json:"best_bid,omitempty"`
	BestAsk   *money.Money    `json:"best_ask,omitempty"`
	Spread    *money.Money    `json:"spread,omitempty"`
	BidVolume decimal.Decimal `json:"bid_volume"`
	AskVolume decimal.Decimal `json:"ask_volume"`
	Orders    int             `json:"orders"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MarketDepth copies the n best levels of each side. n <= 0 copies all.
func (b *OrderBook) MarketDepth(n int) Depth {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Depth{
		Symbol:    b.symbol,
		Bids:      snapshotLevels(b.bids.TopLevels(n)),
		Asks:      snapshotLevels(b.asks.TopLevels(n)),
		Timestamp: time.Now(),
	}
}

func snapshotLevels(levels []*book.PriceLevel) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, len(levels))
	for _, l := range levels {
		out = append(out, LevelSnapshot{
			Price:    l.Price(),
			Quantity: l.TotalQuantity(),
			Orders:   l.OrderCount(),
		})
	}
	return out
}

// Summary reports best prices, spread and volumes
func (b *OrderBook) Summary() Summary {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Summary{
		Symbol:    b.symbol,
		BidVolume: b.bids.TotalVolume(),
		AskVolume: b.asks.TotalVolume(),
		Orders:    b.bids.OrderCount() + b.asks.OrderCount(),
		UpdatedAt: b.updatedAt,
	}
	if bid, ok := b.bids.BestPrice(); ok {
		s.BestBid = &bid
	}
	if ask, ok := b.asks.BestPrice(); ok {
		s.BestAsk = &ask
	}
	if spread, ok := b.spread(); ok {
		s.Spread = &spread
	}
	return s
}
