package book

import (
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

// PriorityCalculator ranks prices and orders for one side of a book.
// IsPriceBetter must be a strict ordering: irreflexive and asymmetric.
type PriorityCalculator interface {
	Side() models.Side
	IsPriceBetter(a, b money.Money) bool
	IsHigherPriority(o1, o2 *models.Order) bool
}

// BidPriority ranks higher prices first
type BidPriority struct{}

func (BidPriority) Side() models.Side { return models.Buy }

func (BidPriority) IsPriceBetter(a, b money.Money) bool {
	return a.IsGreaterThan(b)
}

func (p BidPriority) IsHigherPriority(o1, o2 *models.Order) bool {
	return higherPriority(p, o1, o2)
}

// AskPriority ranks lower prices first
type AskPriority struct{}

func (AskPriority) Side() models.Side { return models.Sell }

func (AskPriority) IsPriceBetter(a, b money.Money) bool {
	return a.IsLessThan(b)
}

func (p AskPriority) IsHigherPriority(o1, o2 *models.Order) bool {
	return higherPriority(p, o1, o2)
}

// higherPriority applies price priority, then strict arrival order.
// Equal prices and equal timestamps are equal priority.
func higherPriority(c PriorityCalculator, o1, o2 *models.Order) bool {
	if c.IsPriceBetter(o1.Price(), o2.Price()) {
		return true
	}
	if c.IsPriceBetter(o2.Price(), o1.Price()) {
		return false
	}
	return o1.CreatedAt().Before(o2.CreatedAt())
}

// PriorityFor returns the calculator for a side
func PriorityFor(side models.Side) PriorityCalculator {
	if side == models.Buy {
		return BidPriority{}
	}
	return AskPriority{}
}
