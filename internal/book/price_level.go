package book

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

// PriceLevel is a FIFO queue of orders at a single price.
// Inactive orders may sit in the queue until the next sweep but never
// count towards the aggregates or get matched.
type PriceLevel struct {
	price  money.Money
	side   models.Side
	orders []*models.Order

	orderCount    int
	totalQuantity decimal.Decimal
}

// NewPriceLevel creates an empty level
func NewPriceLevel(side models.Side, price money.Money) *PriceLevel {
	return &PriceLevel{
		price:         price,
		side:          side,
		totalQuantity: decimal.Zero,
	}
}

func (l *PriceLevel) Price() money.Money { return l.price }
func (l *PriceLevel) Side() models.Side  { return l.side }

// OrderCount is the number of active orders at this level
func (l *PriceLevel) OrderCount() int { return l.orderCount }

// TotalQuantity is the remaining quantity of the active orders
func (l *PriceLevel) TotalQuantity() decimal.Decimal { return l.totalQuantity }

// AddOrder appends an order to the tail of the queue. Inactive or
// duplicate orders are ignored and reported as not added. An order at
// another price is a caller bug and returns an argument error.
func (l *PriceLevel) AddOrder(o *models.Order) (bool, error) {
	if o == nil {
		return false, models.ArgumentError("order is nil")
	}
	if !o.Price().Equal(l.price) {
		return false, models.ArgumentError("order %s price %s does not match level price %s", o.ID(), o.Price(), l.price)
	}
	if !o.IsActive() || !o.RemainingQuantity().IsPositive() || l.indexOf(o) >= 0 {
		return false, nil
	}

	l.orders = append(l.orders, o)
	l.recalculate()
	return true, nil
}

// RemoveOrder removes an order by identity
func (l *PriceLevel) RemoveOrder(o *models.Order) bool {
	if o == nil {
		return false
	}
	i := l.indexOf(o)
	if i < 0 {
		return false
	}
	copy(l.orders[i:], l.orders[i+1:])
	l.orders[len(l.orders)-1] = nil
	l.orders = l.orders[:len(l.orders)-1]
	l.recalculate()
	return true
}

// RemoveInactiveOrders drops orders that were filled or cancelled since
// they were queued and returns them.
func (l *PriceLevel) RemoveInactiveOrders() []*models.Order {
	var removed []*models.Order
	kept := l.orders[:0]
	for _, o := range l.orders {
		if o.IsActive() {
			kept = append(kept, o)
		} else {
			removed = append(removed, o)
		}
	}
	for i := len(kept); i < len(l.orders); i++ {
		l.orders[i] = nil
	}
	l.orders = kept
	l.recalculate()
	return removed
}

// FirstActiveOrder returns the earliest queued active order without removing it
func (l *PriceLevel) FirstActiveOrder() *models.Order {
	for _, o := range l.orders {
		if o.IsActive() {
			return o
		}
	}
	return nil
}

// IsEmpty reports whether no active order is left, swept or not
func (l *PriceLevel) IsEmpty() bool {
	return l.FirstActiveOrder() == nil
}

// Contains reports whether the order is queued here
func (l *PriceLevel) Contains(o *models.Order) bool {
	return o != nil && l.indexOf(o) >= 0
}

// Refresh recomputes the aggregates after orders were executed in place
func (l *PriceLevel) Refresh() {
	l.recalculate()
}

// Orders returns a copy of the queue in arrival order. Allocates.
func (l *PriceLevel) Orders() []*models.Order {
	out := make([]*models.Order, len(l.orders))
	copy(out, l.orders)
	return out
}

func (l *PriceLevel) String() string {
	return fmt.Sprintf("%s %s x %s (%d orders)", l.side, l.price, l.totalQuantity, l.orderCount)
}

func (l *PriceLevel) indexOf(o *models.Order) int {
	for i, q := range l.orders {
		if q == o || q.ID() == o.ID() {
			return i
		}
	}
	return -1
}

func (l *PriceLevel) recalculate() {
	count := 0
	total := decimal.Zero
	for _, o := range l.orders {
		if o.IsActive() {
			count++
			total = total.Add(o.RemainingQuantity())
		}
	}
	l.orderCount = count
	l.totalQuantity = total
}
