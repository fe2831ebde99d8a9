package book

import (
	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

// LevelFactory builds the level for a newly seen price
type LevelFactory func(price money.Money) *PriceLevel

// PriceLevelManager keeps one side of a book as price levels ordered
// best-first. A price is present iff its level still holds an active order
// once the mutating call that emptied it returns.
type PriceLevelManager struct {
	calc    PriorityCalculator
	factory LevelFactory
	tree    *levelTree
}

// NewPriceLevelManager creates a manager ordered by calc
func NewPriceLevelManager(calc PriorityCalculator, factory LevelFactory) *PriceLevelManager {
	if factory == nil {
		side := calc.Side()
		factory = func(price money.Money) *PriceLevel { return NewPriceLevel(side, price) }
	}
	return &PriceLevelManager{
		calc:    calc,
		factory: factory,
		tree:    newLevelTree(calc.IsPriceBetter),
	}
}

// NewBidSideManager orders levels by descending price
func NewBidSideManager() *PriceLevelManager {
	return NewPriceLevelManager(BidPriority{}, nil)
}

// NewAskSideManager orders levels by ascending price
func NewAskSideManager() *PriceLevelManager {
	return NewPriceLevelManager(AskPriority{}, nil)
}

func (m *PriceLevelManager) Side() models.Side              { return m.calc.Side() }
func (m *PriceLevelManager) Calculator() PriorityCalculator { return m.calc }

// LevelCount is the number of price levels
func (m *PriceLevelManager) LevelCount() int { return m.tree.Len() }

// IsEmpty reports whether the side has no levels
func (m *PriceLevelManager) IsEmpty() bool { return m.tree.Len() == 0 }

// AddOrder queues the order at its price, creating the level if needed.
// Returns false when the level ignored the order.
func (m *PriceLevelManager) AddOrder(o *models.Order) (bool, error) {
	if o == nil {
		return false, models.ArgumentError("order is nil")
	}
	if o.Side() != m.calc.Side() {
		return false, models.ArgumentError("%s order %s routed to %s side", o.Side(), o.ID(), m.calc.Side())
	}
	existed := m.tree.Get(o.Price()) != nil
	level := m.tree.GetOrInsert(o.Price(), m.factory)
	added, err := level.AddOrder(o)
	if !existed && level.IsEmpty() {
		m.tree.Delete(o.Price())
	}
	return added, err
}

// RemoveOrder removes the order from its level and prunes the level if
// no active order is left. Stale orders dropped with the level are returned.
func (m *PriceLevelManager) RemoveOrder(o *models.Order) (bool, []*models.Order) {
	if o == nil {
		return false, nil
	}
	level := m.tree.Get(o.Price())
	if level == nil {
		return false, nil
	}
	removed := level.RemoveOrder(o)
	return removed, m.prune(level)
}

// Refresh recomputes the aggregates of the order's level after an
// execution, dropping the order if it is no longer active. Stale orders
// dropped with a pruned level are returned.
func (m *PriceLevelManager) Refresh(o *models.Order) []*models.Order {
	level := m.tree.Get(o.Price())
	if level == nil {
		return nil
	}
	if !o.IsActive() {
		level.RemoveOrder(o)
	} else {
		level.Refresh()
	}
	return m.prune(level)
}

// Sweep drops inactive orders from every level and prunes emptied levels
func (m *PriceLevelManager) Sweep() []*models.Order {
	var (
		removed []*models.Order
		empty   []money.Money
	)
	for n := m.tree.first(); n != m.tree.nil; n = m.tree.next(n) {
		removed = append(removed, n.level.RemoveInactiveOrders()...)
		if n.level.IsEmpty() {
			empty = append(empty, n.key)
		}
	}
	for _, p := range empty {
		m.tree.Delete(p)
	}
	return removed
}

func (m *PriceLevelManager) prune(level *PriceLevel) []*models.Order {
	if !level.IsEmpty() {
		return nil
	}
	m.tree.Delete(level.Price())
	return level.RemoveInactiveOrders()
}

// Level returns the level at price or nil
func (m *PriceLevelManager) Level(price money.Money) *PriceLevel {
	return m.tree.Get(price)
}

// Contains reports whether the order is queued on this side
func (m *PriceLevelManager) Contains(o *models.Order) bool {
	level := m.tree.Get(o.Price())
	return level != nil && level.Contains(o)
}

// BestPrice returns the first price in priority order
func (m *PriceLevelManager) BestPrice() (money.Money, bool) {
	n := m.tree.first()
	if n == m.tree.nil {
		return money.Money{}, false
	}
	return n.key, true
}

// BestLevel returns the first level in priority order or nil
func (m *PriceLevelManager) BestLevel() *PriceLevel {
	n := m.tree.first()
	if n == m.tree.nil {
		return nil
	}
	return n.level
}

// BestOrder returns the first active order at the best level, falling
// through levels that are waiting for a sweep.
func (m *PriceLevelManager) BestOrder() *models.Order {
	for n := m.tree.first(); n != m.tree.nil; n = m.tree.next(n) {
		if o := n.level.FirstActiveOrder(); o != nil {
			return o
		}
	}
	return nil
}

// TotalVolume sums the total quantity of every level
func (m *PriceLevelManager) TotalVolume() decimal.Decimal {
	total := decimal.Zero
	for n := m.tree.first(); n != m.tree.nil; n = m.tree.next(n) {
		total = total.Add(n.level.TotalQuantity())
	}
	return total
}

// OrderCount sums the active orders of every level
func (m *PriceLevelManager) OrderCount() int {
	count := 0
	for n := m.tree.first(); n != m.tree.nil; n = m.tree.next(n) {
		count += n.level.OrderCount()
	}
	return count
}

// TopLevels returns up to n levels best-first. n <= 0 returns every level.
func (m *PriceLevelManager) TopLevels(n int) []*PriceLevel {
	size := m.tree.Len()
	if n > 0 && n < size {
		size = n
	}
	levels := make([]*PriceLevel, 0, size)
	for c := m.Cursor(); c.Valid() && len(levels) < size; c.Next() {
		levels = append(levels, c.Level())
	}
	return levels
}

// Cursor walks the levels best-first without allocating. It is invalidated
// by any mutation of the manager.
func (m *PriceLevelManager) Cursor() LevelCursor {
	return LevelCursor{tree: m.tree, n: m.tree.first()}
}

// LevelCursor is a forward iterator over price levels
type LevelCursor struct {
	tree *levelTree
	n    *node
}

func (c *LevelCursor) Valid() bool        { return c.n != nil && c.n != c.tree.nil }
func (c *LevelCursor) Level() *PriceLevel { return c.n.level }
func (c *LevelCursor) Next()              { c.n = c.tree.next(c.n) }
