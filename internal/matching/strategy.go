package matching

import "github.com/xtrntr/matchengine/internal/models"

// TopOfBook exposes the best order on each side of a book
type TopOfBook interface {
	BestBuyOrder() *models.Order
	BestSellOrder() *models.Order
}

// Strategy decides whether two orders may trade and builds the candidate.
// Traversal of the book is left to an Algorithm.
type Strategy interface {
	CanMatch(buy, sell *models.Order) bool
	// NewCandidate returns nil when the pair cannot match
	NewCandidate(buy, sell *models.Order) *OrderMatch
	FindMatchCandidates(book TopOfBook) []*OrderMatch
}

// PriceTimeStrategy matches by strict price-time priority
type PriceTimeStrategy struct {
	Pricing PricingPolicy
}

// NewPriceTimeStrategy creates a strategy using the pricing policy
func NewPriceTimeStrategy(pricing PricingPolicy) *PriceTimeStrategy {
	if pricing == nil {
		pricing = Midpoint
	}
	return &PriceTimeStrategy{Pricing: pricing}
}

// CanMatch requires the same symbol, crossing prices and two active orders
func (s *PriceTimeStrategy) CanMatch(buy, sell *models.Order) bool {
	if buy == nil || sell == nil {
		return false
	}
	return buy.Symbol() == sell.Symbol() &&
		buy.Price().IsGreaterThanOrEqual(sell.Price()) &&
		buy.IsActive() && sell.IsActive() &&
		buy.RemainingQuantity().IsPositive() && sell.RemainingQuantity().IsPositive()
}

func (s *PriceTimeStrategy) NewCandidate(buy, sell *models.Order) *OrderMatch {
	if !s.CanMatch(buy, sell) {
		return nil
	}
	m := NewOrderMatch(buy, sell, s.Pricing)
	if !m.IsValid() {
		return nil
	}
	return m
}

// FindMatchCandidates only looks at the best bid and ask
func (s *PriceTimeStrategy) FindMatchCandidates(book TopOfBook) []*OrderMatch {
	m := s.NewCandidate(book.BestBuyOrder(), book.BestSellOrder())
	if m == nil {
		return nil
	}
	return []*OrderMatch{m}
}
