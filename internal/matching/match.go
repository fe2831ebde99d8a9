package matching

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

// OrderMatch is a priced and sized candidate pairing of a buy and a sell
// order. It only lives for one matching cycle. Invalid candidates carry
// the reason they were rejected.
type OrderMatch struct {
	buy       *models.Order
	sell      *models.Order
	quantity  decimal.Decimal
	price     money.Money
	valid     bool
	reason    string
	createdAt time.Time
}

// NewOrderMatch sizes the pair at min(buy remaining, sell remaining) and
// prices it with the policy.
func NewOrderMatch(buy, sell *models.Order, pricing PricingPolicy) *OrderMatch {
	m := &OrderMatch{buy: buy, sell: sell, createdAt: time.Now()}
	if reason := rejectReason(buy, sell); reason != "" {
		m.reason = reason
		return m
	}
	if pricing == nil {
		pricing = Midpoint
	}

	price, err := pricing(buy, sell)
	if err != nil {
		m.reason = err.Error()
		return m
	}
	if price.IsLessThan(sell.Price()) || price.IsGreaterThan(buy.Price()) {
		m.reason = "suggested price " + price.String() + " outside the limit prices"
		return m
	}

	m.price = price
	m.quantity = decimal.Min(buy.RemainingQuantity(), sell.RemainingQuantity())
	m.valid = true
	return m
}

func rejectReason(buy, sell *models.Order) string {
	switch {
	case buy == nil || sell == nil:
		return "missing order"
	case buy.Side() != models.Buy || sell.Side() != models.Sell:
		return "orders are not a buy/sell pair"
	case buy.Symbol() != sell.Symbol():
		return "symbol mismatch"
	case !buy.IsActive():
		return "buy order is not active"
	case !sell.IsActive():
		return "sell order is not active"
	case buy.Price().IsLessThan(sell.Price()):
		return "buy price is less than sell price"
	}
	return ""
}

func (m *OrderMatch) BuyOrder() *models.Order   { return m.buy }
func (m *OrderMatch) SellOrder() *models.Order  { return m.sell }
func (m *OrderMatch) Quantity() decimal.Decimal { return m.quantity }
func (m *OrderMatch) Price() money.Money        { return m.price }
func (m *OrderMatch) IsValid() bool             { return m.valid }
func (m *OrderMatch) Reason() string            { return m.reason }
func (m *OrderMatch) CreatedAt() time.Time      { return m.createdAt }

// Symbol of the matched orders
func (m *OrderMatch) Symbol() models.Symbol {
	if m.buy == nil {
		return ""
	}
	return m.buy.Symbol()
}

// TotalValue is price times quantity
func (m *OrderMatch) TotalValue() money.Money {
	return m.price.Multiply(m.quantity)
}

// CalculatePriceWithAggressor prices the pair at the resting order's limit
func (m *OrderMatch) CalculatePriceWithAggressor() (money.Money, error) {
	return RestingOrder(m.buy, m.sell)
}
