package matching

import (
	"fmt"

	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
	"github.com/xtrntr/matchengine/internal/trade"
)

// PricingPolicy picks the execution price for a crossable pair. It must
// return a price within [sell, buy].
type PricingPolicy func(buy, sell *models.Order) (money.Money, error)

// Midpoint prices every execution halfway between the two limit prices
func Midpoint(buy, sell *models.Order) (money.Money, error) {
	return trade.DetermineExecutionPrice(buy, sell)
}

// RestingOrder lets the earlier order set the price. Equal timestamps
// fall back to the midpoint.
func RestingOrder(buy, sell *models.Order) (money.Money, error) {
	if buy == nil || sell == nil {
		return money.Money{}, models.ArgumentError("buy and sell orders are required")
	}
	if buy.Price().IsLessThan(sell.Price()) {
		return money.Money{}, models.ArgumentError("orders cannot match: buy price is less than sell price")
	}
	switch {
	case buy.CreatedAt().Before(sell.CreatedAt()):
		return buy.Price(), nil
	case sell.CreatedAt().Before(buy.CreatedAt()):
		return sell.Price(), nil
	}
	return trade.DetermineExecutionPrice(buy, sell)
}

const (
	PricingMidpoint = "midpoint"
	PricingResting  = "resting"
)

// ParsePricingPolicy resolves a configured policy name
func ParsePricingPolicy(name string) (PricingPolicy, error) {
	switch name {
	case "", PricingMidpoint:
		return Midpoint, nil
	case PricingResting:
		return RestingOrder, nil
	}
	return nil, fmt.Errorf("unknown pricing policy %q", name)
}
