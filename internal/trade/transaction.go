package trade

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/models"
	"github.com/xtrntr/matchengine/internal/money"
)

var half = decimal.New(5, -1)

// DetermineExecutionPrice returns the exact midpoint of the buy and sell
// prices. Halving adds one decimal place, so it always lies within the limits.
func DetermineExecutionPrice(buy, sell *models.Order) (money.Money, error) {
	if buy == nil || sell == nil {
		return money.Money{}, models.ArgumentError("buy and sell orders are required")
	}
	if buy.Price().IsLessThan(sell.Price()) {
		return money.Money{}, models.ArgumentError("orders cannot match: buy price is less than sell price")
	}
	return buy.Price().Add(sell.Price()).Multiply(half), nil
}

// Params describes an execution between two orders
type Params struct {
	ID        uuid.UUID // generated when zero
	Symbol    models.Symbol
	Buy       *models.Order
	Sell      *models.Order
	Price     money.Money
	Quantity  decimal.Decimal
	CreatedAt time.Time // defaults to now
}

// Transaction is an executed trade. Creating one is the only way an
// execution is applied to the two orders involved.
type Transaction struct {
	id        uuid.UUID
	symbol    models.Symbol
	buy       *models.Order
	sell      *models.Order
	price     money.Money
	quantity  decimal.Decimal
	createdAt time.Time
}

// New validates the execution and applies it to both orders. On error
// neither order is touched.
func New(p Params) (*Transaction, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	if err := p.Buy.UpdateExecution(p.Quantity); err != nil {
		return nil, fmt.Errorf("failed to execute buy order %s: %w", p.Buy.ID(), err)
	}
	if err := p.Sell.UpdateExecution(p.Quantity); err != nil {
		return nil, fmt.Errorf("failed to execute sell order %s: %w", p.Sell.ID(), err)
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Transaction{
		id:        id,
		symbol:    p.Symbol,
		buy:       p.Buy,
		sell:      p.Sell,
		price:     p.Price,
		quantity:  p.Quantity,
		createdAt: createdAt,
	}, nil
}

func validate(p Params) error {
	buy, sell := p.Buy, p.Sell
	if buy == nil || sell == nil {
		return models.ArgumentError("buy and sell orders are required")
	}
	if buy == sell || buy.ID() == sell.ID() {
		return models.ArgumentError("an order cannot trade with itself")
	}
	if buy.Side() != models.Buy || sell.Side() != models.Sell {
		return models.ArgumentError("expected a buy and a sell order, got %s and %s", buy.Side(), sell.Side())
	}
	if buy.Symbol() != sell.Symbol() || buy.Symbol() != p.Symbol {
		return models.ArgumentError("symbol mismatch: transaction %s, buy %s, sell %s", p.Symbol, buy.Symbol(), sell.Symbol())
	}
	if p.Price.Currency() != p.Symbol.Quote() {
		return models.ArgumentError("execution price currency %s does not match quote currency %s", p.Price.Currency(), p.Symbol.Quote())
	}
	if buy.Price().IsLessThan(sell.Price()) {
		return models.ArgumentError("orders cannot match: buy price is less than sell price")
	}
	if p.Price.IsLessThan(sell.Price()) || p.Price.IsGreaterThan(buy.Price()) {
		return models.ArgumentError("execution price %s outside [%s, %s]", p.Price, sell.Price(), buy.Price())
	}
	for _, o := range []*models.Order{buy, sell} {
		if err := executionBlocked(o); err != nil {
			return err
		}
	}
	if !p.Quantity.IsPositive() {
		return models.ArgumentError("execution quantity must be positive")
	}
	if p.Quantity.GreaterThan(buy.RemainingQuantity()) || p.Quantity.GreaterThan(sell.RemainingQuantity()) {
		return models.ArgumentError("execution quantity %s exceeds remaining quantity (buy %s, sell %s)",
			p.Quantity, buy.RemainingQuantity(), sell.RemainingQuantity())
	}
	return nil
}

// executionBlocked reports why an order cannot take part in an execution.
// Terminal orders surface their state error.
func executionBlocked(o *models.Order) error {
	switch o.Status() {
	case models.StatusFilled:
		return fmt.Errorf("%s order %s: %w", o.Side(), o.ID(), models.ErrAlreadyFilled)
	case models.StatusCancelled:
		return fmt.Errorf("%s order %s: %w", o.Side(), o.ID(), models.ErrFillCancelled)
	}
	if !o.IsActive() {
		return models.ArgumentError("%s order %s is not active", o.Side(), o.ID())
	}
	return nil
}

func (t *Transaction) ID() uuid.UUID             { return t.id }
func (t *Transaction) Symbol() models.Symbol     { return t.symbol }
func (t *Transaction) BuyOrder() *models.Order   { return t.buy }
func (t *Transaction) SellOrder() *models.Order  { return t.sell }
func (t *Transaction) Price() money.Money        { return t.price }
func (t *Transaction) Quantity() decimal.Decimal { return t.quantity }
func (t *Transaction) CreatedAt() time.Time      { return t.createdAt }

// TotalValue is price times quantity
func (t *Transaction) TotalValue() money.Money {
	return t.price.Multiply(t.quantity)
}

// Record is the persisted form of a transaction
type Record struct {
	ID          uuid.UUID       `json:"id"`
	Symbol      models.Symbol   `json:"symbol"`
	BuyOrderID  uuid.UUID       `json:"buy_order_id"`
	SellOrderID uuid.UUID       `json:"sell_order_id"`
	Price       money.Money     `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// Record returns the transaction without its order references
func (t *Transaction) Record() Record {
	return Record{
		ID:          t.id,
		Symbol:      t.symbol,
		BuyOrderID:  t.buy.ID(),
		SellOrderID: t.sell.ID(),
		Price:       t.price,
		Quantity:    t.quantity,
		ExecutedAt:  t.createdAt,
	}
}

// MarshalJSON encodes the record form
func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Record())
}
