package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/matchengine/internal/money"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// ParseOrderStatus validates a persisted status name
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusPartial, StatusFilled, StatusCancelled:
		return st, nil
	}
	return "", ArgumentError("unknown order status %q", s)
}

// Order is a limit order. Once handed to an order book it must only be
// mutated under that book's lock.
type Order struct {
	id        uuid.UUID
	userID    int
	symbol    Symbol
	side      Side
	price     money.Money
	quantity  decimal.Decimal
	executed  decimal.Decimal
	status    OrderStatus
	createdAt time.Time
	updatedAt time.Time
}

// OrderParams describes a new order
type OrderParams struct {
	ID        uuid.UUID // generated when zero
	UserID    int
	Symbol    Symbol
	Side      Side
	Price     money.Money
	Quantity  decimal.Decimal
	CreatedAt time.Time // defaults to now
}

// NewOrder creates a pending order
func NewOrder(p OrderParams) (*Order, error) {
	symbol, err := ParseSymbol(string(p.Symbol))
	if err != nil {
		return nil, err
	}
	side, err := ParseSide(string(p.Side))
	if err != nil {
		return nil, err
	}
	p.Symbol, p.Side = symbol, side
	if p.Price.Currency() != p.Symbol.Quote() {
		return nil, ArgumentError("price currency %s does not match %s quote currency %s",
			p.Price.Currency(), p.Symbol, p.Symbol.Quote())
	}
	if !p.Price.IsPositive() {
		return nil, ArgumentError("price must be positive")
	}
	if !p.Quantity.IsPositive() {
		return nil, ArgumentError("quantity must be positive")
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return &Order{
		id:        id,
		userID:    p.UserID,
		symbol:    p.Symbol,
		side:      p.Side,
		price:     p.Price,
		quantity:  p.Quantity,
		executed:  decimal.Zero,
		status:    StatusPending,
		createdAt: createdAt,
		updatedAt: createdAt,
	}, nil
}

// RestoreOrder rebuilds an order loaded from storage
func RestoreOrder(p OrderParams, executed decimal.Decimal, status OrderStatus, updatedAt time.Time) (*Order, error) {
	o, err := NewOrder(p)
	if err != nil {
		return nil, err
	}
	if executed.IsNegative() || executed.GreaterThan(p.Quantity) {
		return nil, ArgumentError("executed quantity %s outside [0, %s]", executed, p.Quantity)
	}
	o.executed = executed
	o.status = status
	o.updatedAt = updatedAt
	return o, nil
}

func (o *Order) ID() uuid.UUID                     { return o.id }
func (o *Order) UserID() int                       { return o.userID }
func (o *Order) Symbol() Symbol                    { return o.symbol }
func (o *Order) Side() Side                        { return o.side }
func (o *Order) Price() money.Money                { return o.price }
func (o *Order) Quantity() decimal.Decimal         { return o.quantity }
func (o *Order) Status() OrderStatus               { return o.status }
func (o *Order) CreatedAt() time.Time              { return o.createdAt }
func (o *Order) UpdatedAt() time.Time              { return o.updatedAt }
func (o *Order) ExecutedQuantity() decimal.Decimal { return o.executed }

// RemainingQuantity is quantity minus executed quantity, never negative
func (o *Order) RemainingQuantity() decimal.Decimal {
	r := o.quantity.Sub(o.executed)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// IsActive reports a non-terminal order with quantity left to execute
func (o *Order) IsActive() bool {
	return !o.status.IsTerminal() && o.RemainingQuantity().IsPositive()
}

// fillBlocked returns the error for fill-type transitions out of a terminal state
func (o *Order) fillBlocked() error {
	switch o.status {
	case StatusFilled:
		return ErrAlreadyFilled
	case StatusCancelled:
		return ErrFillCancelled
	}
	return nil
}

// cancelBlocked returns the error for cancel-type transitions out of a terminal state
func (o *Order) cancelBlocked() error {
	switch o.status {
	case StatusFilled:
		return ErrCancelFilled
	case StatusCancelled:
		return ErrAlreadyCancelled
	}
	return nil
}

func (o *Order) touch() { o.updatedAt = time.Now() }

// FillPartial moves PENDING to PARTIAL; PARTIAL stays PARTIAL
func (o *Order) FillPartial() error {
	if err := o.fillBlocked(); err != nil {
		return err
	}
	o.status = StatusPartial
	o.touch()
	return nil
}

// Complete moves a non-terminal order to FILLED
func (o *Order) Complete() error {
	if err := o.fillBlocked(); err != nil {
		return err
	}
	o.status = StatusFilled
	o.touch()
	return nil
}

// Cancel moves a non-terminal order to CANCELLED
func (o *Order) Cancel() error {
	if err := o.cancelBlocked(); err != nil {
		return err
	}
	o.status = StatusCancelled
	o.touch()
	return nil
}

// CancelPartial is the status no-op used for partial-quantity cancellation
func (o *Order) CancelPartial() error {
	return o.cancelBlocked()
}

// Reduce cancels part of the remaining quantity without changing status.
// Cancelling all of it must go through Cancel.
func (o *Order) Reduce(amount decimal.Decimal) error {
	if err := o.CancelPartial(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ArgumentError("reduce amount must be positive")
	}
	if !amount.LessThan(o.RemainingQuantity()) {
		return ArgumentError("reduce amount %s must be below remaining quantity %s", amount, o.RemainingQuantity())
	}
	o.quantity = o.quantity.Sub(amount)
	o.touch()
	return nil
}

// UpdateExecution records an execution of amount and drives the status
func (o *Order) UpdateExecution(amount decimal.Decimal) error {
	if err := o.fillBlocked(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return ArgumentError("execution quantity must be positive")
	}
	if amount.GreaterThan(o.RemainingQuantity()) {
		return ArgumentError("execution quantity %s exceeds remaining quantity %s", amount, o.RemainingQuantity())
	}

	o.executed = o.executed.Add(amount)
	if o.RemainingQuantity().IsZero() {
		return o.Complete()
	}
	return o.FillPartial()
}

// UpdatePrice reprices a live order
func (o *Order) UpdatePrice(newPrice money.Money) error {
	switch o.status {
	case StatusFilled:
		return ErrAlreadyFilled
	case StatusCancelled:
		return ErrAlreadyCancelled
	}
	if newPrice.Currency() != o.symbol.Quote() {
		return ArgumentError("price currency %s does not match quote currency %s", newPrice.Currency(), o.symbol.Quote())
	}
	if !newPrice.IsPositive() {
		return ArgumentError("price must be positive")
	}
	o.price = newPrice
	o.touch()
	return nil
}

// OrderSnapshot is a point-in-time copy of an order, safe to read
// outside the owning book's lock
type OrderSnapshot struct {
	ID        uuid.UUID       `json:"id"`
	UserID    int             `json:"user_id"`
	Symbol    Symbol          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     money.Money     `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Executed  decimal.Decimal `json:"executed_quantity"`
	Remaining decimal.Decimal `json:"remaining_quantity"`
	Status    OrderStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot copies the order's current state
func (o *Order) Snapshot() OrderSnapshot {
	return OrderSnapshot{
		ID:        o.id,
		UserID:    o.userID,
		Symbol:    o.symbol,
		Side:      o.side,
		Price:     o.price,
		Quantity:  o.quantity,
		Executed:  o.executed,
		Remaining: o.RemainingQuantity(),
		Status:    o.status,
		CreatedAt: o.createdAt,
		UpdatedAt: o.updatedAt,
	}
}

// MarshalJSON encodes the order's snapshot
func (o *Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Snapshot())
}
