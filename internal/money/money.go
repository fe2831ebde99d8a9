package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept by Divide
const Scale = 8

// Money is a decimal amount tagged with a currency code
type Money struct {
	amount   decimal.Decimal
	currency string
}

// New creates a money value
func New(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount, currency: currency}
}

// NewFromInt creates a money value from an integer amount
func NewFromInt(amount int64, currency string) Money {
	return Money{amount: decimal.NewFromInt(amount), currency: currency}
}

// NewFromString parses a decimal amount
func NewFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("failed to parse amount %q: %w", amount, err)
	}
	return Money{amount: d, currency: currency}, nil
}

// Zero returns a zero amount in the given currency
func Zero(currency string) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency code
func (m Money) Currency() string { return m.currency }

// SameCurrency reports whether both values carry the same currency
func (m Money) SameCurrency(o Money) bool { return m.currency == o.currency }

func (m Money) mustMatch(o Money) {
	if m.currency != o.currency {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", m.currency, o.currency))
	}
}

// Add returns m + o
func (m Money) Add(o Money) Money {
	m.mustMatch(o)
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}
}

// Subtract returns m - o
func (m Money) Subtract(o Money) Money {
	m.mustMatch(o)
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}
}

// Multiply scales the amount by a quantity
func (m Money) Multiply(q decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(q), currency: m.currency}
}

// Divide divides the amount, rounding to Scale places. Panics on a zero divisor.
func (m Money) Divide(q decimal.Decimal) Money {
	return Money{amount: m.amount.DivRound(q, Scale), currency: m.currency}
}

// Cmp compares two same-currency amounts
func (m Money) Cmp(o Money) int {
	m.mustMatch(o)
	return m.amount.Cmp(o.amount)
}

// Equal compares amount and currency
func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

func (m Money) IsLessThan(o Money) bool           { return m.Cmp(o) < 0 }
func (m Money) IsGreaterThan(o Money) bool        { return m.Cmp(o) > 0 }
func (m Money) IsGreaterThanOrEqual(o Money) bool { return m.Cmp(o) >= 0 }
func (m Money) IsPositive() bool                  { return m.amount.IsPositive() }
func (m Money) IsZero() bool                      { return m.amount.IsZero() }

// String formats the value as "101.5 USD"
func (m Money) String() string {
	return m.amount.String() + " " + m.currency
}

type moneyJSON struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// MarshalJSON encodes the amount as a string to keep precision
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount, Currency: m.currency})
}

// UnmarshalJSON decodes {"amount": "...", "currency": "..."}
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.amount = v.Amount
	m.currency = v.Currency
	return nil
}
