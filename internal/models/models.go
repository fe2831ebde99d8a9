package models

import (
	"strings"
	"time"
)

// User represents a registered user
type User struct {
	ID           int
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Side is the book side an order rests on
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// ParseSide validates a side name
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(s)) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", ArgumentError("side must be 'buy' or 'sell', got %q", s)
}

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Symbol identifies an instrument as BASE-QUOTE, e.g. BTC-USD
type Symbol string

// ParseSymbol validates and normalizes a symbol
func ParseSymbol(s string) (Symbol, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	base, quote, ok := strings.Cut(s, "-")
	if !ok || base == "" || quote == "" || strings.Contains(quote, "-") {
		return "", ArgumentError("symbol must look like BASE-QUOTE, got %q", s)
	}
	return Symbol(s), nil
}

// Base returns the traded asset
func (s Symbol) Base() string {
	base, _, _ := strings.Cut(string(s), "-")
	return base
}

// Quote returns the currency prices are expressed in
func (s Symbol) Quote() string {
	_, quote, _ := strings.Cut(string(s), "-")
	return quote
}

func (s Symbol) String() string { return string(s) }
