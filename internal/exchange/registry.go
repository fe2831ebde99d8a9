package exchange

import (
	"sort"
	"sync"

	"github.com/xtrntr/matchengine/internal/models"
)

// BookFactory builds the book for a symbol seen for the first time
type BookFactory func(symbol models.Symbol) *OrderBook

// Registry owns one OrderBook per symbol
type Registry struct {
	mu      sync.RWMutex
	books   map[models.Symbol]*OrderBook
	factory BookFactory
}

// NewRegistry creates an empty registry
func NewRegistry(factory BookFactory) *Registry {
	if factory == nil {
		factory = func(symbol models.Symbol) *OrderBook { return NewOrderBook(symbol, nil, nil) }
	}
	return &Registry{
		books:   make(map[models.Symbol]*OrderBook),
		factory: factory,
	}
}

// GetOrCreate returns the symbol's book, creating it exactly once
func (r *Registry) GetOrCreate(symbol models.Symbol) *OrderBook {
	r.mu.RLock()
	b, ok := r.books[symbol]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.books[symbol]; ok {
		return b
	}
	b = r.factory(symbol)
	r.books[symbol] = b
	return b
}

// Get returns the symbol's book if it exists
func (r *Registry) Get(symbol models.Symbol) (*OrderBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[symbol]
	return b, ok
}

// Symbols lists the symbols with a book, sorted
func (r *Registry) Symbols() []models.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Symbol, 0, len(r.books))
	for s := range r.books {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Overview summarises every book. Books are locked one at a time, so the
// result is not a single point in time.
func (r *Registry) Overview() []Summary {
	symbols := r.Symbols()
	out := make([]Summary, 0, len(symbols))
	for _, s := range symbols {
		if b, ok := r.Get(s); ok {
			out = append(out, b.Summary())
		}
	}
	return out
}
