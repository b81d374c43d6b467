package risk

import (
	"math"
	"sync"
)

// PriceSource supplies reference market prices
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// ExposureSource supplies current held exposure
type ExposureSource interface {
	SymbolExposure(symbol string) float64
	TotalExposure() float64
}

// PriceBook is a concurrency-safe last-price store
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]float64)}
}

// Update stores a price; non-positive or non-finite prices are ignored
func (b *PriceBook) Update(symbol string, price float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}
	b.mu.Lock()
	b.prices[symbol] = price
	b.mu.Unlock()
}

func (b *PriceBook) LastPrice(symbol string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	price, ok := b.prices[symbol]
	return price, ok
}

// ExposureBook holds per-symbol absolute exposure derived from a position snapshot
type ExposureBook struct {
	mu       sync.RWMutex
	bySymbol map[string]float64
	total    float64
}

func NewExposureBook() *ExposureBook {
	return &ExposureBook{bySymbol: make(map[string]float64)}
}

// Replace swaps in exposure computed from a fresh snapshot
func (b *ExposureBook) Replace(positions []Position) {
	bySymbol := make(map[string]float64, len(positions))
	var total float64
	for _, p := range positions {
		amount := math.Abs(p.Amount())
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			continue
		}
		bySymbol[p.Symbol] += amount
		total += amount
	}

	b.mu.Lock()
	b.bySymbol = bySymbol
	b.total = total
	b.mu.Unlock()
}

func (b *ExposureBook) SymbolExposure(symbol string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bySymbol[symbol]
}

func (b *ExposureBook) TotalExposure() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}
