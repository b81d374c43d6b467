package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ducminhle1904/capital-guard/internal/risk"
)

// PositionProvider returns a snapshot of positions from one source of truth
type PositionProvider interface {
	Positions(ctx context.Context) ([]risk.Position, error)
	Position(ctx context.Context, symbol string) (risk.Position, error)
	SourceName() string
}

// SnapshotProvider serves the locally estimated positions. Callers replace or
// adjust the snapshot as their own books change.
type SnapshotProvider struct {
	mu        sync.RWMutex
	name      string
	positions map[string]risk.Position
}

func NewSnapshotProvider(name string) *SnapshotProvider {
	return &SnapshotProvider{name: name, positions: make(map[string]risk.Position)}
}

func (p *SnapshotProvider) SourceName() string { return p.name }

// Set stores or replaces one position
func (p *SnapshotProvider) Set(position risk.Position) {
	p.mu.Lock()
	p.positions[position.Symbol] = position
	p.mu.Unlock()
}

// Replace swaps the whole snapshot
func (p *SnapshotProvider) Replace(positions []risk.Position) {
	next := make(map[string]risk.Position, len(positions))
	for _, position := range positions {
		next[position.Symbol] = position
	}
	p.mu.Lock()
	p.positions = next
	p.mu.Unlock()
}

func (p *SnapshotProvider) Remove(symbol string) {
	p.mu.Lock()
	delete(p.positions, symbol)
	p.mu.Unlock()
}

func (p *SnapshotProvider) Positions(context.Context) ([]risk.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]risk.Position, 0, len(p.positions))
	for _, position := range p.positions {
		out = append(out, position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (p *SnapshotProvider) Position(_ context.Context, symbol string) (risk.Position, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	position, ok := p.positions[symbol]
	if !ok {
		return risk.Position{}, fmt.Errorf("%s: no position for %s", p.name, symbol)
	}
	return position, nil
}
