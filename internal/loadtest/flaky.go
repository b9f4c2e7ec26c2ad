package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/types"
)

// FlakyGateway fails a random fraction of calls before they reach the
// wrapped gateway, so a failed call never has a remote side effect.
type FlakyGateway struct {
	next remote.Gateway

	mu       sync.Mutex
	rng      *rand.Rand
	failRate float64
	failed   int
	passed   int
}

// NewFlakyGateway wraps next.
func NewFlakyGateway(next remote.Gateway, failRate float64, seed int64) *FlakyGateway {
	return &FlakyGateway{
		next:     next,
		rng:      rand.New(rand.NewSource(seed)),
		failRate: failRate,
	}
}

// SetFailRate changes the failure fraction.
func (g *FlakyGateway) SetFailRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failRate = rate
}

// Counts returns how many calls failed and passed.
func (g *FlakyGateway) Counts() (failed, passed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failed, g.passed
}

func (g *FlakyGateway) roll(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failRate > 0 && g.rng.Float64() < g.failRate {
		g.failed++
		return fmt.Errorf("%w: %s: injected failure", types.ErrRemoteUnavailable, op)
	}
	g.passed++
	return nil
}

// Create implements remote.Gateway.
func (g *FlakyGateway) Create(ctx context.Context, f types.Fields) (remote.Record, error) {
	if err := g.roll("create"); err != nil {
		return remote.Record{}, err
	}
	return g.next.Create(ctx, f)
}

// List implements remote.Gateway.
func (g *FlakyGateway) List(ctx context.Context) ([]remote.Record, error) {
	if err := g.roll("list"); err != nil {
		return nil, err
	}
	return g.next.List(ctx)
}

// Update implements remote.Gateway.
func (g *FlakyGateway) Update(ctx context.Context, id string, f types.Fields) error {
	if err := g.roll("update"); err != nil {
		return err
	}
	return g.next.Update(ctx, id, f)
}

// Delete implements remote.Gateway.
func (g *FlakyGateway) Delete(ctx context.Context, id string) error {
	if err := g.roll("delete"); err != nil {
		return err
	}
	return g.next.Delete(ctx, id)
}
