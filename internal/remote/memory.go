package remote

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// MemoryGateway is an in-process Gateway. Ids are minted from a counter
// unless NewID is set. It can be switched unavailable, or told to fail a
// number of upcoming calls, to exercise retry paths.
type MemoryGateway struct {
	// NewID mints canonical ids. Defaults to "1", "2", ...
	NewID func() string

	mu        sync.Mutex
	records   map[string]types.Fields
	seq       int
	available bool
	failNext  int
	failWith  error
	calls     map[string]int
}

// NewMemoryGateway returns an empty, available gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		records:   make(map[string]types.Fields),
		available: true,
		calls:     make(map[string]int),
	}
}

// SetAvailable switches every call to fail (false) or succeed (true).
func (g *MemoryGateway) SetAvailable(available bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.available = available
}

// FailNext makes the next n calls fail with ErrRemoteUnavailable.
func (g *MemoryGateway) FailNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
	g.failWith = types.ErrRemoteUnavailable
}

// RejectNext makes the next n calls fail with ErrRejected.
func (g *MemoryGateway) RejectNext(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
	g.failWith = types.ErrRejected
}

// Calls returns how many times op (create, list, update, delete) was invoked.
func (g *MemoryGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Seed stores a record under a fixed id.
func (g *MemoryGateway) Seed(id string, f types.Fields) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[id] = f
}

// Len returns the number of stored records.
func (g *MemoryGateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Lookup returns the stored fields of id.
func (g *MemoryGateway) Lookup(id string) (types.Fields, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.records[id]
	return f, ok
}

// enter records the call and reports whether it should fail. Caller holds mu.
func (g *MemoryGateway) enter(ctx context.Context, op string) error {
	g.calls[op]++
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrRemoteUnavailable, op, err)
	}
	if !g.available {
		return fmt.Errorf("%w: %s: gateway offline", types.ErrRemoteUnavailable, op)
	}
	if g.failNext > 0 {
		g.failNext--
		return fmt.Errorf("%w: %s: injected failure", g.failWith, op)
	}
	return nil
}

// Create implements Gateway.
func (g *MemoryGateway) Create(ctx context.Context, f types.Fields) (Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter(ctx, "create"); err != nil {
		return Record{}, err
	}

	var id string
	if g.NewID != nil {
		id = g.NewID()
	} else {
		g.seq++
		id = strconv.Itoa(g.seq)
	}
	g.records[id] = f
	return Record{ID: id, Fields: f}, nil
}

// List implements Gateway. Records are returned ordered by id.
func (g *MemoryGateway) List(ctx context.Context) ([]Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter(ctx, "list"); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(g.records))
	for id, f := range g.records {
		out = append(out, Record{ID: id, Fields: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update implements Gateway.
func (g *MemoryGateway) Update(ctx context.Context, id string, f types.Fields) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter(ctx, "update"); err != nil {
		return err
	}
	if _, ok := g.records[id]; !ok {
		return fmt.Errorf("update %s: %w", id, types.ErrNotFound)
	}
	g.records[id] = f
	return nil
}

// Delete implements Gateway.
func (g *MemoryGateway) Delete(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.enter(ctx, "delete"); err != nil {
		return err
	}
	delete(g.records, id)
	return nil
}

// Health implements Prober.
func (g *MemoryGateway) Health(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.available {
		return fmt.Errorf("%w: gateway offline", types.ErrRemoteUnavailable)
	}
	return nil
}
