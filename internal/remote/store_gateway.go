package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mschirtzinger/stockroom/internal/store"
	"github.com/mschirtzinger/stockroom/internal/types"
)

// StoreGateway is an authoritative Gateway persisted in a SQLite store.
// It backs the reference server; every record it holds is synced and
// canonical ids are random UUIDs.
type StoreGateway struct {
	st *store.Store
}

// NewStoreGateway wraps an opened store.
func NewStoreGateway(st *store.Store) *StoreGateway {
	return &StoreGateway{st: st}
}

// Create implements Gateway.
func (g *StoreGateway) Create(ctx context.Context, f types.Fields) (Record, error) {
	if err := f.Validate(); err != nil {
		return Record{}, err
	}
	id := uuid.NewString()
	if err := g.st.Put(ctx, types.NewSynced(id, f)); err != nil {
		return Record{}, fmt.Errorf("failed to create record: %w", err)
	}
	return Record{ID: id, Fields: f}, nil
}

// List implements Gateway.
func (g *StoreGateway) List(ctx context.Context) ([]Record, error) {
	items, err := g.st.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, Record{ID: it.ID, Fields: it.Fields})
	}
	return out, nil
}

// Update implements Gateway.
func (g *StoreGateway) Update(ctx context.Context, id string, f types.Fields) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if _, err := g.st.Get(ctx, id); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("update %s: %w", id, types.ErrNotFound)
		}
		return fmt.Errorf("failed to load record %s: %w", id, err)
	}
	if err := g.st.Put(ctx, types.NewSynced(id, f)); err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	return nil
}

// Delete implements Gateway.
func (g *StoreGateway) Delete(ctx context.Context, id string) error {
	if err := g.st.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", id, err)
	}
	return nil
}
