// Package remote defines the contract of the authoritative record store and
// ships three implementations of it:
//
//   - HTTPGateway: JSON/REST client used by the CLI and daemon
//   - MemoryGateway: in-process store with failure injection for tests
//   - StoreGateway: SQLite-backed store served by the reference Server
//
// The sync engine and the mutation service only see the Gateway interface.
package remote

import (
	"context"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// Record is an item as held by the remote store: a canonical id plus the
// business fields.
type Record struct {
	ID string `json:"id"`
	types.Fields
}

// Gateway is the CRUD contract of the remote store.
//
// Failures wrap types.ErrRemoteUnavailable (network, auth, throttling) or
// types.ErrNotFound (Update of an unknown id).
type Gateway interface {
	// Create stores f and returns it under a newly minted canonical id.
	Create(ctx context.Context, f types.Fields) (Record, error)

	// List returns a full snapshot of every remote record.
	List(ctx context.Context) ([]Record, error)

	// Update replaces the fields of id. Unknown ids fail with ErrNotFound.
	Update(ctx context.Context, id string, f types.Fields) error

	// Delete removes id. Deleting an absent id succeeds.
	Delete(ctx context.Context, id string) error
}

// Prober is implemented by gateways able to report reachability cheaply.
type Prober interface {
	Health(ctx context.Context) error
}

// ToItem converts a remote record into a synced local item.
func (r Record) ToItem() *types.Item {
	return types.NewSynced(r.ID, r.Fields)
}
