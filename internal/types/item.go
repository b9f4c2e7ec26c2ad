// Package types defines the inventory record shared by every stockroom layer.
package types

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TempIDPrefix marks identifiers minted locally for records the remote
// store has not acknowledged yet.
const TempIDPrefix = "temp-"

// PendingOp tags a local record with the remote operation it still owes.
type PendingOp string

const (
	// PendingNone means the local copy matches a remote-acknowledged write.
	PendingNone PendingOp = "none"
	// PendingCreate means the record was never created remotely.
	PendingCreate PendingOp = "create"
	// PendingUpdate means a local edit has not reached the remote store.
	PendingUpdate PendingOp = "update"
	// PendingDelete marks a tombstone: deleted locally, not yet remotely.
	PendingDelete PendingOp = "delete"
)

// Valid reports whether op is one of the known tags.
func (op PendingOp) Valid() bool {
	switch op {
	case PendingNone, PendingCreate, PendingUpdate, PendingDelete:
		return true
	}
	return false
}

// Fields holds the business fields of an item. These are the only
// values ever sent to the remote store.
type Fields struct {
	Name     string `json:"name" toml:"name" yaml:"name"`
	Quantity int    `json:"quantity" toml:"quantity" yaml:"quantity"`
	Category string `json:"category" toml:"category" yaml:"category"`
}

// Validate checks the business fields.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if len(f.Name) > 200 {
		return fmt.Errorf("%w: name must be 200 characters or less (got %d)", ErrInvalidArgument, len(f.Name))
	}
	if f.Quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative (got %d)", ErrInvalidArgument, f.Quantity)
	}
	if len(f.Category) > 100 {
		return fmt.Errorf("%w: category must be 100 characters or less (got %d)", ErrInvalidArgument, len(f.Category))
	}
	return nil
}

// Item is an inventory record as held in the local store.
//
// Synced is true exactly when Pending is PendingNone. A synced item always
// carries a canonical id; a temp-id item is always PendingCreate.
type Item struct {
	ID string `json:"id"`
	Fields

	Synced    bool      `json:"synced"`
	Pending   PendingOp `json:"pending"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the item fields and the synced/pending invariants.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidArgument)
	}
	if err := it.Fields.Validate(); err != nil {
		return err
	}
	if !it.Pending.Valid() {
		return fmt.Errorf("%w: unknown pending op %q", ErrInvalidArgument, it.Pending)
	}
	if it.Synced != (it.Pending == PendingNone) {
		return fmt.Errorf("%w: synced=%t inconsistent with pending=%s", ErrInvalidArgument, it.Synced, it.Pending)
	}
	if IsTempID(it.ID) && it.Pending != PendingCreate {
		return fmt.Errorf("%w: temporary id %s must be pending create (got %s)", ErrInvalidArgument, it.ID, it.Pending)
	}
	return nil
}

// IsTombstone reports whether the item is deleted locally and waiting for
// the remote delete.
func (it *Item) IsTombstone() bool {
	return it.Pending == PendingDelete
}

// SetPending sets the pending tag and keeps Synced consistent with it.
func (it *Item) SetPending(op PendingOp) {
	it.Pending = op
	it.Synced = op == PendingNone
}

// Touch sets UpdatedAt to the current time.
func (it *Item) Touch() {
	it.UpdatedAt = time.Now().UTC()
}

// NewSynced builds an item acknowledged by the remote store.
func NewSynced(id string, f Fields) *Item {
	it := &Item{ID: id, Fields: f}
	it.SetPending(PendingNone)
	it.Touch()
	return it
}

// NewPending builds an item owing op to the remote store.
func NewPending(id string, f Fields, op PendingOp) *Item {
	it := &Item{ID: id, Fields: f}
	it.SetPending(op)
	it.Touch()
	return it
}

// IsTempID reports whether id was minted locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// TempIDMinter mints temp-<millis> identifiers. Values are strictly
// increasing within one minter even when the clock stalls or steps back.
type TempIDMinter struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewTempIDMinter returns a minter driven by the wall clock.
func NewTempIDMinter() *TempIDMinter {
	return &TempIDMinter{now: time.Now}
}

// Next returns a new temporary id.
func (m *TempIDMinter) Next() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now
	if m.now != nil {
		now = m.now
	}
	v := now().UnixMilli()
	if v <= m.last {
		v = m.last + 1
	}
	m.last = v
	return fmt.Sprintf("%s%d", TempIDPrefix, v)
}
