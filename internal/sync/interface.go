package sync

import (
	"context"
	"time"

	"github.com/mschirtzinger/stockroom/internal/types"
)

// Syncer keeps the local record store consistent with the remote store.
//
// Implementations must be safe for concurrent use with the mutation
// service; per-record serialization goes through a shared KeyLock.
type Syncer interface {
	// Reconcile pushes every pending local operation to the remote store.
	//
	// Each record is pushed independently: a failed push is logged,
	// counted in the report and left pending for the next run, and the
	// loop continues with the remaining records.
	//
	// While offline no remote call is made and the report is marked
	// Offline.
	Reconcile(ctx context.Context) (ReconcileReport, error)

	// FullRefresh loads the display list.
	//
	// Online, the remote snapshot is applied to the local store as
	// authoritative for synced records (pending records are never
	// overwritten) and the result is the remote snapshot overlaid with
	// local pending work. Offline, the result is the local store.
	//
	// Example:
	//   snap, err := engine.FullRefresh(ctx)
	//   for _, it := range snap.Items { ... }
	FullRefresh(ctx context.Context) (Snapshot, error)

	// Sync runs Reconcile then FullRefresh. Concurrent callers share one
	// in-flight run.
	Sync(ctx context.Context) (SyncResult, error)
}

// SyncResult is the outcome of one Sync.
type SyncResult struct {
	Report   ReconcileReport
	Snapshot Snapshot
}

// Source says where a snapshot's items came from.
type Source string

const (
	// SourceRemote is a remote snapshot overlaid with local pending work.
	SourceRemote Source = "remote"
	// SourceLocal is the local store alone.
	SourceLocal Source = "local"
)

// Snapshot is a display list published after every refresh or local
// mutation. Tombstones are never included.
type Snapshot struct {
	Items  []types.Item `json:"items"`
	Online bool         `json:"online"`
	Source Source       `json:"source"`
	At     time.Time    `json:"at"`
}

// Pending returns how many snapshot items still owe the remote store an
// operation.
func (s Snapshot) Pending() int {
	n := 0
	for _, it := range s.Items {
		if !it.Synced {
			n++
		}
	}
	return n
}

// ReconcileReport counts what one Reconcile run did.
type ReconcileReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Recreated int `json:"recreated"` // updates re-created after a remote 404
	Failed    int `json:"failed"`    // retryable failures
	Rejected  int `json:"rejected"`  // refused by the remote store, kept pending

	// Offline is set when the run was skipped for lack of connectivity.
	Offline bool `json:"offline"`

	// Errors holds one entry per failed record.
	Errors []error `json:"-"`
}

// Pushed returns the number of records that reached the remote store.
func (r ReconcileReport) Pushed() int {
	return r.Created + r.Updated + r.Deleted + r.Recreated
}

// Subscriber receives snapshots. OnSnapshot is called synchronously from
// the publishing goroutine and must not block.
type Subscriber interface {
	OnSnapshot(snap Snapshot)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(Snapshot)

// OnSnapshot implements Subscriber.
func (f SubscriberFunc) OnSnapshot(snap Snapshot) { f(snap) }
