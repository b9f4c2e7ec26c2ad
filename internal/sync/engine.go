package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mschirtzinger/stockroom/internal/connectivity"
	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/store"
	"github.com/mschirtzinger/stockroom/internal/types"
)

// Config wires an Engine to its collaborators.
type Config struct {
	Store   *store.Store
	Gateway remote.Gateway
	Oracle  connectivity.Oracle

	// Locks is shared with the mutation service (default: a private table)
	Locks *KeyLock

	// Logger (default: stderr with [sync] prefix)
	Logger *log.Logger
}

// Engine implements Syncer.
type Engine struct {
	store   *store.Store
	gateway remote.Gateway
	oracle  connectivity.Oracle
	locks   *KeyLock
	logger  *log.Logger

	flight singleflight.Group

	subMu sync.RWMutex
	subs  []Subscriber
}

var _ Syncer = (*Engine)(nil)

// New creates an engine.
//
// Example:
//
//	engine, err := sync.New(sync.Config{
//	    Store:   st,
//	    Gateway: gw,
//	    Oracle:  connectivity.NewManual(true),
//	})
func New(config Config) (*Engine, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("%w: store is required", types.ErrInvalidArgument)
	}
	if config.Gateway == nil {
		return nil, fmt.Errorf("%w: gateway is required", types.ErrInvalidArgument)
	}
	if config.Oracle == nil {
		return nil, fmt.Errorf("%w: connectivity oracle is required", types.ErrInvalidArgument)
	}
	if config.Locks == nil {
		config.Locks = NewKeyLock()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:   config.Store,
		gateway: config.Gateway,
		oracle:  config.Oracle,
		locks:   config.Locks,
		logger:  config.Logger,
	}, nil
}

// Locks returns the per-id lock table.
func (e *Engine) Locks() *KeyLock {
	return e.locks
}

// Online reports the oracle state.
func (e *Engine) Online() bool {
	return e.oracle.Online()
}

// Subscribe registers sub for every published snapshot.
func (e *Engine) Subscribe(sub Subscriber) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subs = append(e.subs, sub)
}

// Publish delivers snap to every subscriber.
func (e *Engine) Publish(snap Snapshot) {
	e.subMu.RLock()
	subs := make([]Subscriber, len(e.subs))
	copy(subs, e.subs)
	e.subMu.RUnlock()

	for _, sub := range subs {
		sub.OnSnapshot(snap)
	}
}

// LocalSnapshot returns the display list held by the local store.
func (e *Engine) LocalSnapshot(ctx context.Context) (Snapshot, error) {
	items, err := e.store.GetAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read local items: %w", err)
	}
	return Snapshot{
		Items:  displayItems(items),
		Online: e.oracle.Online(),
		Source: SourceLocal,
		At:     time.Now(),
	}, nil
}

// Reconcile implements Syncer.Reconcile.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	if !e.oracle.Online() {
		report.Offline = true
		e.logger.Printf("Offline: reconcile skipped")
		return report, nil
	}

	pending, err := e.store.ListUnsynced(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list unsynced items: %w", err)
	}
	if len(pending) == 0 {
		return report, nil
	}

	e.logger.Printf("Starting reconcile: %d pending items", len(pending))

	for _, item := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.push(ctx, item.ID, &report); err != nil {
			if errors.Is(err, types.ErrRejected) {
				e.logger.Printf("WARNING: Remote store rejected %s (%s), kept pending: %v", item.ID, item.Pending, err)
				report.Rejected++
			} else {
				e.logger.Printf("WARNING: Failed to push %s (%s): %v", item.ID, item.Pending, err)
				report.Failed++
			}
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", item.ID, err))
			continue
		}
	}

	e.logger.Printf("Reconcile complete: created=%d updated=%d deleted=%d recreated=%d (failed=%d, rejected=%d)",
		report.Created, report.Updated, report.Deleted, report.Recreated, report.Failed, report.Rejected)

	return report, nil
}

// push sends the pending operation of one record while holding its lock.
// The record is re-read under the lock: the mutation service may have
// changed or removed it since it was listed.
func (e *Engine) push(ctx context.Context, id string, report *ReconcileReport) error {
	unlock := e.locks.Lock(id)
	defer unlock()

	item, err := e.store.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch item.Pending {
	case types.PendingNone:
		return nil

	case types.PendingCreate:
		canonical, err := e.create(ctx, item)
		if err != nil {
			return err
		}
		report.Created++
		e.logger.Printf("Created %s as %s (%s)", item.ID, canonical, item.Name)

	case types.PendingUpdate:
		err := e.gateway.Update(ctx, item.ID, item.Fields)
		if errors.Is(err, types.ErrNotFound) {
			// Gone remotely: the local edit wins and is re-created.
			canonical, err := e.create(ctx, item)
			if err != nil {
				return err
			}
			report.Recreated++
			e.logger.Printf("Re-created %s as %s after remote 404", item.ID, canonical)
			return nil
		}
		if err != nil {
			return err
		}
		if err := e.store.Put(ctx, types.NewSynced(item.ID, item.Fields)); err != nil {
			return fmt.Errorf("failed to mark %s synced: %w", item.ID, err)
		}
		report.Updated++
		e.logger.Printf("Updated %s (%s)", item.ID, item.Name)

	case types.PendingDelete:
		if err := e.gateway.Delete(ctx, item.ID); err != nil {
			return err
		}
		if err := e.store.Delete(ctx, item.ID); err != nil {
			return fmt.Errorf("failed to drop tombstone %s: %w", item.ID, err)
		}
		report.Deleted++
		e.logger.Printf("Deleted %s", item.ID)

	default:
		return fmt.Errorf("%w: unknown pending op %q", types.ErrInvalidArgument, item.Pending)
	}
	return nil
}

// create pushes item as a new remote record and remaps the local row to
// the canonical id. Caller holds the lock of item.ID.
func (e *Engine) create(ctx context.Context, item *types.Item) (string, error) {
	rec, err := e.gateway.Create(ctx, item.Fields)
	if err != nil {
		return "", err
	}

	unlock := e.locks.Lock(rec.ID)
	defer unlock()

	if err := e.store.Remap(ctx, item.ID, types.NewSynced(rec.ID, item.Fields)); err != nil {
		// The remote now holds the record; a retry will create it twice.
		e.logger.Printf("WARNING: Created %s remotely as %s but failed to remap locally: %v", item.ID, rec.ID, err)
		return "", fmt.Errorf("failed to remap %s -> %s: %w", item.ID, rec.ID, err)
	}
	return rec.ID, nil
}

// FullRefresh implements Syncer.FullRefresh.
func (e *Engine) FullRefresh(ctx context.Context) (Snapshot, error) {
	if !e.oracle.Online() {
		snap, err := e.LocalSnapshot(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		e.logger.Printf("Offline: loaded %d items from local store", len(snap.Items))
		e.Publish(snap)
		return snap, nil
	}

	listedAt := time.Now()
	recs, err := e.gateway.List(ctx)
	if err != nil {
		if !types.IsRetryable(err) {
			return Snapshot{}, fmt.Errorf("failed to list remote items: %w", err)
		}
		e.logger.Printf("WARNING: Failed to list remote items, using local store: %v", err)
		snap, lerr := e.LocalSnapshot(ctx)
		if lerr != nil {
			return Snapshot{}, lerr
		}
		e.Publish(snap)
		return snap, nil
	}

	items := make([]*types.Item, 0, len(recs))
	invalid := 0
	for _, rec := range recs {
		it := rec.ToItem()
		if err := it.Validate(); err != nil {
			e.logger.Printf("WARNING: Skipping invalid remote record %q: %v", rec.ID, err)
			invalid++
			continue
		}
		items = append(items, it)
	}

	stats, err := e.store.ReplaceSynced(ctx, items, listedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to apply remote snapshot: %w", err)
	}

	all, err := e.store.GetAll(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read local items: %w", err)
	}

	snap := Snapshot{
		Items:  displayItems(all),
		Online: true,
		Source: SourceRemote,
		At:     time.Now(),
	}

	e.logger.Printf("Full refresh complete: remote=%d (invalid=%d), upserted=%d, pruned=%d, kept pending=%d",
		len(recs), invalid, stats.Upserted, stats.Pruned, stats.Skipped)

	e.Publish(snap)
	return snap, nil
}

// Sync implements Syncer.Sync.
func (e *Engine) Sync(ctx context.Context) (SyncResult, error) {
	v, err, _ := e.flight.Do("sync", func() (any, error) {
		var res SyncResult

		report, err := e.Reconcile(ctx)
		res.Report = report
		if err != nil {
			return res, fmt.Errorf("failed to reconcile: %w", err)
		}

		snap, err := e.FullRefresh(ctx)
		if err != nil {
			return res, fmt.Errorf("failed to refresh: %w", err)
		}
		res.Snapshot = snap
		return res, nil
	})
	res, _ := v.(SyncResult)
	return res, err
}

// Run syncs once at start and again on every offline -> online
// transition, until ctx is done or the oracle closes its channel. Going
// offline publishes the local snapshot.
func (e *Engine) Run(ctx context.Context) error {
	transitions, cancel := e.oracle.Subscribe()
	defer cancel()

	if _, err := e.Sync(ctx); err != nil {
		e.logger.Printf("WARNING: Initial sync failed: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case tr, ok := <-transitions:
			if !ok {
				return nil
			}
			if !tr.Online {
				e.logger.Printf("Went offline at %s", tr.At.Format(time.RFC3339))
				if snap, err := e.LocalSnapshot(ctx); err == nil {
					e.Publish(snap)
				}
				continue
			}

			e.logger.Printf("Back online, syncing...")
			if _, err := e.Sync(ctx); err != nil {
				e.logger.Printf("WARNING: Sync after reconnect failed: %v", err)
			}
		}
	}
}

// displayItems drops tombstones and orders by id.
func displayItems(items []*types.Item) []types.Item {
	out := make([]types.Item, 0, len(items))
	for _, it := range items {
		if it.IsTombstone() {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
