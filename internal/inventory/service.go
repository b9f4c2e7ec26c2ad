// Package inventory is the mutation entry point used by the CLI and any
// other front end.
//
// Each call decides whether to talk to the remote store directly (online)
// or stage the change locally (offline), and always mirrors the outcome
// into the local store. Every call returns a Result so the caller can tell
// the user whether the change reached the remote store, was queued, or
// was deferred after a remote failure.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/store"
	"github.com/mschirtzinger/stockroom/internal/sync"
	"github.com/mschirtzinger/stockroom/internal/types"
)

// Outcome says where a mutation ended up.
type Outcome string

const (
	// OutcomeSynced means the remote store has the change (or never needed
	// it) and the local copy matches.
	OutcomeSynced Outcome = "synced"

	// OutcomeQueued means the change was staged locally while offline.
	OutcomeQueued Outcome = "queued"

	// OutcomeDeferred means the remote call failed while online; the change
	// is staged locally and Result.Err carries the remote error.
	OutcomeDeferred Outcome = "deferred"
)

// Result reports one mutation.
type Result struct {
	// Item is the local state after the call (for Delete, the deleted item)
	Item types.Item

	Outcome Outcome

	// Err is the remote failure behind OutcomeDeferred
	Err error
}

// Config wires a Service.
type Config struct {
	Store   *store.Store
	Gateway remote.Gateway

	// Engine provides connectivity, per-id locks, refresh and snapshot
	// publication
	Engine *sync.Engine

	// Minter mints temp ids (default: wall clock minter)
	Minter *types.TempIDMinter

	// Logger (default: stderr with [inventory] prefix)
	Logger *log.Logger
}

// Service implements Add, Edit and Delete.
type Service struct {
	store   *store.Store
	gateway remote.Gateway
	engine  *sync.Engine
	minter  *types.TempIDMinter
	logger  *log.Logger
}

// New creates a Service.
func New(config Config) (*Service, error) {
	if config.Store == nil || config.Gateway == nil || config.Engine == nil {
		return nil, fmt.Errorf("%w: store, gateway and engine are required", types.ErrInvalidArgument)
	}
	if config.Minter == nil {
		config.Minter = types.NewTempIDMinter()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[inventory] ", log.LstdFlags)
	}
	return &Service{
		store:   config.Store,
		gateway: config.Gateway,
		engine:  config.Engine,
		minter:  config.Minter,
		logger:  config.Logger,
	}, nil
}

// Get returns the item addressed by id, following temp id remaps.
// Tombstones read as not found.
func (s *Service) Get(ctx context.Context, id string) (*types.Item, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", types.ErrInvalidArgument)
	}
	resolved, err := s.store.ResolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := s.store.Get(ctx, resolved)
	if err != nil {
		return nil, err
	}
	if item.IsTombstone() {
		return nil, fmt.Errorf("item %s is deleted: %w", id, types.ErrNotFound)
	}
	return item, nil
}

// Add creates an item.
//
// Online, the remote store mints the canonical id and the item is stored
// synced. Offline, or when the remote call fails, the item is stored under
// a temp id pending create.
func (s *Service) Add(ctx context.Context, f types.Fields) (Result, error) {
	if err := f.Validate(); err != nil {
		return Result{}, err
	}

	var remoteErr error
	if s.engine.Online() {
		rec, err := s.gateway.Create(ctx, f)
		if err == nil {
			item := types.NewSynced(rec.ID, f)
			unlock := s.engine.Locks().Lock(item.ID)
			err := s.store.Put(ctx, item)
			unlock()
			if err != nil {
				return Result{}, fmt.Errorf("failed to store created item %s: %w", item.ID, err)
			}
			s.logger.Printf("Added %s (%s)", item.ID, item.Name)
			s.publishLocal(ctx)
			return Result{Item: *item, Outcome: OutcomeSynced}, nil
		}
		if !types.IsRetryable(err) {
			return Result{}, fmt.Errorf("failed to create item: %w", err)
		}
		s.logger.Printf("WARNING: Failed to create %q remotely, queueing: %v", f.Name, err)
		remoteErr = err
	}

	id, err := s.nextTempID(ctx)
	if err != nil {
		return Result{}, err
	}
	item := types.NewPending(id, f, types.PendingCreate)

	unlock := s.engine.Locks().Lock(id)
	err = s.store.Put(ctx, item)
	unlock()
	if err != nil {
		return Result{}, fmt.Errorf("failed to stage item: %w", err)
	}

	s.logger.Printf("Queued %s (%s)", item.ID, item.Name)
	s.publishLocal(ctx)
	return s.staged(item, remoteErr), nil
}

// Edit replaces the fields of id.
//
// A record not yet created remotely is only rewritten locally and stays
// pending create. Online, the remote update is attempted first, also for
// ids missing locally; a remote 404 is returned as ErrNotFound and the
// local copy is left alone.
// Offline, or on a remote failure, the edit is staged pending update.
func (s *Service) Edit(ctx context.Context, id string, f types.Fields) (Result, error) {
	if id == "" {
		return Result{}, fmt.Errorf("%w: id is required", types.ErrInvalidArgument)
	}
	if err := f.Validate(); err != nil {
		return Result{}, err
	}

	resolved, unlock, err := s.lockResolved(ctx, id)
	if err != nil {
		return Result{}, err
	}
	res, err := s.edit(ctx, resolved, f)
	unlock()
	if err != nil {
		return Result{}, err
	}

	if res.Outcome == OutcomeSynced {
		if _, err := s.engine.FullRefresh(ctx); err != nil {
			s.logger.Printf("WARNING: Failed to refresh after edit of %s: %v", resolved, err)
		}
	} else {
		s.publishLocal(ctx)
	}
	return res, nil
}

// edit runs with the lock of id held.
func (s *Service) edit(ctx context.Context, id string, f types.Fields) (Result, error) {
	cur, err := s.store.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return s.editUnknown(ctx, id, f, err)
	}
	if err != nil {
		return Result{}, err
	}
	if cur.IsTombstone() {
		return Result{}, fmt.Errorf("item %s is deleted: %w", id, types.ErrNotFound)
	}

	if cur.Pending == types.PendingCreate {
		item := types.NewPending(id, f, types.PendingCreate)
		if err := s.store.Put(ctx, item); err != nil {
			return Result{}, fmt.Errorf("failed to stage edit of %s: %w", id, err)
		}
		s.logger.Printf("Edited unsynced %s locally", id)
		return Result{Item: *item, Outcome: OutcomeQueued}, nil
	}

	var remoteErr error
	if s.engine.Online() {
		err := s.gateway.Update(ctx, id, f)
		if err == nil {
			item := types.NewSynced(id, f)
			if err := s.store.Put(ctx, item); err != nil {
				return Result{}, fmt.Errorf("failed to store edit of %s: %w", id, err)
			}
			s.logger.Printf("Edited %s", id)
			return Result{Item: *item, Outcome: OutcomeSynced}, nil
		}
		if !types.IsRetryable(err) {
			return Result{}, fmt.Errorf("failed to update item %s: %w", id, err)
		}
		s.logger.Printf("WARNING: Failed to update %s remotely, queueing: %v", id, err)
		remoteErr = err
	}

	item := types.NewPending(id, f, types.PendingUpdate)
	if err := s.store.Put(ctx, item); err != nil {
		return Result{}, fmt.Errorf("failed to stage edit of %s: %w", id, err)
	}
	return s.staged(item, remoteErr), nil
}

// editUnknown handles an id with no local row. The remote store may hold
// a record the local store has not seen yet, so online the update is sent
// and the remote answer decides. Nothing is staged for an unknown id.
func (s *Service) editUnknown(ctx context.Context, id string, f types.Fields, notFound error) (Result, error) {
	if types.IsTempID(id) || !s.engine.Online() {
		return Result{}, notFound
	}

	if err := s.gateway.Update(ctx, id, f); err != nil {
		return Result{}, fmt.Errorf("failed to update item %s: %w", id, err)
	}

	item := types.NewSynced(id, f)
	if err := s.store.Put(ctx, item); err != nil {
		return Result{}, fmt.Errorf("failed to store edit of %s: %w", id, err)
	}
	s.logger.Printf("Edited %s (not previously cached)", id)
	return Result{Item: *item, Outcome: OutcomeSynced}, nil
}

// Delete removes id.
//
// The record always leaves the display at once. A record never created
// remotely is dropped locally without a remote call. Online, the remote
// delete is attempted (absence counts as success) and the local row is
// removed; offline, or on a remote failure, a tombstone is staged for
// Reconcile.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{}, fmt.Errorf("%w: id is required", types.ErrInvalidArgument)
	}

	resolved, unlock, err := s.lockResolved(ctx, id)
	if err != nil {
		return Result{}, err
	}
	res, err := s.delete(ctx, resolved)
	unlock()
	if err != nil {
		return Result{}, err
	}
	s.publishLocal(ctx)
	return res, nil
}

// delete runs with the lock of id held.
func (s *Service) delete(ctx context.Context, id string) (Result, error) {
	cur, err := s.store.Get(ctx, id)
	missing := errors.Is(err, types.ErrNotFound)
	if err != nil && !missing {
		return Result{}, err
	}
	if missing && types.IsTempID(id) {
		// Never created remotely, so there is nothing to delete there.
		return Result{}, fmt.Errorf("item %s: %w", id, types.ErrNotFound)
	}

	if !missing && cur.Pending == types.PendingCreate {
		if err := s.store.Delete(ctx, id); err != nil {
			return Result{}, fmt.Errorf("failed to delete %s: %w", id, err)
		}
		s.logger.Printf("Deleted unsynced %s locally", id)
		return Result{Item: *cur, Outcome: OutcomeSynced}, nil
	}

	var remoteErr error
	if s.engine.Online() {
		err := s.gateway.Delete(ctx, id)
		if err == nil {
			if err := s.store.Delete(ctx, id); err != nil {
				return Result{}, fmt.Errorf("failed to delete %s locally: %w", id, err)
			}
			s.logger.Printf("Deleted %s", id)
			res := Result{Item: types.Item{ID: id}, Outcome: OutcomeSynced}
			if !missing {
				res.Item = *cur
			}
			return res, nil
		}
		if !types.IsRetryable(err) {
			return Result{}, fmt.Errorf("failed to delete item %s: %w", id, err)
		}
		s.logger.Printf("WARNING: Failed to delete %s remotely, queueing: %v", id, err)
		remoteErr = err
	}

	if missing {
		return Result{}, fmt.Errorf("item %s: %w", id, types.ErrNotFound)
	}

	tomb := types.NewPending(id, cur.Fields, types.PendingDelete)
	if err := s.store.Put(ctx, tomb); err != nil {
		return Result{}, fmt.Errorf("failed to stage delete of %s: %w", id, err)
	}
	return s.staged(tomb, remoteErr), nil
}

// lockResolved resolves id and locks the result. A remap runs under the
// temp id lock, so the alias is re-read once the lock is held and the
// lock moves to the canonical id if the record was remapped meanwhile.
func (s *Service) lockResolved(ctx context.Context, id string) (string, func(), error) {
	resolved, err := s.store.ResolveID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	for {
		unlock := s.engine.Locks().Lock(resolved)
		again, err := s.store.ResolveID(ctx, id)
		if err != nil {
			unlock()
			return "", nil, err
		}
		if again == resolved {
			return resolved, unlock, nil
		}
		unlock()
		resolved = again
	}
}

// staged builds the result of a locally staged change.
func (s *Service) staged(item *types.Item, remoteErr error) Result {
	if remoteErr != nil {
		return Result{Item: *item, Outcome: OutcomeDeferred, Err: remoteErr}
	}
	return Result{Item: *item, Outcome: OutcomeQueued}
}

// nextTempID mints a temp id not already present in the store or the
// remap table. A restart with the clock set back could otherwise reuse one.
func (s *Service) nextTempID(ctx context.Context) (string, error) {
	for {
		id := s.minter.Next()
		if resolved, err := s.store.ResolveID(ctx, id); err != nil {
			return "", err
		} else if resolved != id {
			continue
		}
		_, err := s.store.Get(ctx, id)
		if errors.Is(err, types.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
}

func (s *Service) publishLocal(ctx context.Context) {
	snap, err := s.engine.LocalSnapshot(ctx)
	if err != nil {
		s.logger.Printf("WARNING: Failed to publish snapshot: %v", err)
		return
	}
	s.engine.Publish(snap)
}
