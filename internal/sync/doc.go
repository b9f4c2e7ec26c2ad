// Package sync reconciles the local record store with the remote store.
//
// Overview
//
// Every local record carries a pending tag (none, create, update, delete).
// The mutation service stages work by setting the tag; the engine consumes
// the tags and pulls authoritative snapshots from the remote store.
//
// Architecture
//
//	Mutation service ──stage──▶ Local store (items, id_remaps)
//	                                 │   ▲
//	                       Reconcile │   │ FullRefresh
//	                                 ▼   │
//	                           Remote gateway
//
// Reconcile pushes pending records one at a time:
//
//	create  → gateway.Create, then the temp-id row is remapped to the
//	          canonical id in one transaction
//	update  → gateway.Update; a remote 404 re-creates the record
//	delete  → gateway.Delete (absence is success), then the tombstone is
//	          dropped
//
// FullRefresh applies the remote list to every synced row and leaves
// pending rows alone, so a refresh can never undo an unpushed write.
//
// Usage
//
//	engine, err := sync.New(sync.Config{Store: st, Gateway: gw, Oracle: oracle})
//	if err != nil {
//	    return err
//	}
//
//	// App start and every reconnect
//	go engine.Run(ctx)
//
//	// Explicit reload
//	res, err := engine.Sync(ctx)
//
// Error Handling
//
// Reconcile isolates failures per record:
//
//   - A failed push is logged, counted and retried on the next run
//   - Other records are still pushed
//   - Only local store failures while listing abort the run
//
// Concurrency
//
// Engine methods are safe for concurrent use. Reconcile holds the KeyLock
// entry of each record it pushes (and of the canonical id while
// remapping); the mutation service takes the same locks, so the two never
// interleave on one record. Concurrent Sync calls share one in-flight run.
package sync
