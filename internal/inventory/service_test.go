package inventory

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mschirtzinger/stockroom/internal/connectivity"
	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/store"
	"github.com/mschirtzinger/stockroom/internal/sync"
	"github.com/mschirtzinger/stockroom/internal/types"
)

var (
	quietLogger = log.New(io.Discard, "", 0)
	ignoreTime  = cmpopts.IgnoreFields(types.Item{}, "UpdatedAt")
)

type testEnv struct {
	svc     *Service
	engine  *sync.Engine
	store   *store.Store
	gateway *remote.MemoryGateway
	oracle  *connectivity.Manual
	last    *sync.Snapshot
}

func setupTestService(t *testing.T, online bool) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gw := remote.NewMemoryGateway()
	oracle := connectivity.NewManual(online)

	engine, err := sync.New(sync.Config{Store: st, Gateway: gw, Oracle: oracle, Logger: quietLogger})
	if err != nil {
		t.Fatalf("sync.New() failed: %v", err)
	}

	svc, err := New(Config{Store: st, Gateway: gw, Engine: engine, Logger: quietLogger})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	env := &testEnv{svc: svc, engine: engine, store: st, gateway: gw, oracle: oracle}
	engine.Subscribe(sync.SubscriberFunc(func(s sync.Snapshot) { env.last = &s }))
	return env
}

// seedSynced stores f under id both remotely and locally.
func (env *testEnv) seedSynced(t *testing.T, id string, f types.Fields) {
	t.Helper()
	env.gateway.Seed(id, f)
	if err := env.store.Put(context.Background(), types.NewSynced(id, f)); err != nil {
		t.Fatalf("Put(%s) failed: %v", id, err)
	}
}

func (env *testEnv) get(t *testing.T, id string) *types.Item {
	t.Helper()
	it, err := env.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", id, err)
	}
	return it
}

func (env *testEnv) lastIDs() []string {
	if env.last == nil {
		return nil
	}
	ids := []string{}
	for _, it := range env.last.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func hammer() types.Fields {
	return types.Fields{Name: "Hammer", Quantity: 5, Category: "Tools"}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("New(empty) error = %v, want ErrInvalidArgument", err)
	}
}

func TestAdd_OnlineRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, true)
	env.gateway.NewID = func() string { return "42" }

	res, err := env.svc.Add(ctx, hammer())
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if res.Outcome != OutcomeSynced || res.Err != nil {
		t.Errorf("Add() outcome = %s (err %v), want synced", res.Outcome, res.Err)
	}

	all, err := env.store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	want := []*types.Item{{ID: "42", Fields: hammer(), Synced: true, Pending: types.PendingNone}}
	if diff := cmp.Diff(want, all, ignoreTime); diff != "" {
		t.Errorf("store after online add mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"42"}, env.lastIDs()); diff != "" {
		t.Errorf("published snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestAdd_Offline(t *testing.T) {
	env := setupTestService(t, false)

	res, err := env.svc.Add(context.Background(), hammer())
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if res.Outcome != OutcomeQueued {
		t.Errorf("Add() outcome = %s, want queued", res.Outcome)
	}
	if !types.IsTempID(res.Item.ID) || res.Item.Synced || res.Item.Pending != types.PendingCreate {
		t.Errorf("Add() item = %+v, want unsynced temp item pending create", res.Item)
	}
	if env.gateway.Calls("create") != 0 {
		t.Error("offline Add() called the remote")
	}

	got := env.get(t, res.Item.ID)
	if got.Fields != hammer() {
		t.Errorf("stored fields = %+v, want %+v", got.Fields, hammer())
	}
}

func TestAdd_TempIDsIncrease(t *testing.T) {
	env := setupTestService(t, false)

	seen := map[string]bool{}
	prev := ""
	for i := 0; i < 20; i++ {
		res, err := env.svc.Add(context.Background(), types.Fields{Name: "Nail", Quantity: i})
		if err != nil {
			t.Fatalf("Add() failed: %v", err)
		}
		if seen[res.Item.ID] {
			t.Fatalf("duplicate temp id %s", res.Item.ID)
		}
		seen[res.Item.ID] = true
		if prev != "" && len(res.Item.ID) == len(prev) && res.Item.ID <= prev {
			t.Errorf("temp id %s not after %s", res.Item.ID, prev)
		}
		prev = res.Item.ID
	}
}

func TestAdd_RemoteFailureIsDeferredAndRetried(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, true)
	env.gateway.FailNext(1)

	res, err := env.svc.Add(ctx, hammer())
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if res.Outcome != OutcomeDeferred || !errors.Is(res.Err, types.ErrRemoteUnavailable) {
		t.Fatalf("Add() = %s (err %v), want deferred with ErrRemoteUnavailable", res.Outcome, res.Err)
	}
	if res.Item.Pending != types.PendingCreate {
		t.Errorf("deferred item pending = %s, want create", res.Item.Pending)
	}

	report, err := env.engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Created != 1 || env.gateway.Len() != 1 {
		t.Errorf("Reconcile() report = %+v, remote len = %d; want the item created", report, env.gateway.Len())
	}
}

func TestAdd_Invalid(t *testing.T) {
	env := setupTestService(t, true)

	tests := []struct {
		name string
		f    types.Fields
	}{
		{"missing name", types.Fields{Quantity: 1}},
		{"negative quantity", types.Fields{Name: "Saw", Quantity: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Add(context.Background(), tt.f)
			if !errors.Is(err, types.ErrInvalidArgument) {
				t.Errorf("Add(%+v) error = %v, want ErrInvalidArgument", tt.f, err)
			}
		})
	}
	if env.gateway.Calls("create") != 0 {
		t.Error("invalid Add() reached the remote")
	}
}

func TestEdit_Online(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, true)
	env.seedSynced(t, "1", hammer())

	edited := types.Fields{Name: "Hammer", Quantity: 3, Category: "Tools"}
	res, err := env.svc.Edit(ctx, "1", edited)
	if err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if res.Outcome != OutcomeSynced {
		t.Errorf("Edit() outcome = %s, want synced", res.Outcome)
	}
	if f, _ := env.gateway.Lookup("1"); f != edited {
		t.Errorf("remote fields = %+v, want %+v", f, edited)
	}
	if got := env.get(t, "1"); !got.Synced || got.Fields != edited {
		t.Errorf("local item = %+v, want synced %+v", got, edited)
	}
	// Online edits reload the display from the remote.
	if env.gateway.Calls("list") != 1 {
		t.Errorf("remote list calls = %d, want 1", env.gateway.Calls("list"))
	}
	if env.last == nil || env.last.Source != sync.SourceRemote {
		t.Errorf("last snapshot = %+v, want remote refresh", env.last)
	}
}

func TestEdit_OfflineThenReconcile(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, false)
	env.seedSynced(t, "1", hammer())

	edited := types.Fields{Name: "Hammer", Quantity: 0, Category: "Tools"}
	res, err := env.svc.Edit(ctx, "1", edited)
	if err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if res.Outcome != OutcomeQueued || res.Item.Pending != types.PendingUpdate {
		t.Errorf("Edit() = %s pending=%s, want queued update", res.Outcome, res.Item.Pending)
	}
	if env.gateway.Calls("update") != 0 {
		t.Error("offline Edit() called the remote")
	}

	env.oracle.Set(true)
	if _, err := env.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if f, _ := env.gateway.Lookup("1"); f != edited {
		t.Errorf("remote fields after sync = %+v, want %+v", f, edited)
	}
	if got := env.get(t, "1"); !got.Synced {
		t.Errorf("local item after sync = %+v, want synced", got)
	}
}

func TestEdit_RemoteFailureIsDeferred(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, true)
	env.seedSynced(t, "1", hammer())
	env.gateway.FailNext(1)

	edited := types.Fields{Name: "Mallet", Quantity: 1}
	res, err := env.svc.Edit(ctx, "1", edited)
	if err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if res.Outcome != OutcomeDeferred || res.Err == nil {
		t.Fatalf("Edit() = %s (err %v), want deferred", res.Outcome, res.Err)
	}
	if got := env.get(t, "1"); got.Pending != types.PendingUpdate || got.Fields != edited {
		t.Errorf("local item = %+v, want pending update with edit", got)
	}

	if _, err := env.engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if f, _ := env.gateway.Lookup("1"); f != edited {
		t.Errorf("remote fields after retry = %+v, want %+v", f, edited)
	}
}

func TestEdit_UnsyncedItemStaysPendingCreate(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, false)

	added, err := env.svc.Add(ctx, hammer())
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	env.oracle.Set(true)
	edited := types.Fields{Name: "Hammer", Quantity: 9, Category: "Tools"}
	res, err := env.svc.Edit(ctx, added.Item.ID, edited)
	if err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if res.Outcome != OutcomeQueued || res.Item.Pending != types.PendingCreate {
		t.Errorf("Edit() = %s pending=%s, want queued create", res.Outcome, res.Item.Pending)
	}
	if env.gateway.Calls("update") != 0 {
		t.Error("Edit() of an unsynced item called remote update")
	}

	if _, err := env.engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if f, ok := env.gateway.Lookup("1"); !ok || f != edited {
		t.Errorf("remote 1 = %+v, %t; want the edited fields", f, ok)
	}
}

func TestEdit_ByTempIDAfterRemap(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, false)
	env.gateway.NewID = func() string { return "7" }

	added, err := env.svc.Add(ctx, hammer())
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	env.oracle.Set(true)
	if _, err := env.engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}

	edited := types.Fields{Name: "Hammer", Quantity: 1, Category: "Tools"}
	res, err := env.svc.Edit(ctx, added.Item.ID, edited)
	if err != nil {
		t.Fatalf("Edit(temp id) failed: %v", err)
	}
	if res.Item.ID != "7" || res.Outcome != OutcomeSynced {
		t.Errorf("Edit(temp id) = %s %s, want 7 synced", res.Item.ID, res.Outcome)
	}
	if f, _ := env.gateway.Lookup("7"); f != edited {
		t.Errorf("remote 7 = %+v, want %+v", f, edited)
	}
}

func TestEdit_Errors(t *testing.T) {
	env := setupTestService(t, true)
	env.seedSynced(t, "1", hammer())

	// Known locally, gone remotely.
	if err := env.store.Put(context.Background(), types.NewSynced("orphan", hammer())); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		id      string
		f       types.Fields
		wantErr error
	}{
		{"empty id", "", hammer(), types.ErrInvalidArgument},
		{"invalid fields", "1", types.Fields{}, types.ErrInvalidArgument},
		{"unknown id", "nope", hammer(), types.ErrNotFound},
		{"remote 404", "orphan", hammer(), types.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Edit(context.Background(), tt.id, tt.f)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Edit(%q) error = %v, want %v", tt.id, err, tt.wantErr)
			}
		})
	}

	if got := env.get(t, "orphan"); !got.Synced {
		t.Errorf("orphan changed after remote 404: %+v", got)
	}
}

func TestDelete_Online(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, true)
	env.seedSynced(t, "1", hammer())

	res, err := env.svc.Delete(ctx, "1")
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if res.Outcome != OutcomeSynced || res.Item.Name != "Hammer" {
		t.Errorf("Delete() = %+v, want synced with the deleted item", res)
	}
	if env.gateway.Len() != 0 {
		t.Error("remote still holds the item")
	}
	if _, err := env.store.Get(ctx, "1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("local Get after delete error = %v, want ErrNotFound", err)
	}
	if ids := env.lastIDs(); len(ids) != 0 {
		t.Errorf("display after delete = %v, want empty", ids)
	}
}

func TestDelete_OfflineTombstone(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, false)
	env.seedSynced(t, "1", hammer())

	res, err := env.svc.Delete(ctx, "1")
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if res.Outcome != OutcomeQueued || !res.Item.IsTombstone() {
		t.Errorf("Delete() = %s pending=%s, want queued tombstone", res.Outcome, res.Item.Pending)
	}
	if ids := env.lastIDs(); len(ids) != 0 {
		t.Errorf("display after offline delete = %v, want empty", ids)
	}
	if _, err := env.svc.Get(ctx, "1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(tombstone) error = %v, want ErrNotFound", err)
	}
	if _, err := env.svc.Edit(ctx, "1", hammer()); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Edit(tombstone) error = %v, want ErrNotFound", err)
	}

	env.oracle.Set(true)
	if _, err := env.engine.Sync(ctx); err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if env.gateway.Len() != 0 {
		t.Error("remote still holds the item after sync")
	}
	if _, err := env.store.Get(ctx, "1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("tombstone survived sync: %v", err)
	}
}

func TestDelete_UnsyncedIsLocalOnly(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, false)

	added, err := env.svc.Add(ctx, hammer())
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	env.oracle.Set(true)

	res, err := env.svc.Delete(ctx, added.Item.ID)
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if res.Outcome != OutcomeSynced {
		t.Errorf("Delete() outcome = %s, want synced", res.Outcome)
	}
	if env.gateway.Calls("delete") != 0 {
		t.Error("Delete() of an unsynced item called the remote")
	}

	if _, err := env.engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if env.gateway.Len() != 0 {
		t.Error("deleted unsynced item was created remotely")
	}
}

func TestDelete_RemoteFailureIsDeferred(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, true)
	env.seedSynced(t, "1", hammer())
	env.gateway.FailNext(1)

	res, err := env.svc.Delete(ctx, "1")
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if res.Outcome != OutcomeDeferred || res.Err == nil {
		t.Fatalf("Delete() = %s (err %v), want deferred", res.Outcome, res.Err)
	}
	if ids := env.lastIDs(); len(ids) != 0 {
		t.Errorf("display after deferred delete = %v, want empty", ids)
	}

	if _, err := env.engine.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if env.gateway.Len() != 0 {
		t.Error("remote still holds the item after retry")
	}
}

func TestDelete_AbsentIDs(t *testing.T) {
	ctx := context.Background()

	online := setupTestService(t, true)
	res, err := online.svc.Delete(ctx, "never-existed")
	if err != nil {
		t.Fatalf("online Delete(absent) failed: %v", err)
	}
	if res.Outcome != OutcomeSynced {
		t.Errorf("online Delete(absent) outcome = %s, want synced", res.Outcome)
	}

	// An unknown temp id was never sent, so the remote is not asked.
	if _, err := online.svc.Delete(ctx, "temp-1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("online Delete(unknown temp id) error = %v, want ErrNotFound", err)
	}
	if calls := online.gateway.Calls("delete"); calls != 1 {
		t.Errorf("remote delete calls = %d, want 1", calls)
	}

	offline := setupTestService(t, false)
	if _, err := offline.svc.Delete(ctx, "never-existed"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("offline Delete(absent) error = %v, want ErrNotFound", err)
	}

	if _, err := offline.svc.Delete(ctx, ""); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("Delete(\"\") error = %v, want ErrInvalidArgument", err)
	}
}

func TestDelete_RemappedWhileWaitingForLock(t *testing.T) {
	env := setupTestService(t, false)
	ctx := context.Background()

	added, err := env.svc.Add(ctx, types.Fields{Name: "Hammer", Quantity: 1})
	if err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	tempID := added.Item.ID
	env.oracle.Set(true)

	// Hold the temp id lock, start the delete, then remap underneath it.
	unlock := env.engine.Locks().Lock(tempID)
	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Delete(ctx, tempID)
		done <- err
	}()

	rec, err := env.gateway.Create(ctx, added.Item.Fields)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := env.store.Remap(ctx, tempID, types.NewSynced(rec.ID, rec.Fields)); err != nil {
		t.Fatalf("Remap() failed: %v", err)
	}
	unlock()

	if err := <-done; err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok := env.gateway.Lookup(rec.ID); ok {
		t.Errorf("remote still holds %s: delete went to the stale temp id", rec.ID)
	}
	if _, err := env.store.Get(ctx, rec.ID); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("local Get(%s) error = %v, want ErrNotFound", rec.ID, err)
	}
}

// listGate holds the first List call after it has read the remote
// records, to interleave mutations with a refresh.
type listGate struct {
	*remote.MemoryGateway
	listed  chan struct{}
	release chan struct{}
}

func (g *listGate) List(ctx context.Context) ([]remote.Record, error) {
	recs, err := g.MemoryGateway.List(ctx)
	if g.listed != nil {
		close(g.listed)
		<-g.release
		g.listed = nil
	}
	return recs, err
}

func TestDelete_DuringRefreshStaysDeleted(t *testing.T) {
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	gw := &listGate{
		MemoryGateway: remote.NewMemoryGateway(),
		listed:        make(chan struct{}),
		release:       make(chan struct{}),
	}
	gw.Seed("9", hammer())
	if err := st.Put(ctx, types.NewSynced("9", hammer())); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	engine, err := sync.New(sync.Config{Store: st, Gateway: gw, Oracle: connectivity.NewManual(true), Logger: quietLogger})
	if err != nil {
		t.Fatalf("sync.New() failed: %v", err)
	}
	svc, err := New(Config{Store: st, Gateway: gw, Engine: engine, Logger: quietLogger})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	type refreshResult struct {
		snap sync.Snapshot
		err  error
	}
	done := make(chan refreshResult, 1)
	go func() {
		snap, err := engine.FullRefresh(ctx)
		done <- refreshResult{snap, err}
	}()

	// The refresh has read {"9"} and is held before applying it.
	<-gw.listed
	res, err := svc.Delete(ctx, "9")
	if err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if res.Outcome != OutcomeSynced || gw.Len() != 0 {
		t.Fatalf("Delete() outcome = %s, remote len = %d; want synced and empty", res.Outcome, gw.Len())
	}
	close(gw.release)

	got := <-done
	if got.err != nil {
		t.Fatalf("FullRefresh() failed: %v", got.err)
	}
	for _, it := range got.snap.Items {
		if it.ID == "9" {
			t.Errorf("refresh snapshot still shows deleted item: %+v", it)
		}
	}
	if it, err := st.Get(ctx, "9"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(9) after refresh = %+v, %v; want ErrNotFound", it, err)
	}

	// A later refresh, listed after the delete, sees the same answer.
	if _, err := engine.FullRefresh(ctx); err != nil {
		t.Fatalf("second FullRefresh() failed: %v", err)
	}
	if _, err := st.Get(ctx, "9"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Get(9) after second refresh error = %v, want ErrNotFound", err)
	}
}

func TestEdit_RemoteOnlyRecord(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t, true)
	env.gateway.Seed("42", hammer())

	mallet := types.Fields{Name: "Mallet", Quantity: 2, Category: "Tools"}
	res, err := env.svc.Edit(ctx, "42", mallet)
	if err != nil {
		t.Fatalf("Edit() failed: %v", err)
	}
	if res.Outcome != OutcomeSynced {
		t.Errorf("Edit() outcome = %s, want synced", res.Outcome)
	}
	if env.gateway.Calls("update") != 1 {
		t.Errorf("remote update calls = %d, want 1", env.gateway.Calls("update"))
	}
	if f, _ := env.gateway.Lookup("42"); f != mallet {
		t.Errorf("remote fields = %+v, want %+v", f, mallet)
	}

	want := &types.Item{ID: "42", Fields: mallet, Synced: true, Pending: types.PendingNone}
	if diff := cmp.Diff(want, env.get(t, "42"), ignoreTime); diff != "" {
		t.Errorf("local item mismatch (-want +got):\n%s", diff)
	}
}

func TestEdit_UnknownEverywhere(t *testing.T) {
	ctx := context.Background()

	t.Run("online asks the remote", func(t *testing.T) {
		env := setupTestService(t, true)
		_, err := env.svc.Edit(ctx, "42", hammer())
		if !errors.Is(err, types.ErrNotFound) {
			t.Errorf("Edit() error = %v, want ErrNotFound", err)
		}
		if env.gateway.Calls("update") != 1 {
			t.Errorf("remote update calls = %d, want 1", env.gateway.Calls("update"))
		}
		if _, err := env.store.Get(ctx, "42"); !errors.Is(err, types.ErrNotFound) {
			t.Errorf("local Get(42) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("offline stages nothing", func(t *testing.T) {
		env := setupTestService(t, false)
		_, err := env.svc.Edit(ctx, "42", hammer())
		if !errors.Is(err, types.ErrNotFound) {
			t.Errorf("Edit() error = %v, want ErrNotFound", err)
		}
		if env.gateway.Calls("update") != 0 {
			t.Errorf("remote update calls = %d, want 0", env.gateway.Calls("update"))
		}
	})

	t.Run("temp id is never sent", func(t *testing.T) {
		env := setupTestService(t, true)
		_, err := env.svc.Edit(ctx, "temp-1", hammer())
		if !errors.Is(err, types.ErrNotFound) {
			t.Errorf("Edit() error = %v, want ErrNotFound", err)
		}
		if env.gateway.Calls("update") != 0 {
			t.Errorf("remote update calls = %d, want 0", env.gateway.Calls("update"))
		}
	})
}

func TestAdd_RejectedIsReported(t *testing.T) {
	env := setupTestService(t, true)
	env.gateway.RejectNext(1)

	_, err := env.svc.Add(context.Background(), hammer())
	if !errors.Is(err, types.ErrRejected) {
		t.Fatalf("Add() error = %v, want ErrRejected", err)
	}
	all, err := env.store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("store after rejected add = %+v, want empty", all)
	}
}
