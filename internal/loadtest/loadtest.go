// Package loadtest stresses the offline-first write path.
//
// A Harness runs N concurrent agents issuing Add, Edit and Delete through
// the mutation service while a reconciler loop calls Sync, the
// connectivity oracle flaps, and the remote gateway fails a fraction of
// its calls. Afterwards it drains the queue and verifies that the local
// store and the remote store converge: no pending records, no temp ids,
// no duplicates, and exactly the records the agents expect to exist.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/stockroom/internal/connectivity"
	"github.com/mschirtzinger/stockroom/internal/inventory"
	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/store"
	stocksync "github.com/mschirtzinger/stockroom/internal/sync"
	"github.com/mschirtzinger/stockroom/internal/types"
)

// Options configures a run.
type Options struct {
	Agents      int           // Concurrent writers
	OpsPerAgent int           // Mutations per writer
	FailRate    float64       // Fraction of remote calls that fail (0..1)
	FlapEvery   time.Duration // Oracle toggle period (0 disables)
	SyncEvery   time.Duration // Reconciler period
	Seed        int64         // Random seed for reproducible runs
	Logger      *log.Logger   // Component logs (default: discarded)
}

// DefaultOptions returns a moderate run.
func DefaultOptions() Options {
	return Options{
		Agents:      20,
		OpsPerAgent: 25,
		FailRate:    0.2,
		FlapEvery:   20 * time.Millisecond,
		SyncEvery:   5 * time.Millisecond,
		Seed:        42,
	}
}

// LatencyStats captures per-mutation latency.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Total int
}

// Report summarizes a run.
type Report struct {
	Latency  *LatencyStats
	Outcomes map[inventory.Outcome]int
	Errors   int
	Syncs    int
	Flaps    int

	// DrainRounds is how many Syncs it took to empty the queue afterwards
	DrainRounds int

	// Expected is the number of live records the agents believe exist
	Expected int
	Remote   int
	Local    int
}

// Harness owns the components under test.
type Harness struct {
	Store   *store.Store
	Gateway *FlakyGateway
	Oracle  *connectivity.Manual
	Engine  *stocksync.Engine
	Service *inventory.Service

	backend *remote.MemoryGateway
	opts    Options
}

// NewHarness opens a store at dbPath and wires the service and engine to
// a flaky in-memory remote.
func NewHarness(dbPath string, opts Options) (*Harness, error) {
	if opts.Agents <= 0 || opts.OpsPerAgent <= 0 {
		return nil, fmt.Errorf("%w: agents and ops per agent must be positive", types.ErrInvalidArgument)
	}
	if opts.FailRate < 0 || opts.FailRate >= 1 {
		return nil, fmt.Errorf("%w: fail rate must be in [0, 1)", types.ErrInvalidArgument)
	}
	if opts.SyncEvery <= 0 {
		opts.SyncEvery = 5 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	backend := remote.NewMemoryGateway()
	gw := NewFlakyGateway(backend, opts.FailRate, opts.Seed)
	oracle := connectivity.NewManual(true)

	engine, err := stocksync.New(stocksync.Config{Store: st, Gateway: gw, Oracle: oracle, Logger: opts.Logger})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	svc, err := inventory.New(inventory.Config{Store: st, Gateway: gw, Engine: engine, Logger: opts.Logger})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &Harness{
		Store:   st,
		Gateway: gw,
		Oracle:  oracle,
		Engine:  engine,
		Service: svc,
		backend: backend,
		opts:    opts,
	}, nil
}

// Close closes the store.
func (h *Harness) Close() error {
	return h.Store.Close()
}

// agentState is what one agent believes about its own records.
type agentState struct {
	live      []string // ids as the agent knows them (temp or canonical)
	durations []time.Duration
	outcomes  map[inventory.Outcome]int
	errors    int
}

// Run executes the workload, drains the queue and verifies convergence.
// A verification failure is returned as an error alongside the report.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	report := &Report{Outcomes: make(map[inventory.Outcome]int)}

	var bg sync.WaitGroup
	var bgMu sync.Mutex

	bg.Add(1)
	go func() {
		defer bg.Done()
		ticker := time.NewTicker(h.opts.SyncEvery)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				// Parent ctx: cancelling mid-create would strand a remote record.
				_, _ = h.Engine.Sync(ctx)
				bgMu.Lock()
				report.Syncs++
				bgMu.Unlock()
			}
		}
	}()

	if h.opts.FlapEvery > 0 {
		bg.Add(1)
		go func() {
			defer bg.Done()
			ticker := time.NewTicker(h.opts.FlapEvery)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					h.Oracle.Set(!h.Oracle.Online())
					bgMu.Lock()
					report.Flaps++
					bgMu.Unlock()
				}
			}
		}()
	}

	states := make([]*agentState, h.opts.Agents)
	var agents sync.WaitGroup
	for i := 0; i < h.opts.Agents; i++ {
		states[i] = &agentState{outcomes: make(map[inventory.Outcome]int)}
		agents.Add(1)
		go func(agentID int, st *agentState) {
			defer agents.Done()
			h.runAgent(runCtx, agentID, st)
		}(i, states[i])
	}
	agents.Wait()

	stop()
	bg.Wait()

	var all []time.Duration
	for _, st := range states {
		all = append(all, st.durations...)
		report.Errors += st.errors
		report.Expected += len(st.live)
		for k, v := range st.outcomes {
			report.Outcomes[k] += v
		}
	}
	report.Latency = computeLatencyStats(all)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, h.drainAndVerify(ctx, report)
}

// runAgent issues OpsPerAgent mutations against the agent's own records.
func (h *Harness) runAgent(ctx context.Context, agentID int, st *agentState) {
	rng := rand.New(rand.NewSource(h.opts.Seed + int64(agentID)))

	for j := 0; j < h.opts.OpsPerAgent; j++ {
		if ctx.Err() != nil {
			return
		}

		var (
			res inventory.Result
			err error
		)
		start := time.Now()

		switch roll := rng.Intn(10); {
		case len(st.live) == 0 || roll < 5:
			f := types.Fields{
				Name:     fmt.Sprintf("agent-%d-item-%d", agentID, j),
				Quantity: rng.Intn(100),
				Category: fmt.Sprintf("batch-%d", agentID%5),
			}
			res, err = h.Service.Add(ctx, f)
			if err == nil {
				st.live = append(st.live, res.Item.ID)
			}

		case roll < 8:
			id := st.live[rng.Intn(len(st.live))]
			res, err = h.Service.Edit(ctx, id, types.Fields{
				Name:     fmt.Sprintf("agent-%d-edit-%d", agentID, j),
				Quantity: rng.Intn(100),
				Category: "edited",
			})

		default:
			idx := rng.Intn(len(st.live))
			res, err = h.Service.Delete(ctx, st.live[idx])
			if err == nil {
				st.live = append(st.live[:idx], st.live[idx+1:]...)
			}
		}

		st.durations = append(st.durations, time.Since(start))
		if err != nil {
			st.errors++
			continue
		}
		st.outcomes[res.Outcome]++
	}
}

// drainAndVerify brings the system online with a healthy remote, syncs
// until nothing is pending, and checks that both sides agree.
func (h *Harness) drainAndVerify(ctx context.Context, report *Report) error {
	h.Gateway.SetFailRate(0)
	h.Oracle.Set(true)

	const maxRounds = 10
	for report.DrainRounds < maxRounds {
		report.DrainRounds++
		res, err := h.Engine.Sync(ctx)
		if err != nil {
			return fmt.Errorf("drain sync failed: %w", err)
		}
		if res.Report.Failed == 0 && res.Snapshot.Pending() == 0 {
			break
		}
	}

	local, err := h.Store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read local store: %w", err)
	}
	remoteRecords, err := h.backend.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list remote: %w", err)
	}
	report.Local = len(local)
	report.Remote = len(remoteRecords)

	var problems []error
	remoteByID := make(map[string]types.Fields, len(remoteRecords))
	for _, rec := range remoteRecords {
		remoteByID[rec.ID] = rec.Fields
	}
	for _, it := range local {
		switch {
		case !it.Synced:
			problems = append(problems, fmt.Errorf("%s still pending %s", it.ID, it.Pending))
		case types.IsTempID(it.ID):
			problems = append(problems, fmt.Errorf("%s kept its temp id", it.ID))
		default:
			f, ok := remoteByID[it.ID]
			if !ok {
				problems = append(problems, fmt.Errorf("%s missing remotely", it.ID))
			} else if f != it.Fields {
				problems = append(problems, fmt.Errorf("%s differs: local %+v remote %+v", it.ID, it.Fields, f))
			}
		}
	}
	if report.Local != report.Remote {
		problems = append(problems, fmt.Errorf("local has %d records, remote has %d", report.Local, report.Remote))
	}
	if report.Remote != report.Expected {
		problems = append(problems, fmt.Errorf("remote has %d records, agents expect %d", report.Remote, report.Expected))
	}
	return errors.Join(problems...)
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(durations)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Total: len(durations),
	}
}

// Print formats the report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Mutations:      %d (errors: %d)\n", r.Latency.Total, r.Errors)
	fmt.Fprintf(w, "  synced:       %d\n", r.Outcomes[inventory.OutcomeSynced])
	fmt.Fprintf(w, "  queued:       %d\n", r.Outcomes[inventory.OutcomeQueued])
	fmt.Fprintf(w, "  deferred:     %d\n", r.Outcomes[inventory.OutcomeDeferred])
	fmt.Fprintf(w, "Syncs:          %d (flaps: %d, drain rounds: %d)\n", r.Syncs, r.Flaps, r.DrainRounds)
	fmt.Fprintf(w, "Records:        expected=%d local=%d remote=%d\n", r.Expected, r.Local, r.Remote)
	fmt.Fprintf(w, "Latency:\n")
	fmt.Fprintf(w, "  Min:          %v\n", r.Latency.Min)
	fmt.Fprintf(w, "  P50 (Median): %v\n", r.Latency.P50)
	fmt.Fprintf(w, "  Mean:         %v\n", r.Latency.Mean)
	fmt.Fprintf(w, "  P95:          %v\n", r.Latency.P95)
	fmt.Fprintf(w, "  P99:          %v\n", r.Latency.P99)
	fmt.Fprintf(w, "  Max:          %v\n", r.Latency.Max)
}
