// Package daemon provides the long-running sync process.
//
// The daemon:
// 1. Syncs once on start (Reconcile + FullRefresh)
// 2. Follows the connectivity oracle and syncs on every reconnect
// 3. Periodically re-syncs while online to pick up remote changes
// 4. Debounces bursts of sync requests into one run
// 5. Reports every sync and transition to its observers (the dashboard)
// 6. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/stockroom/internal/connectivity"
	stocksync "github.com/mschirtzinger/stockroom/internal/sync"
)

// Observer receives daemon events. dashboard.Handler implements it.
type Observer interface {
	OnSyncComplete(res stocksync.SyncResult, duration time.Duration)
	OnConnectivity(tr connectivity.Transition)
}

// Engine is the part of the sync engine the daemon drives.
type Engine interface {
	Sync(ctx context.Context) (stocksync.SyncResult, error)
	LocalSnapshot(ctx context.Context) (stocksync.Snapshot, error)
	Publish(snap stocksync.Snapshot)
}

// Config holds configuration for the daemon.
type Config struct {
	// RefreshInterval is how often to re-sync while online (0 disables)
	RefreshInterval time.Duration

	// DebounceInterval is how long a sync request waits so that bursts
	// (a flapping connection, several requests) collapse into one run
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RefreshInterval:  30 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates connectivity, sync and notification.
type Daemon struct {
	engine Engine
	oracle connectivity.Oracle
	config *Config

	observers   []Observer
	observersMu sync.RWMutex

	requestedAt time.Time // zero when no sync is requested
	requestMu   sync.Mutex

	stats   Stats
	statsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stats summarizes what the daemon has done since Start.
type Stats struct {
	Syncs       int
	FailedSyncs int
	Pushed      int
	LastSync    time.Time
	LastError   error
}

// New creates a new Daemon instance.
func New(engine Engine, oracle connectivity.Oracle) (*Daemon, error) {
	return NewWithConfig(engine, oracle, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(engine Engine, oracle connectivity.Oracle, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 250 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine: engine,
		oracle: oracle,
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// AddObserver registers obs for sync and connectivity events.
func (d *Daemon) AddObserver(obs Observer) {
	d.observersMu.Lock()
	defer d.observersMu.Unlock()
	d.observers = append(d.observers, obs)
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Perform an initial sync
// 2. Start following connectivity transitions
// 3. Periodically request a sync while online
// 4. Run debounced sync requests
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	transitions, unsubscribe := d.oracle.Subscribe()

	d.SyncNow()

	d.wg.Add(2)
	go d.watchConnectivity(transitions)
	go d.processRequests()

	if d.config.RefreshInterval > 0 {
		d.wg.Add(1)
		go d.periodicRefresh()
	}

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
	case <-d.ctx.Done():
	}

	unsubscribe()
	return d.Stop()
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.cancel()
	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// RequestSync asks for a sync; requests within DebounceInterval of each
// other are merged.
func (d *Daemon) RequestSync() {
	d.requestMu.Lock()
	defer d.requestMu.Unlock()
	d.requestedAt = time.Now()
}

// SyncNow runs a sync immediately and notifies observers.
func (d *Daemon) SyncNow() {
	start := time.Now()
	res, err := d.engine.Sync(d.ctx)
	duration := time.Since(start)

	d.statsMu.Lock()
	d.stats.Syncs++
	d.stats.LastSync = start
	d.stats.LastError = err
	d.stats.Pushed += res.Report.Pushed()
	if err != nil {
		d.stats.FailedSyncs++
	}
	d.statsMu.Unlock()

	if err != nil {
		d.config.Logger.Printf("Warning: sync failed: %v", err)
		return
	}

	d.config.Logger.Printf("Sync complete: pushed=%d failed=%d items=%d in %v",
		res.Report.Pushed(), res.Report.Failed, len(res.Snapshot.Items), duration)

	for _, obs := range d.snapshotObservers() {
		obs.OnSyncComplete(res, duration)
	}
}

// GetStats returns a copy of the daemon statistics.
func (d *Daemon) GetStats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// watchConnectivity forwards transitions and requests a sync on reconnect.
func (d *Daemon) watchConnectivity(transitions <-chan connectivity.Transition) {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case tr, ok := <-transitions:
			if !ok {
				return
			}

			for _, obs := range d.snapshotObservers() {
				obs.OnConnectivity(tr)
			}

			if tr.Online {
				d.config.Logger.Println("Back online, requesting sync")
				d.RequestSync()
				continue
			}

			d.config.Logger.Println("Went offline")
			if snap, err := d.engine.LocalSnapshot(d.ctx); err == nil {
				d.engine.Publish(snap)
			} else {
				d.config.Logger.Printf("Error reading local snapshot: %v", err)
			}
		}
	}
}

// processRequests runs requested syncs once they have settled.
func (d *Daemon) processRequests() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.requestMu.Lock()
			due := !d.requestedAt.IsZero() && time.Since(d.requestedAt) >= d.config.DebounceInterval
			if due {
				d.requestedAt = time.Time{}
			}
			d.requestMu.Unlock()

			if due {
				d.SyncNow()
			}
		}
	}
}

// periodicRefresh requests a sync on every tick while online.
func (d *Daemon) periodicRefresh() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.oracle.Online() {
				d.RequestSync()
			}
		}
	}
}

func (d *Daemon) snapshotObservers() []Observer {
	d.observersMu.RLock()
	defer d.observersMu.RUnlock()
	out := make([]Observer, len(d.observers))
	copy(out, d.observers)
	return out
}
