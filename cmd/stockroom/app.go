package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mschirtzinger/stockroom/internal/config"
	"github.com/mschirtzinger/stockroom/internal/connectivity"
	"github.com/mschirtzinger/stockroom/internal/inventory"
	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/store"
	stocksync "github.com/mschirtzinger/stockroom/internal/sync"
	"github.com/mschirtzinger/stockroom/internal/types"
)

// app is the wired set of components a command works with.
type app struct {
	cfg     *config.Config
	store   *store.Store
	gateway remote.Gateway
	oracle  connectivity.Oracle
	engine  *stocksync.Engine
	service *inventory.Service

	// set for the oracle sources that need starting in long-running commands
	flagFile *connectivity.FlagFile
	probe    *connectivity.Probe
}

// unconfiguredGateway stands in when no remote.url is set. Every call
// fails as unavailable, so writes queue locally.
type unconfiguredGateway struct{}

var errNoRemote = fmt.Errorf("%w: no remote configured (set remote.url)", types.ErrRemoteUnavailable)

func (unconfiguredGateway) Create(context.Context, types.Fields) (remote.Record, error) {
	return remote.Record{}, errNoRemote
}
func (unconfiguredGateway) List(context.Context) ([]remote.Record, error) { return nil, errNoRemote }
func (unconfiguredGateway) Update(context.Context, string, types.Fields) error {
	return errNoRemote
}
func (unconfiguredGateway) Delete(context.Context, string) error { return errNoRemote }

func logger(component string) *log.Logger {
	return config.Logger(logOut, component)
}

// requireDataDir exits unless a data directory was found.
func requireDataDir() {
	if cfg.DataDir == "" {
		fatalf("Error: %s directory not found (run 'stockroom init')", config.DirName)
	}
}

// openApp opens the store and wires gateway, oracle, engine and service.
// For probe mode a single health check sets the initial state.
func openApp(ctx context.Context) *app {
	requireDataDir()

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		fatalf("Error opening store: %v", err)
	}

	a := &app{cfg: cfg, store: st}

	if cfg.Remote.URL == "" {
		a.gateway = unconfiguredGateway{}
	} else {
		gw, err := remote.NewHTTPGateway(remote.HTTPConfig{
			BaseURL: cfg.Remote.URL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
			Rate:    cfg.Remote.Rate,
			Burst:   cfg.Remote.Burst,
		})
		if err != nil {
			_ = st.Close()
			fatalf("Error configuring remote: %v", err)
		}
		a.gateway = gw
	}

	a.oracle, err = a.buildOracle(ctx)
	if err != nil {
		_ = st.Close()
		fatalf("Error: %v", err)
	}

	a.engine, err = stocksync.New(stocksync.Config{
		Store:   st,
		Gateway: a.gateway,
		Oracle:  a.oracle,
		Logger:  logger("sync"),
	})
	if err != nil {
		_ = st.Close()
		fatalf("Error creating sync engine: %v", err)
	}

	a.service, err = inventory.New(inventory.Config{
		Store:   st,
		Gateway: a.gateway,
		Engine:  a.engine,
		Logger:  logger("inventory"),
	})
	if err != nil {
		_ = st.Close()
		fatalf("Error creating inventory service: %v", err)
	}

	return a
}

// buildOracle picks the connectivity source for the configured mode. With
// no remote configured the app is always offline.
func (a *app) buildOracle(ctx context.Context) (connectivity.Oracle, error) {
	if _, ok := a.gateway.(unconfiguredGateway); ok {
		return connectivity.NewManual(false), nil
	}

	switch a.cfg.Connectivity.Mode {
	case config.ModeOnline:
		return connectivity.NewManual(true), nil

	case config.ModeFlag:
		a.flagFile = connectivity.NewFlagFile(a.cfg.DataDir, connectivity.DefaultFlagName, logger("connectivity"))
		return a.flagFile, nil

	case config.ModeProbe:
		checker, ok := a.gateway.(connectivity.HealthChecker)
		if !ok {
			return nil, errors.New("probe mode needs a remote with a health endpoint")
		}
		a.probe = connectivity.NewProbe(checker, &connectivity.ProbeConfig{
			Interval: a.cfg.Connectivity.ProbeInterval,
			Timeout:  a.cfg.Remote.Timeout,
			Logger:   logger("connectivity"),
		})
		a.probe.Check(ctx)
		return a.probe, nil
	}
	return nil, fmt.Errorf("unknown connectivity mode %q", a.cfg.Connectivity.Mode)
}

// watch starts the oracle's background source for long-running commands.
func (a *app) watch(ctx context.Context) error {
	if a.flagFile != nil {
		return a.flagFile.Start()
	}
	if a.probe != nil {
		return a.probe.Start(ctx)
	}
	return nil
}

// close stops oracle sources and closes the store.
func (a *app) close() {
	if a.flagFile != nil {
		_ = a.flagFile.Stop()
	}
	if a.probe != nil {
		a.probe.Stop()
	}
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(logOut, "Warning: %v\n", err)
	}
}
