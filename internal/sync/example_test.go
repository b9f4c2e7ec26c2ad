package sync_test

import (
	"context"
	"fmt"
	"log"

	"github.com/mschirtzinger/stockroom/internal/connectivity"
	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/store"
	"github.com/mschirtzinger/stockroom/internal/sync"
)

// This example demonstrates wiring an engine and running one sync.
// Note: This is for documentation only and won't run as a test.
func ExampleNew() {
	st, err := store.Open(".stockroom/stockroom.db")
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	gw, err := remote.NewHTTPGateway(remote.HTTPConfig{BaseURL: "http://localhost:8787"})
	if err != nil {
		log.Fatal(err)
	}

	engine, err := sync.New(sync.Config{
		Store:   st,
		Gateway: gw,
		Oracle:  connectivity.NewManual(true),
	})
	if err != nil {
		log.Fatal(err)
	}

	res, err := engine.Sync(context.Background())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Pushed %d, showing %d items\n", res.Report.Pushed(), len(res.Snapshot.Items))
}

// This example demonstrates following connectivity changes.
func ExampleEngine_Run() {
	st, err := store.Open(".stockroom/stockroom.db")
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	oracle := connectivity.NewFlagFile(".stockroom", "", nil)
	if err := oracle.Start(); err != nil {
		log.Fatal(err)
	}
	defer oracle.Stop()

	engine, err := sync.New(sync.Config{
		Store:   st,
		Gateway: remote.NewMemoryGateway(),
		Oracle:  oracle,
	})
	if err != nil {
		log.Fatal(err)
	}

	engine.Subscribe(sync.SubscriberFunc(func(s sync.Snapshot) {
		fmt.Printf("%d items (online=%t, pending=%d)\n", len(s.Items), s.Online, s.Pending())
	}))

	// Blocks until the context is cancelled
	if err := engine.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
