package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/stockroom/internal/daemon"
	"github.com/mschirtzinger/stockroom/internal/dashboard"
	"github.com/mschirtzinger/stockroom/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync process",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Syncs once on start
  2. Syncs again every time connectivity comes back
  3. Re-syncs periodically while online (daemon.refresh_interval)

With --dashboard it also serves the live WebSocket dashboard.`,
	Run: func(cmd *cobra.Command, args []string) {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		runDaemon(cmd.Context(), withDashboard, port)
	},
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard showing the inventory as it changes.

The sync daemon runs alongside the server, so the page follows
reconnects and background refreshes.

WebSocket messages include:
- snapshot: the full item list (sent first to every new client)
- sync_complete: a sync finished, with push counts
- connectivity: the app went online or offline
- stats: item and pending counts

Example usage:
  stockroom dashboard                 # Start on dashboard.port (default 8080)
  stockroom dashboard --port 9000     # Start on custom port

Endpoints:
  ws://localhost:8080/ws
  http://localhost:8080/items?filter=tools&sort=name-asc
  http://localhost:8080/health`,
	Run: func(cmd *cobra.Command, args []string) {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		runDaemon(cmd.Context(), true, port)
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Also serve the WebSocket dashboard")
	daemonCmd.Flags().IntP("port", "p", 8080, "Dashboard port (dashboard.port)")
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (dashboard.port)")

	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}

// runDaemon runs the daemon, optionally with the dashboard, until
// interrupted.
func runDaemon(parent context.Context, withDashboard bool, port int) {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := openApp(ctx)
	defer a.close()

	if err := a.watch(ctx); err != nil {
		a.close()
		fatalf("Error watching connectivity: %v", err)
	}

	d, err := daemon.NewWithConfig(a.engine, a.oracle, &daemon.Config{
		RefreshInterval: cfg.Daemon.RefreshInterval,
		Logger:          logger("daemon"),
	})
	if err != nil {
		a.close()
		fatalf("Error creating daemon: %v", err)
	}

	if withDashboard {
		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: logger("dashboard"),
		})
		handler := dashboard.NewHandler(server, logger("dashboard"))
		a.engine.Subscribe(handler)
		d.AddObserver(handler)

		if err := server.Start(); err != nil {
			a.close()
			fatalf("Error: failed to start dashboard: %v", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
			}
		}()

		if snap, err := a.engine.LocalSnapshot(ctx); err == nil {
			handler.OnSnapshot(snap)
		}

		fmt.Printf("Dashboard server started on http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
	}

	fmt.Printf("%s Daemon running (mode: %s). Press Ctrl+C to stop...\n",
		ui.RenderAccent(ui.GlyphSync), cfg.Connectivity.Mode)

	if err := d.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	stats := d.GetStats()
	fmt.Printf("\nDaemon stopped after %d syncs (%d failed, %d changes pushed)\n",
		stats.Syncs, stats.FailedSyncs, stats.Pushed)
}
