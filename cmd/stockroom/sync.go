package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/stockroom/internal/config"
	"github.com/mschirtzinger/stockroom/internal/connectivity"
	stocksync "github.com/mschirtzinger/stockroom/internal/sync"
	"github.com/mschirtzinger/stockroom/internal/ui"
)

// storageThreshold is the fraction of storage.max_mb that triggers a
// warning in status.
const storageThreshold = 0.8

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Push pending changes and refresh from the remote store",
	Long: `Synchronize with the remote store:
  1. Push every pending create, update and delete (Reconcile)
  2. Reload the list from the remote snapshot (FullRefresh)

Offline, nothing is pushed and the local list is shown.

With --watch, sync keeps running: it syncs again every time connectivity
comes back, until interrupted.`,
	Run: func(cmd *cobra.Command, args []string) {
		watch, _ := cmd.Flags().GetBool("watch")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := openApp(ctx)
		defer a.close()

		if !watch {
			fmt.Printf("%s Syncing...\n", ui.RenderAccent(ui.GlyphSync))
			start := time.Now()
			res, err := a.engine.Sync(ctx)
			if err != nil {
				a.close()
				fatalf("Error during sync: %v", err)
			}
			printSyncResult(res, time.Since(start))
			return
		}

		if err := a.watch(ctx); err != nil {
			a.close()
			fatalf("Error watching connectivity: %v", err)
		}
		a.engine.Subscribe(stocksync.SubscriberFunc(func(snap stocksync.Snapshot) {
			fmt.Printf("%s %s %d items (%s)\n",
				ui.RenderMuted(snap.At.Format("15:04:05")), ui.RenderBanner(snap.Online, snap.Pending()),
				len(snap.Items), snap.Source)
		}))

		fmt.Printf("%s Watching for connectivity changes. Press Ctrl+C to stop...\n", ui.RenderAccent(ui.GlyphSync))
		if err := a.engine.Run(ctx); err != nil {
			a.close()
			fatalf("Error: %v", err)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show connectivity, pending changes and storage usage",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.close()

		st, err := collectStatus(ctx, a)
		if err != nil {
			a.close()
			fatalf("Error: %v", err)
		}

		if jsonOutput {
			outputJSON(st)
			return
		}

		fmt.Printf("\n%s\n\n", ui.RenderBanner(st.Online, st.Pending))
		fmt.Printf("   Mode:     %s\n", st.Mode)
		remoteURL := st.Remote
		if remoteURL == "" {
			remoteURL = ui.RenderMuted("(none)")
		}
		fmt.Printf("   Remote:   %s\n", remoteURL)
		fmt.Printf("   Items:    %d\n", st.Total)
		for op, n := range st.ByOp {
			if op != "none" && n > 0 {
				fmt.Printf("     pending %-7s %d\n", op, n)
			}
		}
		fmt.Printf("   Store:    %s\n", st.Path)
		fmt.Printf("   Size:     %.2f MB of %d MB (%.0f%%)\n", st.SizeMB, st.MaxMB, st.Usage*100)
		if st.StorageWarning {
			fmt.Printf("\n%s Local storage is above %.0f%% of storage.max_mb\n",
				ui.RenderWarn(ui.GlyphWarn), storageThreshold*100)
		}
		fmt.Println()
	},
}

var onlineCmd = &cobra.Command{
	Use:     "online",
	GroupID: "sync",
	Short:   "Clear the offline flag",
	Long: `Remove the offline flag file (.stockroom/offline). In flag mode a running
daemon or 'sync --watch' reconnects and syncs at once.`,
	Run: func(cmd *cobra.Command, args []string) {
		setFlag(false)
	},
}

var offlineCmd = &cobra.Command{
	Use:     "offline",
	GroupID: "sync",
	Short:   "Set the offline flag",
	Long: `Create the offline flag file (.stockroom/offline). In flag mode every
change is queued locally until 'stockroom online'.`,
	Run: func(cmd *cobra.Command, args []string) {
		setFlag(true)
	},
}

func init() {
	syncCmd.Flags().BoolP("watch", "w", false, "Keep running and sync on every reconnect")
	rootCmd.AddCommand(syncCmd, statusCmd, onlineCmd, offlineCmd)
}

func printSyncResult(res stocksync.SyncResult, elapsed time.Duration) {
	if jsonOutput {
		errs := make([]string, 0, len(res.Report.Errors))
		for _, err := range res.Report.Errors {
			errs = append(errs, err.Error())
		}
		outputJSON(map[string]any{
			"created":   res.Report.Created,
			"updated":   res.Report.Updated,
			"deleted":   res.Report.Deleted,
			"recreated": res.Report.Recreated,
			"failed":    res.Report.Failed,
			"rejected":  res.Report.Rejected,
			"offline":   res.Report.Offline,
			"source":    res.Snapshot.Source,
			"items":     len(res.Snapshot.Items),
			"pending":   res.Snapshot.Pending(),
			"errors":    errs,
		})
		return
	}

	if res.Report.Offline {
		fmt.Printf("%s Offline: %d changes waiting\n", ui.RenderWarn(ui.GlyphWarn), res.Snapshot.Pending())
		return
	}

	r := res.Report
	fmt.Printf("%s Sync complete in %v\n", ui.RenderPass(ui.GlyphPass), elapsed.Round(time.Millisecond))
	fmt.Printf("   Pushed: %d (created %d, updated %d, deleted %d, recreated %d)\n",
		r.Pushed(), r.Created, r.Updated, r.Deleted, r.Recreated)
	if r.Failed > 0 {
		fmt.Printf("   %s %d failed, will retry\n", ui.RenderFail(ui.GlyphFail), r.Failed)
	}
	if r.Rejected > 0 {
		fmt.Printf("   %s %d rejected by the remote store (kept pending, edit to fix)\n", ui.RenderFail(ui.GlyphFail), r.Rejected)
	}
	for _, err := range r.Errors {
		fmt.Printf("     %v\n", err)
	}
	source := "remote"
	if res.Snapshot.Source == stocksync.SourceLocal {
		source = ui.RenderWarn("local (remote list unavailable)")
	}
	fmt.Printf("   Items:  %d from %s\n", len(res.Snapshot.Items), source)
}

// status is the report of the status command.
type status struct {
	Online         bool           `json:"online"`
	Mode           string         `json:"mode"`
	Remote         string         `json:"remote"`
	Total          int            `json:"total"`
	Pending        int            `json:"pending"`
	ByOp           map[string]int `json:"by_op"`
	Path           string         `json:"path"`
	SizeMB         float64        `json:"size_mb"`
	MaxMB          int            `json:"max_mb"`
	Usage          float64        `json:"usage"`
	StorageWarning bool           `json:"storage_warning"`
}

func collectStatus(ctx context.Context, a *app) (status, error) {
	counts, err := a.store.Count(ctx)
	if err != nil {
		return status{}, err
	}
	size, err := a.store.SizeBytes()
	if err != nil {
		return status{}, err
	}

	st := status{
		Online:  a.oracle.Online(),
		Mode:    a.cfg.Connectivity.Mode,
		Remote:  a.cfg.Remote.URL,
		Total:   counts.Total,
		Pending: counts.Unsynced,
		ByOp:    make(map[string]int),
		Path:    a.store.Path(),
		SizeMB:  float64(size) / (1024 * 1024),
		MaxMB:   a.cfg.Storage.MaxMB,
	}
	for op, n := range counts.ByOp {
		st.ByOp[string(op)] = n
	}
	st.Usage, st.StorageWarning = storageUsage(size, a.cfg.Storage.MaxMB)
	return st, nil
}

// storageUsage returns the used fraction of maxMB and whether it crosses
// storageThreshold. maxMB of 0 disables the check.
func storageUsage(sizeBytes int64, maxMB int) (float64, bool) {
	if maxMB <= 0 {
		return 0, false
	}
	usage := float64(sizeBytes) / float64(int64(maxMB)*1024*1024)
	return usage, usage > storageThreshold
}

func setFlag(offline bool) {
	requireDataDir()

	var err error
	if offline {
		err = connectivity.SetOffline(cfg.DataDir, connectivity.DefaultFlagName)
	} else {
		err = connectivity.SetOnline(cfg.DataDir, connectivity.DefaultFlagName)
	}
	if err != nil {
		fatalf("Error: %v", err)
	}

	state := "online"
	if offline {
		state = "offline"
	}
	fmt.Printf("%s Flag set: %s\n", ui.RenderPass(ui.GlyphPass), state)
	if cfg.Connectivity.Mode != config.ModeFlag {
		fmt.Printf("%s connectivity.mode is %q; the flag only applies in flag mode\n",
			ui.RenderWarn(ui.GlyphWarn), cfg.Connectivity.Mode)
	}
}
