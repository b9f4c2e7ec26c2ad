package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/stockroom/internal/loadtest"
	"github.com/mschirtzinger/stockroom/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Stress the sync engine against a flaky in-memory remote",
	Long: `Run concurrent agents adding, editing and deleting items while a
reconciler syncs, connectivity flaps and the remote fails a share of its
calls. Afterwards the queue is drained and the local and remote stores are
checked for convergence (no pending items, no temp ids, no duplicates).

Runs in a scratch directory; your inventory is not touched.

Examples:
  stockroom loadtest
  stockroom loadtest --agents 50 --ops 40 --fail-rate 0.4`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := loadtest.DefaultOptions()
		opts.Agents, _ = cmd.Flags().GetInt("agents")
		opts.OpsPerAgent, _ = cmd.Flags().GetInt("ops")
		opts.FailRate, _ = cmd.Flags().GetFloat64("fail-rate")
		opts.FlapEvery, _ = cmd.Flags().GetDuration("flap")
		opts.SyncEvery, _ = cmd.Flags().GetDuration("sync-every")
		opts.Seed, _ = cmd.Flags().GetInt64("seed")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		opts.Logger = logger("loadtest")

		dir, err := os.MkdirTemp("", "stockroom-loadtest-")
		if err != nil {
			fatalf("Error creating scratch directory: %v", err)
		}
		defer os.RemoveAll(dir)

		h, err := loadtest.NewHarness(filepath.Join(dir, "loadtest.db"), opts)
		if err != nil {
			fatalf("Error: %v", err)
		}
		defer h.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		fmt.Printf("%s Running %d agents x %d ops (fail rate %.0f%%, flap every %v)...\n\n",
			ui.RenderAccent(ui.GlyphSync), opts.Agents, opts.OpsPerAgent, opts.FailRate*100, opts.FlapEvery)

		report, runErr := h.Run(ctx)
		if report != nil && report.Latency != nil {
			report.Print(os.Stdout)
		}
		if runErr != nil {
			_ = h.Close()
			_ = os.RemoveAll(dir)
			fatalf("\n%s Convergence check failed:\n%v", ui.RenderFail(ui.GlyphFail), runErr)
		}
		fmt.Printf("\n%s Local and remote stores converged\n", ui.RenderPass(ui.GlyphPass))
	},
}

func init() {
	defaults := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("agents", defaults.Agents, "Concurrent writers")
	loadtestCmd.Flags().Int("ops", defaults.OpsPerAgent, "Mutations per writer")
	loadtestCmd.Flags().Float64("fail-rate", defaults.FailRate, "Fraction of remote calls that fail (0-1)")
	loadtestCmd.Flags().Duration("flap", defaults.FlapEvery, "Connectivity toggle period (0 disables)")
	loadtestCmd.Flags().Duration("sync-every", defaults.SyncEvery, "Reconciler period")
	loadtestCmd.Flags().Int64("seed", defaults.Seed, "Random seed")
	loadtestCmd.Flags().Duration("timeout", 2*time.Minute, "Abort after this long")

	rootCmd.AddCommand(loadtestCmd)
}
