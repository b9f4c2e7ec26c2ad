package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/stockroom/internal/config"
)

var (
	// v holds defaults, config file, env and bound flags
	v = config.New()

	// cfg is resolved in PersistentPreRun
	cfg *config.Config

	dataDirFlag string
	verbose     bool
	jsonOutput  bool

	// logOut receives component logs; closeLog releases it
	logOut   io.Writer = io.Discard
	closeLog           = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "stockroom",
	Short: "Offline-first inventory with background sync",
	Long: `stockroom keeps an inventory usable without a network connection.

Every change is written to a local SQLite store first. When the remote
store is reachable, changes are pushed and the local list is refreshed from
the remote snapshot; when it is not, changes queue up and are reconciled on
reconnect.

Get started:
  stockroom init
  stockroom add "Hammer" --qty 5 --category Tools
  stockroom list`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		dataDir := dataDirFlag
		if dataDir == "" {
			dataDir = config.FindDataDir()
		}

		loaded, err := config.Load(v, dataDir)
		if err != nil {
			fatalf("Error loading config: %v", err)
		}
		cfg = loaded

		logOut, closeLog = cfg.LogWriter(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = closeLog()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "items", Title: "Inventory:"},
		&cobra.Group{ID: "sync", Title: "Sync and connectivity:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&dataDirFlag, "dir", "", "Data directory (default: nearest .stockroom/)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")
	flags.BoolVar(&jsonOutput, "json", false, "Output JSON")
	flags.String("remote", "", "Remote store URL (remote.url)")
	flags.String("token", "", "Remote bearer token (remote.token)")
	flags.String("mode", "", "Connectivity mode: flag, probe or online (connectivity.mode)")

	_ = v.BindPFlag("remote.url", flags.Lookup("remote"))
	_ = v.BindPFlag("remote.token", flags.Lookup("token"))
	_ = v.BindPFlag("connectivity.mode", flags.Lookup("mode"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	_ = closeLog()
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
