package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/stockroom/internal/config"
	"github.com/mschirtzinger/stockroom/internal/store"
	"github.com/mschirtzinger/stockroom/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .stockroom data directory here",
	Long: `Create .stockroom/ in the current directory with a commented config.toml
and an empty local store. Commands run anywhere below this directory find
it automatically.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fatalf("Error: %v", err)
		}

		dataDir, err := config.Init(cwd)
		if err != nil {
			fatalf("Error: %v", err)
		}

		loaded, err := config.Load(config.New(), dataDir)
		if err != nil {
			fatalf("Error loading config: %v", err)
		}

		st, err := store.Open(loaded.DBPath())
		if err != nil {
			fatalf("Error creating store: %v", err)
		}
		if err := st.Close(); err != nil {
			fatalf("Error: %v", err)
		}

		fmt.Printf("%s Initialized %s\n", ui.RenderPass(ui.GlyphPass), dataDir)
		fmt.Printf("   Config: %s\n", ui.RenderMuted(config.FileName))
		fmt.Printf("   Store:  %s\n", ui.RenderMuted(loaded.DBPath()))
		fmt.Println("\nSet remote.url in the config (or STOCKROOM_REMOTE_URL) to sync.")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
