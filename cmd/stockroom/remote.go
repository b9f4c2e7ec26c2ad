package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/stockroom/internal/remote"
	"github.com/mschirtzinger/stockroom/internal/store"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "advanced",
	Short:   "Reference remote store",
}

var remoteServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a reference remote store over HTTP",
	Long: `Serve the REST API stockroom syncs against, backed by its own SQLite file.
Useful for development and for trying offline/online behaviour locally.

Routes:
  POST   /items        create (the server mints the id)
  GET    /items        list
  PUT    /items/{id}   update (404 when unknown)
  DELETE /items/{id}   delete
  GET    /health       health check

Example:
  stockroom remote serve --addr :8787 --db /tmp/remote.db
  STOCKROOM_REMOTE_URL=http://localhost:8787 stockroom sync`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		dbPath, _ := cmd.Flags().GetString("db")
		token, _ := cmd.Flags().GetString("server-token")

		if dbPath == "" {
			requireDataDir()
			dbPath = filepath.Join(cfg.DataDir, "remote.db")
		}

		st, err := store.Open(dbPath)
		if err != nil {
			fatalf("Error opening remote store: %v", err)
		}
		defer st.Close()

		server := remote.NewServer(remote.NewStoreGateway(st), &remote.ServerConfig{
			Addr:   addr,
			Token:  token,
			Logger: logger("remote"),
		})
		if err := server.Start(); err != nil {
			_ = st.Close()
			fatalf("Error: failed to start remote server: %v", err)
		}

		fmt.Printf("Remote store listening on http://%s (data: %s)\n", server.GetAddr(), dbPath)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down remote server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	},
}

func init() {
	remoteServeCmd.Flags().String("addr", ":8787", "Address to listen on")
	remoteServeCmd.Flags().String("db", "", "SQLite file (default: <data-dir>/remote.db)")
	remoteServeCmd.Flags().String("server-token", "", "Require this bearer token on /items")

	remoteCmd.AddCommand(remoteServeCmd)
	rootCmd.AddCommand(remoteCmd)
}
