package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/stockroom/internal/migrate"
	"github.com/mschirtzinger/stockroom/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "advanced",
	Short:   "Export items to JSONL, TOML or YAML",
	Long: `Export the local inventory (deleted items excluded). The format follows
the file extension unless --format is given. Items not yet synced are
exported with their pending tag.

Examples:
  stockroom export items.jsonl
  stockroom export backup.yaml --backup`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		backup, _ := cmd.Flags().GetBool("backup")

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.close()

		res, err := migrate.Export(ctx, a.store, migrate.ExportOptions{
			Path:   args[0],
			Format: migrate.Format(format),
			Backup: backup,
		})
		if err != nil {
			a.close()
			fatalf("Error exporting: %v", err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		fmt.Printf("%s Exported %d items to %s\n", ui.RenderPass(ui.GlyphPass), res.Exported, args[0])
		if res.Pending > 0 {
			fmt.Printf("   %d not yet synced\n", res.Pending)
		}
		if res.BackupCreated != "" {
			fmt.Printf("   Backup: %s\n", res.BackupCreated)
		}
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "advanced",
	Short:   "Import items from JSONL, TOML or YAML",
	Long: `Add every record in a file as a new item. Ids in the file are ignored:
online, the remote store assigns them; offline, items are queued with
temporary ids like any other add.

Examples:
  stockroom import items.jsonl
  stockroom import stock.toml --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.close()

		res, err := migrate.Import(ctx, a.service, migrate.ImportOptions{
			Path:   args[0],
			Format: migrate.Format(format),
			DryRun: dryRun,
		})
		if err != nil {
			a.close()
			fatalf("Error importing: %v", err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		if dryRun {
			fmt.Printf("%s Dry run: %d records read, %d invalid\n",
				ui.RenderAccent(ui.GlyphPass), res.Read, len(res.Errors))
		} else {
			fmt.Printf("%s Imported %d of %d records (synced %d, queued %d, deferred %d)\n",
				ui.RenderPass(ui.GlyphPass), res.Added(), res.Read, res.Synced, res.Queued, res.Deferred)
		}
		for _, e := range res.Errors {
			fmt.Printf("   %s %s\n", ui.RenderFail(ui.GlyphFail), e)
		}
	},
}

func init() {
	exportCmd.Flags().String("format", "", "jsonl, toml or yaml (default: from extension)")
	exportCmd.Flags().Bool("backup", false, "Keep a copy of an existing output file")
	importCmd.Flags().String("format", "", "jsonl, toml or yaml (default: from extension)")
	importCmd.Flags().Bool("dry-run", false, "Validate without adding")

	rootCmd.AddCommand(exportCmd, importCmd)
}
