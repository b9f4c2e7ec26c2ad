package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mschirtzinger/stockroom/internal/inventory"
	stocksync "github.com/mschirtzinger/stockroom/internal/sync"
	"github.com/mschirtzinger/stockroom/internal/types"
	"github.com/mschirtzinger/stockroom/internal/ui"
	"github.com/mschirtzinger/stockroom/internal/view"
)

var addCmd = &cobra.Command{
	Use:     "add [name]",
	GroupID: "items",
	Short:   "Add an item",
	Long: `Add an item to the inventory.

Online, the remote store assigns the item's id right away. Offline (or if
the remote call fails) the item gets a temporary id like temp-1700000000000
and is created remotely on the next sync; the temporary id keeps working
as an alias afterwards.

Examples:
  stockroom add "Hammer" --qty 5 --category Tools
  stockroom add --interactive`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := fieldsFromFlags(cmd.Flags(), types.Fields{}, args)
		if err != nil {
			fatalf("Error: %v", err)
		}
		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if f, err = ui.RunItemForm("New item", f); err != nil {
				fatalf("Error: %v", err)
			}
		}

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.close()

		res, err := a.service.Add(ctx, f)
		if err != nil {
			a.close()
			fatalf("Error adding item: %v", err)
		}
		printResult("Added", res)
	},
}

var editCmd = &cobra.Command{
	Use:     "edit <id>",
	GroupID: "items",
	Short:   "Edit an item",
	Long: `Edit an item's fields. Only the flags you pass are changed.

The id may be a temporary id from an offline add; it is resolved to the
item's current id.

Examples:
  stockroom edit 42 --qty 7
  stockroom edit temp-1700000000000 --name "Claw hammer"
  stockroom edit 42 --interactive`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.close()

		cur, err := a.service.Get(ctx, args[0])
		if err != nil {
			a.close()
			fatalf("Error: %v", err)
		}

		f, err := fieldsFromFlags(cmd.Flags(), cur.Fields, nil)
		if err != nil {
			a.close()
			fatalf("Error: %v", err)
		}
		if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
			if f, err = ui.RunItemForm("Edit "+cur.ID, f); err != nil {
				a.close()
				fatalf("Error: %v", err)
			}
		}

		res, err := a.service.Edit(ctx, args[0], f)
		if err != nil {
			a.close()
			fatalf("Error editing %s: %v", args[0], err)
		}
		printResult("Updated", res)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	GroupID: "items",
	Short:   "Delete an item",
	Long: `Delete an item. It disappears from the list immediately; offline, the
remote delete is queued for the next sync.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.close()

		res, err := a.service.Delete(ctx, args[0])
		if err != nil {
			a.close()
			fatalf("Error deleting %s: %v", args[0], err)
		}
		printResult("Deleted", res)
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "items",
	Short:   "List items",
	Long: `List the inventory.

By default the local store is shown as is. With --refresh, pending changes
are pushed and the list is reloaded from the remote store first (when
online).

Examples:
  stockroom list
  stockroom list --filter tools --sort name-asc
  stockroom list --refresh --json`,
	Run: func(cmd *cobra.Command, args []string) {
		filter, _ := cmd.Flags().GetString("filter")
		sortFlag, _ := cmd.Flags().GetString("sort")
		refresh, _ := cmd.Flags().GetBool("refresh")

		sortKey, err := view.ParseSort(sortFlag)
		if err != nil {
			fatalf("Error: %v", err)
		}

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.close()

		snap, err := loadSnapshot(ctx, a, refresh)
		if err != nil {
			a.close()
			fatalf("Error loading items: %v", err)
		}
		items := view.Project(snap.Items, view.State{Filter: filter, Sort: sortKey})

		if jsonOutput {
			outputJSON(items)
			return
		}
		fmt.Println(ui.RenderBanner(snap.Online, snap.Pending()))
		fmt.Println(ui.RenderItems(items))
	},
}

func init() {
	for _, c := range []*cobra.Command{addCmd, editCmd} {
		c.Flags().StringP("name", "n", "", "Item name")
		c.Flags().IntP("qty", "q", 0, "Quantity")
		c.Flags().StringP("category", "c", "", "Category")
		c.Flags().BoolP("interactive", "i", false, "Fill the fields in a form")
	}

	listCmd.Flags().StringP("filter", "f", "", "Case-insensitive category filter")
	listCmd.Flags().StringP("sort", "s", "none", "Sort: none, name-asc or name-desc")
	listCmd.Flags().BoolP("refresh", "r", false, "Sync with the remote store first")

	rootCmd.AddCommand(addCmd, editCmd, deleteCmd, listCmd)
}

// fieldsFromFlags overlays the flags the user set onto base. A positional
// name counts as --name.
func fieldsFromFlags(flags *pflag.FlagSet, base types.Fields, args []string) (types.Fields, error) {
	f := base
	if len(args) > 0 {
		f.Name = args[0]
	}
	if flags.Changed("name") {
		f.Name, _ = flags.GetString("name")
	}
	if flags.Changed("qty") {
		f.Quantity, _ = flags.GetInt("qty")
	}
	if flags.Changed("category") {
		f.Category, _ = flags.GetString("category")
	}
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)

	if interactive, _ := flags.GetBool("interactive"); interactive {
		return f, nil
	}
	return f, f.Validate()
}

// loadSnapshot returns the display list, synced first when asked.
func loadSnapshot(ctx context.Context, a *app, refresh bool) (stocksync.Snapshot, error) {
	if refresh {
		res, err := a.engine.Sync(ctx)
		return res.Snapshot, err
	}
	return a.engine.LocalSnapshot(ctx)
}

// printResult reports one mutation.
func printResult(verb string, res inventory.Result) {
	if jsonOutput {
		out := map[string]any{
			"item":    res.Item,
			"outcome": res.Outcome,
		}
		if res.Err != nil {
			out["error"] = res.Err.Error()
		}
		outputJSON(out)
		return
	}

	label := fmt.Sprintf("%s %s (%s)", verb, res.Item.ID, res.Item.Name)
	switch res.Outcome {
	case inventory.OutcomeSynced:
		fmt.Printf("%s %s\n", ui.RenderPass(ui.GlyphPass), label)
	case inventory.OutcomeQueued:
		fmt.Printf("%s %s %s\n", ui.RenderWarn(ui.GlyphWarn), label, ui.RenderMuted("offline, queued for sync"))
	case inventory.OutcomeDeferred:
		fmt.Printf("%s %s %s\n", ui.RenderWarn(ui.GlyphWarn), label, ui.RenderMuted("remote unavailable, queued for sync"))
		if verbose && res.Err != nil {
			fmt.Fprintf(os.Stderr, "  %v\n", res.Err)
		}
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("Error encoding JSON: %v", err)
	}
}
