package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dukerupert/listio/internal/app"
	"github.com/dukerupert/listio/internal/category"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/store"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Refresh the session and cached data from the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			report, err := a.Bootstrap(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "authenticated: %t\n", report.Authenticated)
			if report.SessionCleared {
				fmt.Fprintln(out, "session expired, signed out")
			}
			for _, step := range []struct {
				name string
				err  error
			}{
				{"profile", report.ProfileErr},
				{"categories", report.CategoriesErr},
				{"lists", report.ListsErr},
			} {
				if step.err != nil {
					fmt.Fprintf(out, "%s: using cached data (%v)\n", step.name, step.err)
				}
			}
			if report.MigratedLists > 0 {
				fmt.Fprintf(out, "migrated items of %d lists\n", report.MigratedLists)
			}
			fmt.Fprintf(out, "done in %s\n", report.Duration.Round(time.Millisecond))
			return nil
		})
	},
}

var listsRefresh bool

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show cached shopping lists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			a.Lists.Load()
			if listsRefresh {
				if err := a.Lists.Reload(ctx); err != nil {
					return err
				}
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tITEMS")
			for _, l := range a.Lists.All() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", l.ID, l.Name, len(a.Items.Items(l.ID)))
			}
			return tw.Flush()
		})
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Manage the items of a list",
}

var itemsListCmd = &cobra.Command{
	Use:   "list <list-id>",
	Short: "Show the items of a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return printItems(cmd.OutOrStdout(), a.Items.Items(model.ID(args[0])))
		})
	},
}

var (
	addQuantity string
	addUnit     string
	addCategory string
	itemsLocal  bool
	checkUndo   bool
)

var itemsAddCmd = &cobra.Command{
	Use:   "add <list-id> <name>",
	Short: "Add an item to a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := decimal.NewFromString(addQuantity)
		if err != nil {
			return fmt.Errorf("parse quantity %q: %w", addQuantity, err)
		}
		return mutateItems(cmd, args[0], func(a *app.App, opts store.MutationOptions) error {
			item := model.ListItem{Name: args[1], Quantity: qty, Unit: addUnit}
			a.Categories.Load()
			if addCategory != "" {
				if c, ok := a.Categories.GetByName(addCategory); ok {
					item.CategoryID, item.CategoryName = c.ID, c.Name
				} else {
					item.CategoryName = addCategory
				}
			} else if c, ok := a.Categories.Resolve(category.Categorize(item.Name)); ok {
				item.CategoryID, item.CategoryName = c.ID, c.Name
			}
			added, err := a.Items.AddItem(item, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", added.DisplayName(), added.ID)
			return nil
		})
	},
}

var itemsCheckCmd = &cobra.Command{
	Use:   "check <list-id> <item-id>",
	Short: "Mark an item as purchased",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateItems(cmd, args[0], func(a *app.App, opts store.MutationOptions) error {
			_, err := a.Items.UpdateItem(model.ID(args[1]), model.Patch{"purchased": !checkUndo}, opts)
			return err
		})
	},
}

var itemsRemoveCmd = &cobra.Command{
	Use:   "remove <list-id> <item-id>",
	Short: "Remove an item from a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateItems(cmd, args[0], func(a *app.App, opts store.MutationOptions) error {
			return a.Items.DeleteItem(model.ID(args[1]), opts)
		})
	},
}

func init() {
	listsCmd.Flags().BoolVar(&listsRefresh, "refresh", false, "reload lists from the server first")

	itemsAddCmd.Flags().StringVar(&addQuantity, "qty", "1", "quantity")
	itemsAddCmd.Flags().StringVar(&addUnit, "unit", "", "unit of measure")
	itemsAddCmd.Flags().StringVar(&addCategory, "category", "", "category name (guessed from the item name when empty)")
	itemsCheckCmd.Flags().BoolVar(&checkUndo, "undo", false, "mark as not purchased")
	for _, c := range []*cobra.Command{itemsAddCmd, itemsCheckCmd, itemsRemoveCmd} {
		c.Flags().BoolVar(&itemsLocal, "local", false, "change the cache only, without syncing")
	}

	itemsCmd.AddCommand(itemsListCmd, itemsAddCmd, itemsCheckCmd, itemsRemoveCmd)
}

// mutateItems loads listID, applies fn and then tries to replay the outbox
// once. A failed replay leaves the writes queued.
func mutateItems(cmd *cobra.Command, listID string, fn func(a *app.App, opts store.MutationOptions) error) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		a.Lists.Load()
		a.Items.Load(ctx, model.ID(listID))

		if err := fn(a, store.MutationOptions{Local: itemsLocal}); err != nil {
			return err
		}
		if itemsLocal {
			return nil
		}
		res := a.Items.ProcessOutbox(ctx)
		if res.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "sync deferred, %d writes queued: %v\n", res.Remaining, res.Err)
		}
		return nil
	})
}

func printItems(w io.Writer, items []model.ListItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tQTY\tUNIT\tNAME\tCATEGORY")
	for _, i := range items {
		done := " "
		if i.Purchased {
			done = "x"
		}
		fmt.Fprintf(tw, "%s\t[%s]\t%s\t%s\t%s\t%s\n", i.ID, done, i.Quantity, i.Unit, i.DisplayName(), i.CategoryName)
	}
	return tw.Flush()
}
