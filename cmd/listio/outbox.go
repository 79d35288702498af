package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/listio/internal/app"
	"github.com/dukerupert/listio/internal/outbox"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and replay queued list item writes",
}

var outboxStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending and dead-lettered writes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			out := cmd.OutOrStdout()
			pending, dead := a.Outbox.Entries(), a.Outbox.DeadLetters()

			fmt.Fprintf(out, "pending: %d\n", len(pending))
			if err := printEntries(out, pending); err != nil {
				return err
			}
			fmt.Fprintf(out, "\ndead letters: %d\n", len(dead))
			return printEntries(out, dead)
		})
	},
}

var outboxProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Replay pending writes now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res := a.Items.ProcessOutbox(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d, dead-lettered %d, remaining %d\n",
				res.Processed, res.DeadLettered, res.Remaining)
			if res.Err != nil {
				return fmt.Errorf("replay halted: %w", res.Err)
			}
			return nil
		})
	},
}

var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue <entry-id>",
	Short: "Move a dead-lettered write back to the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if err := a.Outbox.Requeue(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s\n", args[0])
			return nil
		})
	},
}

var outboxDiscardCmd = &cobra.Command{
	Use:   "discard <entry-id>",
	Short: "Drop a dead-lettered write",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			return a.Outbox.Discard(args[0])
		})
	},
}

func init() {
	outboxCmd.AddCommand(outboxStatusCmd, outboxProcessCmd, outboxRequeueCmd, outboxDiscardCmd)
}

func printEntries(w io.Writer, entries []outbox.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOP\tLIST\tITEM\tQUEUED\tATTEMPTS\tLAST ERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID, e.Op, e.ListID, e.ItemID, e.EnqueuedAt.Local().Format(time.DateTime), e.Attempts, e.LastError)
	}
	return tw.Flush()
}
