package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/listio/internal/app"
	"github.com/dukerupert/listio/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload an encrypted snapshot of the cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, func(ctx context.Context, m *backup.Manager) error {
			obj, err := m.RunNow(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d bytes)\n", obj.Key, obj.Size)
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackups(cmd, func(ctx context.Context, m *backup.Manager) error {
			objects, err := m.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tCREATED")
			for _, o := range objects {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [key]",
	Short: "Replace the cache with a snapshot (the newest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		}
		return withBackups(cmd, func(ctx context.Context, m *backup.Manager) error {
			n, err := m.Restore(ctx, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d keys\n", n)
			return nil
		})
	},
}

func init() {
	backupCmd.AddCommand(backupListCmd)
}

func withBackups(cmd *cobra.Command, fn func(ctx context.Context, m *backup.Manager) error) error {
	if !cfg.Backup.Configured() {
		return fmt.Errorf("%w: set backup.bucket, backup.access_key, backup.secret_key and backup.passphrase", backup.ErrNotConfigured)
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		return fn(ctx, backup.NewManager(backupConfig(), a.Local, nil, logger))
	})
}
