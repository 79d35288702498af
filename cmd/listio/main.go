package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dukerupert/listio/internal/app"
	"github.com/dukerupert/listio/internal/config"
	"github.com/dukerupert/listio/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configDir string

	v      = config.New()
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "listio",
	Short: "Offline-first client for the shopping list backend",
	Long: `listio keeps a local cache of your shopping lists, pantries and products,
applies changes immediately and replays list item writes to the server
through a persisted outbox.

Run "listio serve" to keep a daemon replaying the outbox and exposing the
local change feed.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.ReadFile(v, configDir); err != nil {
			return err
		}
		var err error
		cfg, err = config.Load(v)
		if err != nil {
			return err
		}
		logger = logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "listio %s\n", version)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", "", "directory holding config.yaml")
	flags.String("api", config.DefaultAPIBaseURL, "backend base URL")
	flags.String("db", "listio.db", "path of the local cache database")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	mustBind(config.KeyAPIBaseURL, "api")
	mustBind(config.KeyDBPath, "db")
	mustBind(config.KeyLogLevel, "log-level")
	mustBind(config.KeyLogFormat, "log-format")

	rootCmd.AddCommand(
		versionCmd,
		serveCmd,
		bootstrapCmd,
		listsCmd,
		itemsCmd,
		historyCmd,
		outboxCmd,
		loginCmd,
		logoutCmd,
		backupCmd,
		restoreCmd,
	)
}

func mustBind(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// withApp opens the app, starts it and closes it once fn returns.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) (err error) {
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := a.Start(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
