package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/listio/internal/app"
	"github.com/dukerupert/listio/internal/backup"
	"github.com/dukerupert/listio/internal/config"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/outbox"
	"github.com/dukerupert/listio/internal/server"
	ws "github.com/dukerupert/listio/internal/websocket"
)

var serveList string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local daemon",
	Long: `Bootstraps the cache, replays the outbox periodically and serves the
local HTTP API: /healthz, /metrics, the /ws change feed, history export
and outbox management.

With --list the given list is observed: its items follow writes made by
other processes and the outbox is replayed on the list's schedule.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), serve)
	},
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:8765", "address of the local HTTP API")
	serveCmd.Flags().StringVar(&serveList, "list", "", "id of the list to observe")
	if err := v.BindPFlag(config.KeyListenAddr, serveCmd.Flags().Lookup("listen")); err != nil {
		panic(err)
	}
}

func serve(ctx context.Context, a *app.App) error {
	log := logger.With("component", "serve")

	report, err := a.Bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	log.Info("bootstrap complete", "authenticated", report.Authenticated, "duration", report.Duration)

	if serveList != "" {
		a.Items.Load(ctx, model.ID(serveList))
	} else {
		proc := outbox.NewProcessor(a.Outbox, a.Items, cfg.OutboxInterval, logger)
		proc.Start(ctx)
		defer proc.Stop()
	}

	hub := ws.NewHub(logger.With("component", "hub"))
	go hub.Follow(ctx, a.Broker)

	backups := backup.NewManager(backupConfig(), a.Local, func(s backup.Status) {
		log.Info("backup status", "state", s.State, "key", s.LastKey, "error", s.Error)
	}, logger)
	backups.Start(ctx)
	defer backups.Stop()

	srv := server.New(a, hub, logger)

	// Forget idle rate-limit windows.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func backupConfig() backup.Config {
	b := cfg.Backup
	return backup.Config{
		S3: backup.S3Config{
			Endpoint:  b.Endpoint,
			Bucket:    b.Bucket,
			Region:    b.Region,
			AccessKey: b.AccessKey,
			SecretKey: b.SecretKey,
		},
		Passphrase: b.Passphrase,
		Prefix:     b.Prefix,
		Interval:   b.Interval,
		Retention:  b.Retention,
	}
}
