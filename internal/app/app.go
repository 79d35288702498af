// Package app assembles the client: storage, gateway, stores, outbox and
// history share one App that is passed to every command and the daemon.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/bootstrap"
	"github.com/dukerupert/listio/internal/config"
	"github.com/dukerupert/listio/internal/database"
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/metrics"
	"github.com/dukerupert/listio/internal/notify"
	"github.com/dukerupert/listio/internal/outbox"
	"github.com/dukerupert/listio/internal/store"
	"github.com/dukerupert/listio/internal/vault"
)

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	DB      *sql.DB
	Local   *localstore.SQLStore
	Broker  *notify.Broker
	Watcher *localstore.Watcher
	Client  *api.Client
	Metrics *metrics.Metrics
	Vault   *vault.Vault
	History *history.Log
	Outbox  *outbox.Queue

	User       *store.UserStore
	Categories *store.CategoryStore
	Lists      *store.ListStore
	Items      *store.ListItemStore
	Products   *store.ProductStore
	Pantry     *store.PantryStore

	started bool
}

// New opens the database at cfg.DBPath and constructs every component.
// Nothing runs in the background until Start.
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Local:   localstore.NewSQLStore(db, uuid.NewString()),
		Broker:  notify.NewBroker(),
		Metrics: metrics.New(),
		Vault:   vault.New(cfg.SessionPassphrase),
	}
	a.Watcher = localstore.NewWatcher(a.Local, a.Broker, cfg.DBPath, logger.With("component", "watcher"))
	a.Client = api.NewClient(cfg.APIBaseURL, api.WithObserver(a.Metrics))

	a.History = history.New(a.Local, a.Broker, history.Config{
		MaxEvents:  cfg.HistoryMaxEvents,
		MaxAgeDays: cfg.HistoryMaxAgeDays,
		Gauge:      a.Metrics,
	}, logger)
	a.Outbox = outbox.New(a.Local, outbox.Policy{
		MaxAttempts: cfg.OutboxMaxAttempts,
		BackoffBase: cfg.OutboxBackoffBase,
		BackoffMax:  cfg.OutboxBackoffMax,
	}, logger, outbox.WithRecorder(a.Metrics))

	a.User = store.NewUserStore(a.Local, a.Client, a.Vault, logger)
	a.Client.SetTokenSource(a.User)

	a.Categories = store.NewCategoryStore(a.Local, a.Client, logger)
	a.Products = store.NewProductStore(a.Local, a.Client, a.History, logger)
	a.Pantry = store.NewPantryStore(a.Local, a.Client, a.User, a.History, logger)
	a.Lists = store.NewListStore(store.ListStoreDeps{
		Local:   a.Local,
		Client:  a.Client,
		User:    a.User,
		History: a.History,
		Logger:  logger,
	})
	a.Items = store.NewListItemStore(store.ListItemStoreDeps{
		Local:    a.Local,
		Client:   a.Client,
		Queue:    a.Outbox,
		Broker:   a.Broker,
		History:  a.History,
		Lists:    a.Lists,
		Logger:   logger,
		Interval: cfg.OutboxInterval,
	})
	a.Lists.SetItemsCleaner(a.Items)

	return a, nil
}

// Start loads the stored session and the history log, and begins publishing
// writes made by other processes sharing the database.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	if err := a.Watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	a.User.Load()
	a.History.Init()
	a.started = true
	return nil
}

// Bootstrap runs the startup sequence over the app's stores.
func (a *App) Bootstrap(ctx context.Context) (bootstrap.Report, error) {
	return bootstrap.Run(ctx, bootstrap.Deps{
		Local:      a.Local,
		User:       a.User,
		Categories: a.Categories,
		Lists:      a.Lists,
		Products:   a.Products,
		Pantry:     a.Pantry,
		Items:      a.Items,
		Logger:     a.Logger,
	})
}

// Close stops background work, flushes pending history writes and closes the
// database.
func (a *App) Close() error {
	a.Items.Close()
	if a.started {
		a.Watcher.Stop()
	}
	a.History.Close()

	var errs []error
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	return errors.Join(errs...)
}
