// Package bootstrap runs the startup sequence that brings the local cache up
// to date before the stores are used.
package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

// MigrationKey marks the move of embedded list items into per-list keys.
var MigrationKey = localstore.Key("migrated", "list-items", "v1")

type Users interface {
	Load()
	Token() string
	FetchProfile(ctx context.Context) (model.UserProfile, error)
	ClearProfile()
}

type Categories interface {
	Load()
	Init(ctx context.Context) error
}

type Lists interface {
	Load()
	Reload(ctx context.Context) error
	All() []model.List
	Set(lists []model.List)
}

type Loader interface {
	Load()
}

type ItemWriter interface {
	SetItems(listID model.ID, items []model.ListItem)
}

type Deps struct {
	Local      localstore.Store
	User       Users
	Categories Categories
	Lists      Lists
	Products   Loader
	Pantry     Loader
	Items      ItemWriter
	Logger     *slog.Logger
}

// Report describes what a Run did. Failed remote steps fell back to the
// local snapshot.
type Report struct {
	Authenticated  bool
	SessionCleared bool
	ProfileErr     error
	CategoriesErr  error
	ListsErr       error
	MigratedLists  int
	Duration       time.Duration
}

// Run executes the startup sequence. Every step is best effort: remote
// failures degrade to the local snapshot and never abort startup. The
// returned error is only the context's.
func Run(ctx context.Context, d Deps) (Report, error) {
	start := time.Now()
	logger := d.Logger.With("component", "bootstrap")
	var r Report

	d.User.Load()
	r.Authenticated = d.User.Token() != ""
	logger.Debug("user loaded", "authenticated", r.Authenticated)

	if r.Authenticated {
		if _, err := d.User.FetchProfile(ctx); err != nil {
			r.ProfileErr = err
			logger.Warn("refresh profile", "error", err)
			if api.IsUnauthorized(err) {
				logger.Warn("session rejected, clearing it")
				d.User.ClearProfile()
				r.SessionCleared = true
			}
		}
	}

	// Lists render with category metadata, so categories come first.
	if r.Authenticated {
		if err := d.Categories.Init(ctx); err != nil {
			r.CategoriesErr = err
			logger.Warn("init categories", "error", err)
			d.Categories.Load()
		}
		if err := d.Lists.Reload(ctx); err != nil {
			r.ListsErr = err
			logger.Warn("reload lists", "error", err)
			d.Lists.Load()
		}
	} else {
		d.Categories.Load()
		d.Lists.Load()
	}
	if err := ctx.Err(); err != nil {
		return r, err
	}

	var g errgroup.Group
	g.Go(func() error { d.Products.Load(); return nil })
	g.Go(func() error { d.Pantry.Load(); return nil })
	_ = g.Wait()

	n, err := migrateListItems(d)
	if err != nil {
		logger.Warn("migrate list items", "error", err)
	}
	r.MigratedLists = n
	r.Duration = time.Since(start)

	logger.Info("bootstrap complete",
		"authenticated", r.Authenticated,
		"migrated_lists", n,
		"duration", r.Duration,
	)
	return r, nil
}

// migrateListItems moves items embedded in list records into the list-items
// keys, once per installation.
func migrateListItems(d Deps) (int, error) {
	_, done, err := d.Local.Get(MigrationKey)
	if err != nil {
		return 0, err
	}
	if done {
		return 0, nil
	}

	lists := d.Lists.All()
	migrated := 0
	for i, l := range lists {
		if len(l.Items) == 0 {
			continue
		}
		d.Items.SetItems(l.ID, l.Items)
		lists[i].Items = nil
		migrated++
	}
	if migrated > 0 {
		d.Lists.Set(lists)
	}
	return migrated, d.Local.Set(MigrationKey, "1")
}
