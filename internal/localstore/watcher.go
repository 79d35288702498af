package localstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dukerupert/listio/internal/notify"
)

const defaultPollInterval = 2 * time.Second

// Watcher publishes writes made by other processes sharing the same database
// file. File events wake it early; a poll ticker covers filesystems where
// notifications are unreliable.
type Watcher struct {
	mu       sync.Mutex
	store    *SQLStore
	broker   *notify.Broker
	dbPath   string
	interval time.Duration
	lastSeq  int64
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for the database at dbPath. An in-memory
// database is only polled.
func NewWatcher(store *SQLStore, broker *notify.Broker, dbPath string, logger *slog.Logger) *Watcher {
	return &Watcher{
		store:    store,
		broker:   broker,
		dbPath:   dbPath,
		interval: defaultPollInterval,
		logger:   logger,
	}
}

// SetInterval overrides the poll interval. It must be called before Start.
func (w *Watcher) SetInterval(d time.Duration) {
	if d > 0 {
		w.interval = d
	}
}

// Start records the current sequence number and begins watching. Calling
// Start on a running Watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	seq, err := w.store.LastSeq()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.lastSeq = seq
	ctx, w.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	w.done = done
	w.mu.Unlock()

	var fw *fsnotify.Watcher
	if w.dbPath != "" && !strings.Contains(w.dbPath, ":memory:") {
		fw, err = fsnotify.NewWatcher()
		if err != nil {
			w.logger.Warn("file notifications unavailable, polling only", "error", err)
			fw = nil
		} else if err := fw.Add(filepath.Dir(w.dbPath)); err != nil {
			w.logger.Warn("watch database directory", "path", w.dbPath, "error", err)
			fw.Close()
			fw = nil
		}
	}

	go w.run(ctx, fw, done)
	return nil
}

// Stop halts the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Poll publishes every foreign change written since the last poll.
func (w *Watcher) Poll() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	changes, err := w.store.ChangesSince(w.lastSeq)
	if err != nil {
		return err
	}
	for _, c := range changes {
		if c.Seq > w.lastSeq {
			w.lastSeq = c.Seq
		}
		if c.Origin == w.store.Origin() {
			continue
		}
		w.broker.Publish(c)
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var events chan fsnotify.Event
	var errs chan error
	if fw != nil {
		defer fw.Close()
		events = fw.Events
		errs = fw.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	base := filepath.Base(w.dbPath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if strings.HasPrefix(filepath.Base(ev.Name), base) && ev.Has(fsnotify.Write) {
				w.poll()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) poll() {
	if err := w.Poll(); err != nil {
		w.logger.Warn("poll storage changes", "error", err)
	}
}
