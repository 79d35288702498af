// Package history keeps the newest-first log of domain events such as list
// and item deletions.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/notify"
)

// StorageKey holds the persisted event list.
var StorageKey = localstore.Key("history")

const (
	DefaultMaxEvents       = 2000
	DefaultMaxAgeDays      = 90
	DefaultDuplicateWindow = 5 * time.Second
	DefaultPersistDelay    = 300 * time.Millisecond

	// TypeListDelete events also compare the snapshot name when checking
	// for duplicates.
	TypeListDelete = "list.delete"
)

// Event is one recorded domain action. Timestamp is in Unix milliseconds.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  int64          `json:"ts"`
	Type       string         `json:"type"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID model.ID       `json:"resourceId"`
	ListID     model.ID       `json:"listId"`
	UserID     model.ID       `json:"userId"`
	Data       map[string]any `json:"data"`
	Meta       map[string]any `json:"meta"`
	Synced     bool           `json:"synced"`
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Options are the optional fields of RecordEvent.
type Options struct {
	ListID model.ID
	UserID model.ID
	Meta   map[string]any
	Synced bool
}

// PruneOptions override the configured limits for one Prune call. Zero
// values use the configured limits.
type PruneOptions struct {
	MaxEvents  int
	MaxAgeDays int
}

// Gauge receives the event count after every change.
type Gauge interface {
	SetHistoryEvents(n int)
}

type Config struct {
	MaxEvents       int
	MaxAgeDays      int
	DuplicateWindow time.Duration
	PersistDelay    time.Duration
	Now             func() time.Time
	Gauge           Gauge
}

func (c *Config) setDefaults() {
	if c.MaxEvents == 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.MaxAgeDays == 0 {
		c.MaxAgeDays = DefaultMaxAgeDays
	}
	if c.DuplicateWindow == 0 {
		c.DuplicateWindow = DefaultDuplicateWindow
	}
	if c.PersistDelay == 0 {
		c.PersistDelay = DefaultPersistDelay
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Log is the process-wide event log. Writes are coalesced: every mutation
// schedules one persist, and calls arriving before it runs share it.
type Log struct {
	local  localstore.Store
	broker *notify.Broker
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	events []Event

	persist *notify.Debouncer

	listenMu sync.Mutex
	sub      *notify.Subscription
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Log. broker may be nil when cross-process refresh is not needed.
func New(local localstore.Store, broker *notify.Broker, cfg Config, logger *slog.Logger) *Log {
	cfg.setDefaults()
	l := &Log{
		local:  local,
		broker: broker,
		cfg:    cfg,
		logger: logger.With("component", "history"),
	}
	l.persist = notify.NewDebouncer(cfg.PersistDelay, l.persistNow)
	return l
}

// Init reads the persisted log, starts following writes made by other
// processes and prunes.
func (l *Log) Init() {
	var events []Event
	if _, err := localstore.ReadJSON(l.local, StorageKey, &events); err != nil {
		l.logger.Warn("read history", "error", err)
		events = nil
	}
	l.mu.Lock()
	l.events = events
	l.mu.Unlock()

	l.listen()
	l.Prune(PruneOptions{})
}

// RecordEvent prepends a new event unless an event with the same type,
// resource and resource id was recorded within the duplicate window. It
// reports false for a suppressed duplicate.
func (l *Log) RecordEvent(eventType, resource string, resourceID model.ID, data map[string]any, opts Options) (Event, bool) {
	now := l.cfg.Now()

	l.mu.Lock()
	if l.isDuplicate(now, eventType, resource, resourceID, data) {
		l.mu.Unlock()
		l.logger.Debug("duplicate event suppressed", "type", eventType, "resource", resource, "resource_id", resourceID)
		return Event{}, false
	}

	meta := opts.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	ev := Event{
		ID:         uuid.NewString(),
		Timestamp:  now.UnixMilli(),
		Type:       eventType,
		Resource:   resource,
		ResourceID: resourceID,
		ListID:     opts.ListID,
		UserID:     opts.UserID,
		Data:       data,
		Meta:       meta,
		Synced:     opts.Synced,
	}
	l.events = append([]Event{ev}, l.events...)
	l.mu.Unlock()

	l.Prune(PruneOptions{})
	return ev, true
}

// isDuplicate must be called with l.mu held.
func (l *Log) isDuplicate(now time.Time, eventType, resource string, resourceID model.ID, data map[string]any) bool {
	window := l.cfg.DuplicateWindow.Milliseconds()
	nowMs := now.UnixMilli()
	for _, ev := range l.events {
		if nowMs-ev.Timestamp > window {
			continue
		}
		if ev.Type != eventType || ev.Resource != resource || ev.ResourceID != resourceID {
			continue
		}
		if eventType == TypeListDelete && nameOf(ev.Data) != nameOf(data) {
			continue
		}
		return true
	}
	return false
}

func nameOf(data map[string]any) string {
	v, ok := data["name"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// MarkSynced flags an event as pushed to the server and keeps serverInfo
// under meta["server"].
func (l *Log) MarkSynced(id string, serverInfo map[string]any) bool {
	l.mu.Lock()
	found := false
	for i := range l.events {
		if l.events[i].ID != id {
			continue
		}
		meta := make(map[string]any, len(l.events[i].Meta)+1)
		for k, v := range l.events[i].Meta {
			meta[k] = v
		}
		if serverInfo == nil {
			serverInfo = map[string]any{}
		}
		meta["server"] = serverInfo
		l.events[i].Meta = meta
		l.events[i].Synced = true
		found = true
		break
	}
	l.mu.Unlock()

	if found {
		l.persist.Schedule()
	}
	return found
}

// Prune drops events older than the age limit and then truncates the oldest
// events beyond the count limit.
func (l *Log) Prune(opts PruneOptions) {
	maxEvents, maxAgeDays := opts.MaxEvents, opts.MaxAgeDays
	if maxEvents == 0 {
		maxEvents = l.cfg.MaxEvents
	}
	if maxAgeDays == 0 {
		maxAgeDays = l.cfg.MaxAgeDays
	}

	l.mu.Lock()
	if maxAgeDays > 0 {
		cutoff := l.cfg.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour).UnixMilli()
		kept := l.events[:0:0]
		for _, ev := range l.events {
			if ev.Timestamp == 0 || ev.Timestamp >= cutoff {
				kept = append(kept, ev)
			}
		}
		l.events = kept
	}
	if maxEvents > 0 && len(l.events) > maxEvents {
		l.events = l.events[:maxEvents:maxEvents]
	}
	n := len(l.events)
	l.mu.Unlock()

	l.setGauge(n)
	l.persist.Schedule()
}

// Clear removes every event and persists immediately.
func (l *Log) Clear() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
	l.setGauge(0)
	if l.persist.Pending() {
		l.Flush()
		return
	}
	l.persistNow()
}

// Flush writes a pending persist now.
func (l *Log) Flush() {
	l.persist.Flush()
}

// Close flushes pending writes and stops following other processes.
func (l *Log) Close() {
	l.Flush()
	l.persist.Stop()
	l.stopListening()
}

func (l *Log) persistNow() {
	l.mu.RLock()
	events := l.events
	if events == nil {
		events = []Event{}
	}
	err := localstore.WriteJSON(l.local, StorageKey, events)
	l.mu.RUnlock()
	if err != nil {
		l.logger.Error("persist history", "error", err)
	}
}

func (l *Log) setGauge(n int) {
	if l.cfg.Gauge != nil {
		l.cfg.Gauge.SetHistoryEvents(n)
	}
}

// listen replaces the in-memory log whenever another process rewrites it.
func (l *Log) listen() {
	if l.broker == nil {
		return
	}
	l.listenMu.Lock()
	defer l.listenMu.Unlock()
	if l.sub != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.sub = l.broker.Subscribe(notify.Exact(StorageKey))
	l.cancel = cancel
	l.done = make(chan struct{})

	go func(sub *notify.Subscription, done chan struct{}) {
		defer close(done)
		sub.Consume(ctx, l.applyForeign)
	}(l.sub, l.done)
}

func (l *Log) applyForeign(c notify.Change) {
	var events []Event
	if !c.Deleted && c.Value != "" {
		if err := json.Unmarshal([]byte(c.Value), &events); err != nil {
			l.logger.Warn("decode foreign history", "error", err)
			return
		}
	}
	l.mu.Lock()
	l.events = events
	n := len(events)
	l.mu.Unlock()
	l.setGauge(n)
}

func (l *Log) stopListening() {
	l.listenMu.Lock()
	defer l.listenMu.Unlock()
	if l.sub == nil {
		return
	}
	l.cancel()
	<-l.done
	l.sub.Close()
	l.sub = nil
}
