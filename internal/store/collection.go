// Package store holds the per-entity caches. Each store mirrors an ordered
// in-memory collection to one storage key, applies local mutations
// immediately and syncs them through the gateway.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

var (
	// ErrNoList is returned by list-item operations before a list is loaded.
	ErrNoList = errors.New("store: no list loaded")
	// ErrNotFound is returned when a record is not in the local collection.
	ErrNotFound = errors.New("store: record not found")
)

// Collection is an ordered, persisted set of records. Storage failures are
// logged and swallowed: the in-memory copy stays authoritative.
type Collection[T any] struct {
	local  localstore.Store
	idOf   func(T) model.ID
	logger *slog.Logger

	mu    sync.RWMutex
	key   string
	items []T
}

// NewCollection creates an empty collection bound to key.
func NewCollection[T any](local localstore.Store, key string, idOf func(T) model.ID, logger *slog.Logger) *Collection[T] {
	return &Collection[T]{local: local, key: key, idOf: idOf, logger: logger}
}

func (c *Collection[T]) Key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

// SetKey rebinds the collection to another key without touching its items.
func (c *Collection[T]) SetKey(key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}

// Load replaces the items with the stored snapshot. A missing or unreadable
// snapshot yields an empty collection. It reports whether a snapshot was read.
func (c *Collection[T]) Load() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	var items []T
	ok, err := localstore.ReadJSON(c.local, c.key, &items)
	if err != nil {
		c.logger.Warn("load collection", "key", c.key, "error", err)
		items, ok = nil, false
	}
	c.items = items
	return ok
}

// Save writes the items to storage.
func (c *Collection[T]) Save() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.saveLocked()
}

// saveLocked must be called with c.mu held.
func (c *Collection[T]) saveLocked() {
	if c.key == "" {
		return
	}
	items := c.items
	if items == nil {
		items = []T{}
	}
	if err := localstore.WriteJSON(c.local, c.key, items); err != nil {
		c.logger.Error("save collection", "key", c.key, "error", err)
	}
}

// All returns a copy of the items in order.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) Get(id model.ID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Find returns the first item accepted by match.
func (c *Collection[T]) Find(match func(T) bool) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if match(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Add prepends item and saves.
func (c *Collection[T]) Add(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T{item}, c.items...)
	c.saveLocked()
}

// Update merges patch into the record with id and saves.
func (c *Collection[T]) Update(id model.ID, patch model.Patch) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	i := c.indexLocked(id)
	if i < 0 {
		return zero, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	merged, err := model.Merge(c.items[i], patch)
	if err != nil {
		return zero, fmt.Errorf("update %s: %w", id, err)
	}
	c.items[i] = merged
	c.saveLocked()
	return merged, nil
}

// Replace swaps the record with id for item, keeping its position, and saves.
func (c *Collection[T]) Replace(id model.ID, item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.items[i] = item
	c.saveLocked()
	return true
}

// Upsert replaces the record with the same id or prepends item.
func (c *Collection[T]) Upsert(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(c.idOf(item)); i >= 0 {
		c.items[i] = item
	} else {
		c.items = append([]T{item}, c.items...)
	}
	c.saveLocked()
}

// Delete removes the record with id and saves.
func (c *Collection[T]) Delete(id model.ID) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	i := c.indexLocked(id)
	if i < 0 {
		return zero, false
	}
	removed := c.items[i]
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	c.saveLocked()
	return removed, true
}

// Set replaces every item and saves.
func (c *Collection[T]) Set(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T(nil), items...)
	c.saveLocked()
}

// Reset replaces every item without saving. Used when the new state was
// read from storage.
func (c *Collection[T]) Reset(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T(nil), items...)
}

// Mutate runs fn over the items under the lock and saves the result.
func (c *Collection[T]) Mutate(fn func([]T) []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = fn(c.items)
	c.saveLocked()
}

func (c *Collection[T]) indexLocked(id model.ID) int {
	for i, it := range c.items {
		if c.idOf(it) == id {
			return i
		}
	}
	return -1
}
