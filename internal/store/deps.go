package store

import (
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/model"
)

// EventRecorder records domain events. *history.Log implements it.
type EventRecorder interface {
	RecordEvent(eventType, resource string, resourceID model.ID, data map[string]any, opts history.Options) (history.Event, bool)
}

// Identity names the signed-in user for user-scoped storage keys.
type Identity interface {
	UserID() string
}

// MutationOptions control whether a local mutation is also synced.
type MutationOptions struct {
	// Local skips the remote sync.
	Local bool
}

type noIdentity struct{}

func (noIdentity) UserID() string { return "" }

type noRecorder struct{}

func (noRecorder) RecordEvent(string, string, model.ID, map[string]any, history.Options) (history.Event, bool) {
	return history.Event{}, false
}

// fallback reloads a store's last local snapshot when a remote read failed on
// an empty collection.
func fallback[T any](c *Collection[T], err error) error {
	if c.Len() == 0 {
		c.Load()
	}
	return err
}

// payloadOf converts a record to a request body without the named fields.
func payloadOf(v any, drop ...string) (model.Patch, error) {
	p, err := model.ToPatch(v)
	if err != nil {
		return nil, err
	}
	for _, k := range drop {
		delete(p, k)
	}
	return p, nil
}
