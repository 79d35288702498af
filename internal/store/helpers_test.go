package store

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dukerupert/listio/internal/api"
	"github.com/dukerupert/listio/internal/database"
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupLocal(t *testing.T) *localstore.SQLStore {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return localstore.NewSQLStore(db, "test")
}

// backend is a scripted REST server. Routes are keyed by "METHOD /path";
// unknown routes answer 404.
type backend struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  []string
	bodies map[string][]byte
}

func newBackend(t *testing.T) (*backend, *api.Client) {
	t.Helper()
	b := &backend{routes: map[string]http.HandlerFunc{}, bodies: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		body, _ := io.ReadAll(r.Body)

		b.mu.Lock()
		b.calls = append(b.calls, route)
		b.bodies[route] = body
		h, ok := b.routes[route]
		b.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return b, api.NewClient(srv.URL)
}

func (b *backend) on(route string, h http.HandlerFunc) {
	b.mu.Lock()
	b.routes[route] = h
	b.mu.Unlock()
}

// reply registers a fixed JSON answer.
func (b *backend) reply(route string, status int, body string) {
	b.on(route, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	})
}

func (b *backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *backend) count(route string) int {
	n := 0
	for _, c := range b.Calls() {
		if c == route {
			n++
		}
	}
	return n
}

func (b *backend) body(t *testing.T, route string) map[string]any {
	t.Helper()
	b.mu.Lock()
	raw := b.bodies[route]
	b.mu.Unlock()
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

type recordedEvent struct {
	Type, Resource string
	ResourceID     model.ID
	Data           map[string]any
	Opts           history.Options
}

// events is an EventRecorder that suppresses repeats of the same type and id.
type events struct {
	mu  sync.Mutex
	all []recordedEvent
}

func (e *events) RecordEvent(eventType, resource string, id model.ID, data map[string]any, opts history.Options) (history.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, prev := range e.all {
		if prev.Type == eventType && prev.ResourceID == id {
			return history.Event{}, false
		}
	}
	e.all = append(e.all, recordedEvent{eventType, resource, id, data, opts})
	return history.Event{Type: eventType}, true
}

func (e *events) List() []recordedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]recordedEvent(nil), e.all...)
}

type staticUser string

func (u staticUser) UserID() string { return string(u) }

type namer map[model.ID]string

func (n namer) Name(id model.ID) string { return n[id] }

func readStored[T any](t *testing.T, local localstore.Store, key string) []T {
	t.Helper()
	var out []T
	_, err := localstore.ReadJSON(local, key, &out)
	require.NoError(t, err)
	return out
}
