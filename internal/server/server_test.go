package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/listio/internal/app"
	"github.com/dukerupert/listio/internal/config"
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/logging"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/outbox"
	ws "github.com/dukerupert/listio/internal/websocket"
)

type backendLog struct {
	mu   sync.Mutex
	auth []string
}

func setup(t *testing.T, backend http.HandlerFunc) (*app.App, http.Handler, *backendLog) {
	t.Helper()
	log := &backendLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.mu.Lock()
		log.auth = append(log.auth, r.Header.Get("Authorization"))
		log.mu.Unlock()
		backend(w, r)
	}))
	t.Cleanup(srv.Close)

	a, err := app.New(config.Config{
		APIBaseURL:        srv.URL,
		DBPath:            ":memory:",
		OutboxInterval:    time.Hour,
		OutboxMaxAttempts: 3,
		OutboxBackoffBase: time.Second,
		OutboxBackoffMax:  time.Minute,
		HistoryMaxEvents:  100,
		HistoryMaxAgeDays: 30,
	}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	require.NoError(t, a.Start(context.Background()))

	hub := ws.NewHub(logging.Discard())
	return a, New(a, hub, logging.Discard()).Router(), log
}

func do(t *testing.T, h http.Handler, method, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, h, _ := setup(t, http.NotFound)

	rec := do(t, h, "GET", "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["signed_in"])
	assert.Equal(t, float64(0), body["outbox_pending"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, h, _ := setup(t, http.NotFound)

	rec := do(t, h, "GET", "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "listio_outbox_pending_entries")
}

func TestHistoryExport(t *testing.T) {
	a, h, _ := setup(t, http.NotFound)
	a.History.RecordEvent("list.delete", "list", "1", map[string]any{"name": "Groceries"}, history.Options{ListID: "1"})
	a.History.RecordEvent("product.delete", "product", "9", map[string]any{"name": "Milk"}, history.Options{})

	rec := do(t, h, "GET", "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []history.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = do(t, h, "GET", "/api/history?type=list.delete")
	var lists []history.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lists))
	require.Len(t, lists, 1)
	assert.Equal(t, model.ID("1"), lists[0].ResourceID)

	rec = do(t, h, "GET", "/api/history?list=2")
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, h, "GET", "/api/history?format=csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(rec.Body.String(), "\n")
	assert.Equal(t, "id,ts,type,resource,resourceId,listId,userId,meta", lines[0])
	assert.Len(t, lines, 3)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/history?format=xml").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/api/history?since=yesterday").Code)

	rec = do(t, h, "GET", "/api/history?since=2000-01-01T00:00:00Z")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestOutboxListing(t *testing.T) {
	a, h, _ := setup(t, http.NotFound)
	_, err := a.Outbox.Enqueue(outbox.Entry{Op: outbox.OpDelete, ListID: "1", ItemID: "10"})
	require.NoError(t, err)

	rec := do(t, h, "GET", "/api/outbox")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Pending []outbox.Entry `json:"pending"`
		Dead    []outbox.Entry `json:"dead"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Pending, 1)
	assert.Equal(t, outbox.OpDelete, body.Pending[0].Op)
	assert.Empty(t, body.Dead)
}

func TestProcessRequiresSession(t *testing.T) {
	_, h, log := setup(t, http.NotFound)

	rec := do(t, h, "POST", "/api/outbox/process")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, log.auth)
}

func TestProcessReplaysWithCallerToken(t *testing.T) {
	a, h, log := setup(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "DELETE" && r.URL.Path == "/api/shopping-lists/1/items/10" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.NotFound(w, r)
	})
	a.User.SetProfile(model.UserProfile{ID: "7", Token: "stored"})
	_, err := a.Outbox.Enqueue(outbox.Entry{Op: outbox.OpDelete, ListID: "1", ItemID: "10"})
	require.NoError(t, err)

	rec := do(t, h, "POST", "/api/outbox/process", "Authorization", "Bearer caller")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["processed"])
	assert.Equal(t, float64(0), body["remaining"])
	assert.Zero(t, a.Outbox.Len())
	assert.Equal(t, []string{"Bearer caller"}, log.auth)
}

func TestProcessIsRateLimited(t *testing.T) {
	a, h, _ := setup(t, http.NotFound)
	a.User.SetProfile(model.UserProfile{ID: "7", Token: "stored"})

	for i := 0; i < processLimit; i++ {
		require.Equal(t, http.StatusOK, do(t, h, "POST", "/api/outbox/process").Code)
	}
	rec := do(t, h, "POST", "/api/outbox/process")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestDeadLetterRequeueAndDiscard(t *testing.T) {
	a, h, _ := setup(t, http.NotFound)

	// Updates of an item never created on the server fail until dead-lettered.
	for _, id := range []model.ID{"local-1", "local-2"} {
		_, err := a.Outbox.Enqueue(outbox.Entry{Op: outbox.OpUpdate, ListID: "1", ItemID: id})
		require.NoError(t, err)
	}
	q := outbox.New(a.Local, outbox.Policy{MaxAttempts: 1}, logging.Discard())
	res := q.Process(context.Background(), a.Items)
	require.Equal(t, 2, res.DeadLettered)

	dead := a.Outbox.DeadLetters()
	require.Len(t, dead, 2)

	assert.Equal(t, http.StatusNoContent, do(t, h, "POST", "/api/outbox/dead/"+dead[0].ID+"/requeue").Code)
	assert.Equal(t, 1, a.Outbox.Len())

	assert.Equal(t, http.StatusNoContent, do(t, h, "DELETE", "/api/outbox/dead/"+dead[1].ID).Code)
	assert.Empty(t, a.Outbox.DeadLetters())

	assert.Equal(t, http.StatusNotFound, do(t, h, "DELETE", "/api/outbox/dead/nope").Code)
}
