// Package server is the local daemon: health, metrics, the change feed and
// read/replay access to the history log and the outbox.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/listio/internal/app"
	"github.com/dukerupert/listio/internal/history"
	"github.com/dukerupert/listio/internal/middleware"
	"github.com/dukerupert/listio/internal/model"
	"github.com/dukerupert/listio/internal/outbox"
	ws "github.com/dukerupert/listio/internal/websocket"
)

const (
	processLimit  = 6
	processWindow = time.Minute
)

type Server struct {
	app         *app.App
	hub         *ws.Hub
	rateLimiter *middleware.RateLimiter
	started     time.Time
	logger      *slog.Logger
}

func New(a *app.App, hub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		app:         a,
		hub:         hub,
		rateLimiter: middleware.NewRateLimiter(),
		started:     time.Now(),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", s.app.Metrics.Handler())
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	mux.HandleFunc("GET /api/history", s.historyHandler)
	mux.HandleFunc("GET /api/outbox", s.outboxHandler)

	// Replay reaches the backend, so it needs a session and is throttled.
	requireSession := middleware.RequireSession(s.app.User)
	limit := middleware.RateLimit(s.rateLimiter, middleware.RealIP, processLimit, processWindow)
	mux.Handle("POST /api/outbox/process", limit(requireSession(http.HandlerFunc(s.processHandler))))
	mux.HandleFunc("POST /api/outbox/dead/{id}/requeue", s.requeueHandler)
	mux.HandleFunc("DELETE /api/outbox/dead/{id}", s.discardHandler)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"signed_in":      s.app.User.IsLoggedIn(),
		"outbox_pending": s.app.Outbox.Len(),
		"history_events": s.app.History.Len(),
		"ws_clients":     s.hub.ClientCount(),
	})
}

// historyHandler exports the log. format=csv selects CSV; type, list and
// since (RFC 3339 or Unix milliseconds) filter the JSON export.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))

	switch format {
	case "csv":
		out, err := s.app.History.ExportCSV()
		if err != nil {
			s.logger.Error("export history", "format", "csv", "error", err)
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
		w.Write([]byte(out))
		return
	case "", "json":
	default:
		writeError(w, http.StatusBadRequest, "format must be json or csv")
		return
	}

	events := s.app.History.All()
	if t := q.Get("type"); t != "" {
		events = keep(events, func(e history.Event) bool { return e.Type == t })
	}
	if l := q.Get("list"); l != "" {
		events = keep(events, func(e history.Event) bool { return e.ListID == model.ID(l) })
	}
	if since := q.Get("since"); since != "" {
		t, err := parseSince(since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339 or Unix milliseconds")
			return
		}
		events = keep(events, func(e history.Event) bool { return !e.Time().Before(t) })
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) outboxHandler(w http.ResponseWriter, r *http.Request) {
	pending := s.app.Outbox.Entries()
	dead := s.app.Outbox.DeadLetters()
	if pending == nil {
		pending = []outbox.Entry{}
	}
	if dead == nil {
		dead = []outbox.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending": pending,
		"dead":    dead,
	})
}

func (s *Server) processHandler(w http.ResponseWriter, r *http.Request) {
	res := s.app.Items.ProcessOutbox(r.Context())

	body := map[string]any{
		"processed":     res.Processed,
		"dead_lettered": res.DeadLettered,
		"remaining":     res.Remaining,
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	s.hub.Broadcast(ws.NewMessage("outbox", "processed", "", body))
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) requeueHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.app.Outbox.Requeue(id); err != nil {
		s.deadLetterError(w, err)
		return
	}
	s.hub.Broadcast(ws.NewMessage("outbox", "requeued", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) discardHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.app.Outbox.Discard(id); err != nil {
		s.deadLetterError(w, err)
		return
	}
	s.hub.Broadcast(ws.NewMessage("outbox", "discarded", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deadLetterError(w http.ResponseWriter, err error) {
	if errors.Is(err, outbox.ErrEntryNotFound) {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	s.logger.Error("update dead letters", "error", err)
	writeError(w, http.StatusInternalServerError, "storage failure")
}

func keep(events []history.Event, match func(history.Event) bool) []history.Event {
	var out []history.Event
	for _, e := range events {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

func parseSince(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
