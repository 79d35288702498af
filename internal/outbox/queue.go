// Package outbox is the durable queue of pending list-item writes. Entries
// are replayed strictly in order, one at a time; a failing head blocks the
// rest until it succeeds or exhausts its attempts.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/model"
)

var (
	// StorageKey holds the pending entries.
	StorageKey = localstore.Key("list-items-outbox")
	// DeadKey holds entries that exhausted their attempts.
	DeadKey = localstore.Key("list-items-outbox", "dead")

	ErrEntryNotFound = errors.New("outbox: entry not found")
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Entry is one pending remote write. ItemID is the local record the entry
// applies to; for creates it is the optimistic id to reconcile.
type Entry struct {
	ID            string          `json:"id"`
	Op            Op              `json:"op"`
	ListID        model.ID        `json:"listId"`
	ItemID        model.ID        `json:"itemId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt    time.Time       `json:"ts"`
	Attempts      int             `json:"attempts,omitempty"`
	NextAttemptAt time.Time       `json:"nextAttemptAt,omitzero"`
	LastError     string          `json:"lastError,omitempty"`
}

// Executor performs the remote call for an entry.
type Executor interface {
	Execute(ctx context.Context, e Entry) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, e Entry) error

func (f ExecutorFunc) Execute(ctx context.Context, e Entry) error { return f(ctx, e) }

// DeadLetterHandler is implemented by executors that keep state for an entry
// until it replays, so they can drop it once the entry gives up.
type DeadLetterHandler interface {
	DeadLettered(e Entry)
}

// PassHook is implemented by executors with housekeeping to run after every
// periodic replay pass.
type PassHook interface {
	AfterPass(res Result)
}

// Recorder receives queue metrics.
type Recorder interface {
	SetOutboxDepth(pending, dead int)
	OutboxProcessed(op string)
	OutboxFailed()
	OutboxDeadLettered()
}

// Policy bounds retries of the queue head. A zero MaxAttempts retries forever.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultPolicy is used when New receives a zero Policy.
var DefaultPolicy = Policy{MaxAttempts: 8, BackoffBase: 2 * time.Second, BackoffMax: 5 * time.Minute}

// Backoff returns the wait after the given number of consecutive failures.
func (p Policy) Backoff(attempts int) time.Duration {
	if attempts <= 0 || p.BackoffBase <= 0 {
		return 0
	}
	d := p.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// Result summarizes one Process call.
type Result struct {
	Processed    int
	DeadLettered int
	Remaining    int
	// Err is the failure that halted replay, if any.
	Err error
}

// Queue is the persisted outbox. Storage is the source of truth: every
// operation re-reads the key so entries appended by other processes are seen.
type Queue struct {
	local    localstore.Store
	policy   Policy
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger

	mu     sync.Mutex // guards read-modify-write of the keys
	procMu sync.Mutex // one Process at a time
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(q *Queue) { q.recorder = r }
}

// New creates a Queue over local.
func New(local localstore.Store, policy Policy, logger *slog.Logger, opts ...Option) *Queue {
	if policy == (Policy{}) {
		policy = DefaultPolicy
	}
	q := &Queue{
		local:  local,
		policy: policy,
		now:    time.Now,
		logger: logger.With("component", "outbox"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends e, assigning its id and timestamp.
func (q *Queue) Enqueue(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = q.now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.read(StorageKey)
	entries = append(entries, e)
	if err := q.write(StorageKey, entries); err != nil {
		return Entry{}, err
	}
	q.logger.Debug("entry enqueued", "op", e.Op, "list_id", e.ListID, "item_id", e.ItemID, "depth", len(entries))
	return e, nil
}

// Entries returns the pending entries in replay order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read(StorageKey)
}

func (q *Queue) Len() int {
	return len(q.Entries())
}

// DeadLetters returns entries that exhausted their attempts, oldest first.
func (q *Queue) DeadLetters() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read(DeadKey)
}

// Requeue moves a dead-lettered entry back to the tail of the queue with its
// attempts reset.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dead := q.read(DeadKey)
	idx := indexOf(dead, id)
	if idx < 0 {
		return fmt.Errorf("requeue %s: %w", id, ErrEntryNotFound)
	}
	e := dead[idx]
	dead = append(dead[:idx], dead[idx+1:]...)
	e.Attempts = 0
	e.NextAttemptAt = time.Time{}
	e.LastError = ""

	entries := append(q.read(StorageKey), e)
	if err := q.write(StorageKey, entries); err != nil {
		return err
	}
	return q.write(DeadKey, dead)
}

// Discard drops a dead-lettered entry.
func (q *Queue) Discard(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dead := q.read(DeadKey)
	idx := indexOf(dead, id)
	if idx < 0 {
		return fmt.Errorf("discard %s: %w", id, ErrEntryNotFound)
	}
	return q.write(DeadKey, append(dead[:idx], dead[idx+1:]...))
}

// RewriteItemID points pending entries for a reconciled local record at the
// identifier the server assigned.
func (q *Queue) RewriteItemID(oldID, newID model.ID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.read(StorageKey)
	changed := false
	for i := range entries {
		if entries[i].ItemID == oldID {
			entries[i].ItemID = newID
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return q.write(StorageKey, entries)
}

// RewriteListID points pending entries for a record that has not reached the
// server yet at the list it was moved to.
func (q *Queue) RewriteListID(itemID, listID model.ID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.read(StorageKey)
	changed := false
	for i := range entries {
		if entries[i].ItemID == itemID && entries[i].ListID != listID {
			entries[i].ListID = listID
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return q.write(StorageKey, entries)
}

// Process replays entries from the head until the queue is empty, the head
// fails, or the head is still waiting out its backoff. A head that reaches
// MaxAttempts is moved to the dead-letter set and replay continues with the
// next entry.
func (q *Queue) Process(ctx context.Context, exec Executor) Result {
	q.procMu.Lock()
	defer q.procMu.Unlock()

	var res Result
	for {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		q.mu.Lock()
		entries := q.read(StorageKey)
		q.mu.Unlock()
		if len(entries) == 0 {
			break
		}
		head := entries[0]
		if !head.NextAttemptAt.IsZero() && q.now().Before(head.NextAttemptAt) {
			break
		}

		err := exec.Execute(ctx, head)
		if err == nil {
			if err := q.complete(head.ID); err != nil {
				res.Err = err
				break
			}
			res.Processed++
			if q.recorder != nil {
				q.recorder.OutboxProcessed(string(head.Op))
			}
			continue
		}

		if q.recorder != nil {
			q.recorder.OutboxFailed()
		}
		dead, ferr := q.fail(head.ID, err)
		if ferr != nil {
			res.Err = ferr
			break
		}
		if dead {
			res.DeadLettered++
			if q.recorder != nil {
				q.recorder.OutboxDeadLettered()
			}
			if h, ok := exec.(DeadLetterHandler); ok {
				h.DeadLettered(head)
			}
			q.logger.Error("entry dead-lettered", "id", head.ID, "op", head.Op, "list_id", head.ListID, "attempts", head.Attempts+1, "error", err)
			continue
		}
		q.logger.Warn("outbox processing stopped, will retry", "id", head.ID, "op", head.Op, "attempts", head.Attempts+1, "error", err)
		res.Err = err
		break
	}

	q.mu.Lock()
	pending, dead := len(q.read(StorageKey)), len(q.read(DeadKey))
	q.mu.Unlock()
	res.Remaining = pending
	if q.recorder != nil {
		q.recorder.SetOutboxDepth(pending, dead)
	}
	return res
}

// complete removes a replayed entry.
func (q *Queue) complete(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.read(StorageKey)
	idx := indexOf(entries, id)
	if idx < 0 {
		return nil
	}
	return q.write(StorageKey, append(entries[:idx], entries[idx+1:]...))
}

// fail records a failed attempt and reports whether the entry was dead-lettered.
func (q *Queue) fail(id string, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.read(StorageKey)
	idx := indexOf(entries, id)
	if idx < 0 {
		return false, nil
	}
	e := entries[idx]
	e.Attempts++
	e.LastError = cause.Error()

	if q.policy.MaxAttempts > 0 && e.Attempts >= q.policy.MaxAttempts {
		entries = append(entries[:idx], entries[idx+1:]...)
		if err := q.write(StorageKey, entries); err != nil {
			return false, err
		}
		return true, q.write(DeadKey, append(q.read(DeadKey), e))
	}

	e.NextAttemptAt = q.now().Add(q.policy.Backoff(e.Attempts))
	entries[idx] = e
	return false, q.write(StorageKey, entries)
}

// read decodes a key; unreadable state is logged and treated as empty.
func (q *Queue) read(key string) []Entry {
	var entries []Entry
	if _, err := localstore.ReadJSON(q.local, key, &entries); err != nil {
		q.logger.Warn("read outbox", "key", key, "error", err)
		return nil
	}
	return entries
}

func (q *Queue) write(key string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if err := localstore.WriteJSON(q.local, key, entries); err != nil {
		q.logger.Error("write outbox", "key", key, "error", err)
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

func indexOf(entries []Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
