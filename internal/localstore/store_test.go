package localstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/listio/internal/database"
	"github.com/dukerupert/listio/internal/notify"
)

func setupStoreTestDB(t *testing.T, origin string) *SQLStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, origin)
}

func TestKeyHelpers(t *testing.T) {
	if got := Key("list-items", "42"); got != "listio:list-items:42" {
		t.Errorf("Key = %q", got)
	}
	if got := UserKey("listio:lists", ""); got != "listio:lists" {
		t.Errorf("UserKey without user = %q", got)
	}
	if got := UserKey("listio:lists", "7"); got != "listio:lists:7" {
		t.Errorf("UserKey with user = %q", got)
	}
}

func TestSetGetRemove(t *testing.T) {
	s := setupStoreTestDB(t, "a")

	if _, ok, err := s.Get("listio:x"); err != nil || ok {
		t.Fatalf("get missing: ok=%v err=%v", ok, err)
	}

	if err := s.Set("listio:x", `[1]`); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set("listio:x", `[1,2]`); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := s.Get("listio:x")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if v != `[1,2]` {
		t.Errorf("value = %q, want %q", v, `[1,2]`)
	}

	if err := s.Remove("listio:x"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get("listio:x"); ok {
		t.Error("expected key removed")
	}

	// A removed key can be written again.
	if err := s.Set("listio:x", `[]`); err != nil {
		t.Fatalf("set after remove: %v", err)
	}
	if _, ok, _ := s.Get("listio:x"); !ok {
		t.Error("expected key restored")
	}
}

func TestKeysPrefix(t *testing.T) {
	s := setupStoreTestDB(t, "a")
	for _, k := range []string{"listio:list-items:1", "listio:list-items:2", "listio:lists", "listio:list_x"} {
		if err := s.Set(k, "[]"); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	s.Remove("listio:list-items:2")

	keys, err := s.Keys("listio:list-items:")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "listio:list-items:1" {
		t.Errorf("keys = %v", keys)
	}

	// Underscore is a LIKE wildcard and must be matched literally.
	keys, _ = s.Keys("listio:list_")
	if len(keys) != 1 || keys[0] != "listio:list_x" {
		t.Errorf("escaped keys = %v", keys)
	}
}

func TestJSONHelpers(t *testing.T) {
	s := setupStoreTestDB(t, "a")

	var got []string
	ok, err := ReadJSON(s, "listio:missing", &got)
	if err != nil || ok {
		t.Fatalf("read missing: ok=%v err=%v", ok, err)
	}

	if err := WriteJSON(s, "listio:names", []string{"milk", "eggs"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok, err = ReadJSON(s, "listio:names", &got)
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[1] != "eggs" {
		t.Errorf("got %v", got)
	}

	s.Set("listio:corrupt", "{not json")
	if _, err := ReadJSON(s, "listio:corrupt", &got); err == nil {
		t.Error("expected decode error for corrupt value")
	}
}

func TestSnapshot(t *testing.T) {
	s := setupStoreTestDB(t, "a")
	s.Set("listio:a", "1")
	s.Set("listio:b", "2")
	s.Set("other:c", "3")

	snap, err := Snapshot(s, Prefix)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 2 || snap["listio:b"] != "2" {
		t.Errorf("snapshot = %v", snap)
	}
}

func TestWatcherPublishesForeignChangesOnly(t *testing.T) {
	mine := setupStoreTestDB(t, "tab-a")
	theirs := NewSQLStore(mine.db, "tab-b")

	broker := notify.NewBroker()
	sub := broker.Subscribe(notify.Any())
	defer sub.Close()

	w := NewWatcher(mine, broker, ":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	seq, _ := mine.LastSeq()
	w.lastSeq = seq

	mine.Set("listio:history", "[]")
	theirs.Set("listio:list-items:3", `[{"id":1}]`)
	theirs.Remove("listio:list-items:3")

	if err := w.Poll(); err != nil {
		t.Fatalf("poll: %v", err)
	}

	changes := sub.Drain()
	if len(changes) != 1 {
		t.Fatalf("expected 1 coalesced foreign change, got %d: %+v", len(changes), changes)
	}
	c := changes[0]
	if c.Key != "listio:list-items:3" || !c.Deleted || c.Origin != "tab-b" {
		t.Errorf("change = %+v", c)
	}

	// Nothing new on the next poll.
	if err := w.Poll(); err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if got := sub.Drain(); got != nil {
		t.Errorf("expected no changes, got %+v", got)
	}
}

func TestWatcherStartStopIdempotent(t *testing.T) {
	mine := setupStoreTestDB(t, "tab-a")
	theirs := NewSQLStore(mine.db, "tab-b")

	broker := notify.NewBroker()
	sub := broker.Subscribe(notify.Any())
	defer sub.Close()

	w := NewWatcher(mine, broker, ":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	w.SetInterval(5 * time.Millisecond)

	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	w.Stop()
	w.Stop()

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer w.Stop()

	theirs.Set("listio:list-items:3", `[{"id":1}]`)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if changes := sub.Drain(); len(changes) > 0 {
			if changes[0].Key != "listio:list-items:3" {
				t.Errorf("change = %+v", changes[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("restarted watcher published nothing")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
