package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/listio/internal/notify"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub) *Client {
	return NewClient(hub, nil, nil, slog.Default())
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub)
	c2 := mockClient(hub)
	hub.Register(c1)
	hub.Register(c2)

	msg := NewMessage("list-items", "updated", "42", map[string]any{"list_id": float64(1)})
	hub.Broadcast(msg)

	// Check both clients received the message
	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "list-items_updated" {
				t.Errorf("expected type list-items_updated, got %s", got.Type)
			}
			if got.Entity != "list-items" {
				t.Errorf("expected entity list-items, got %s", got.Entity)
			}
			if got.ID != "42" {
				t.Errorf("expected id 42, got %s", got.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	msg := NewMessage("outbox", "processed", "", nil)
	hub.Broadcast(msg)
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub)
	hub.Register(c)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", strconv.Itoa(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", "999", nil))

	// Drain to verify buffer was full
	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("lists", "deleted", "5", nil)
	if msg.Type != "lists_deleted" {
		t.Errorf("expected type lists_deleted, got %s", msg.Type)
	}
	if msg.Entity != "lists" {
		t.Errorf("expected entity lists, got %s", msg.Entity)
	}
	if msg.Action != "deleted" {
		t.Errorf("expected action deleted, got %s", msg.Action)
	}
	if msg.ID != "5" {
		t.Errorf("expected id 5, got %s", msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Spawn goroutines that register, broadcast, and unregister concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub)
			hub.Register(c)
			hub.Broadcast(NewMessage("test", "concurrent", "", nil))
			// Drain any messages
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestChangeMessage(t *testing.T) {
	msg := ChangeMessage(notify.Change{Key: "listio:list-items:12", Value: `[{"id":1}]`, Seq: 9})
	if msg.Type != "list-items_updated" || msg.ID != "12" || msg.Seq != 9 {
		t.Errorf("unexpected message %+v", msg)
	}
	if string(msg.Value) != `[{"id":1}]` {
		t.Errorf("value = %s", msg.Value)
	}

	flag := ChangeMessage(notify.Change{Key: "listio:defaults-created:v1", Value: "1"})
	if flag.Entity != "defaults-created" || flag.ID != "v1" || string(flag.Value) != "1" {
		t.Errorf("unexpected message %+v", flag)
	}

	text := ChangeMessage(notify.Change{Key: "listio:migrated:list-items:v1", Value: "yes"})
	if string(text.Value) != `"yes"` || text.ID != "list-items:v1" {
		t.Errorf("unexpected message %+v", text)
	}

	del := ChangeMessage(notify.Change{Key: "listio:lists:7", Value: "[]", Deleted: true})
	if del.Action != "deleted" || del.Value != nil {
		t.Errorf("unexpected message %+v", del)
	}
}

func TestFollowBroadcastsChanges(t *testing.T) {
	hub := NewHub(slog.Default())
	broker := notify.NewBroker()
	c := mockClient(hub)
	hub.Register(c)
	defer hub.Unregister(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Follow(ctx, broker)
	}()

	deadline := time.Now().Add(time.Second)
	for broker.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	broker.Publish(notify.Change{Key: "elsewhere:key", Value: "x"})
	broker.Publish(notify.Change{Key: "listio:lists:7", Value: "[]"})

	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Key != "listio:lists:7" {
			t.Errorf("key = %q", got.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change")
	}

	cancel()
	<-done
	if broker.SubscriberCount() != 0 {
		t.Error("subscription not closed")
	}
}
