package history

import (
	"time"

	"github.com/dukerupert/listio/internal/model"
)

// All returns a copy of every event, newest first.
func (l *Log) All() []Event {
	return l.filter(func(Event) bool { return true })
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *Log) ByType(eventType string) []Event {
	return l.filter(func(e Event) bool { return e.Type == eventType })
}

func (l *Log) ByResource(resource string) []Event {
	return l.filter(func(e Event) bool { return e.Resource == resource })
}

func (l *Log) ByList(listID model.ID) []Event {
	return l.filter(func(e Event) bool { return e.ListID == listID })
}

// Since returns events recorded at or after t.
func (l *Log) Since(t time.Time) []Event {
	ms := t.UnixMilli()
	return l.filter(func(e Event) bool { return e.Timestamp >= ms })
}

func (l *Log) filter(keep func(Event) bool) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, 0, len(l.events))
	for _, e := range l.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
