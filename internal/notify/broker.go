// Package notify carries storage change notifications between the local
// key/value medium and the stores that mirror it.
package notify

import (
	"context"
	"strings"
	"sync"
)

// Change describes a write to a storage key made by some process.
type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	Origin  string `json:"origin,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
}

// Matcher selects the keys a subscription is interested in.
type Matcher func(key string) bool

// Exact matches a single key.
func Exact(key string) Matcher {
	return func(k string) bool { return k == key }
}

// Prefix matches every key starting with p.
func Prefix(p string) Matcher {
	return func(k string) bool { return strings.HasPrefix(k, p) }
}

// Any matches every key.
func Any() Matcher {
	return func(string) bool { return true }
}

// Broker fans changes out to subscribers. Publish never blocks: each
// subscription keeps only the latest pending change per key and signals
// readiness on a buffered channel, so a slow consumer sees coalesced values
// rather than stalling the publisher.
type Broker struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in the keys accepted by match.
func (b *Broker) Subscribe(match Matcher) *Subscription {
	s := &Subscription{
		broker:  b,
		match:   match,
		pending: make(map[string]Change),
		ready:   make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Publish delivers c to every matching subscription.
func (b *Broker) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs {
		if s.match(c.Key) {
			s.offer(c)
		}
	}
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is a coalescing inbox of changes for one consumer.
type Subscription struct {
	broker *Broker
	match  Matcher

	mu      sync.Mutex
	pending map[string]Change
	order   []string
	ready   chan struct{}
	closed  bool
}

// Ready is signalled whenever new changes are waiting to be drained.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Drain returns the pending changes in first-arrival order and clears them.
func (s *Subscription) Drain() []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return nil
	}
	out := make([]Change, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.pending[k])
	}
	s.pending = make(map[string]Change)
	s.order = s.order[:0]
	return out
}

// Consume passes every drained change to fn until ctx is done.
func (s *Subscription) Consume(ctx context.Context, fn func(Change)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ready:
			for _, c := range s.Drain() {
				fn(c)
			}
		}
	}
}

// Close detaches the subscription from its broker. Pending changes are dropped.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.order = nil
	s.mu.Unlock()
	s.broker.remove(s)
}

func (s *Subscription) offer(c Change) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.pending[c.Key]; !ok {
		s.order = append(s.order, c.Key)
	}
	s.pending[c.Key] = c
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}
