// Package broadcast implements the bounded multi-subscriber fan-out of
// WriteEvents described in spec §4.7: publishers never block, and a
// subscriber that falls behind the backlog is dropped rather than
// allowed to stall the publisher.
package broadcast

import (
	"sync"

	"github.com/cannero/kvreplica/internal/resp"
)

// DefaultBacklog is the suggested per-subscriber channel capacity.
const DefaultBacklog = 20

// Subscriber is a single subscription's receive side. Subscribers are
// created at the moment of transition to the Replicating state (§4.6),
// never earlier, so late subscribers never retain backlog meant for
// phantom clients.
type Subscriber struct {
	events chan resp.Frame
	lagged chan struct{}
	once   sync.Once
}

// Events delivers published WriteEvents in publish order.
func (s *Subscriber) Events() <-chan resp.Frame { return s.events }

// Lagged is closed when this subscriber fell behind the backlog and was
// dropped; a connection loop should stop forwarding and close its
// socket once this fires.
func (s *Subscriber) Lagged() <-chan struct{} { return s.lagged }

func (s *Subscriber) markLagged() {
	s.once.Do(func() { close(s.lagged) })
}

// Hub is the multi-producer, multi-consumer fan-out of WriteEvents. The
// zero value is not usable; construct with New.
type Hub struct {
	mu      sync.Mutex
	subs    map[*Subscriber]struct{}
	backlog int
}

func New(backlog int) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Hub{subs: make(map[*Subscriber]struct{}), backlog: backlog}
}

// Subscribe registers a new subscriber and returns its receive handle.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		events: make(chan resp.Frame, h.backlog),
		lagged: make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s from the fan-out set; safe to call more than
// once and safe to call after s has already lagged out.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

// Publish fans event out to every currently-registered subscriber.
// Never blocks: a subscriber whose channel is full is dropped and
// notified via Lagged instead of stalling the publisher. Publishing
// with no subscribers attached is a silent no-op, per spec §4.4.
func (h *Hub) Publish(event resp.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.events <- event:
		default:
			delete(h.subs, s)
			s.markLagged()
		}
	}
}

// Count returns the number of currently-attached subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
