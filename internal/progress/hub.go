// Package progress fans scan progress out to live subscribers.
package progress

import (
	"context"
	"sync"
	"time"

	"cybersentinel/internal/domain"
)

type Event struct {
	ScanID   string            `json:"scan_id"`
	Status   domain.ScanStatus `json:"status"`
	Progress float64           `json:"progress"`
	Message  string            `json:"message,omitempty"`
	At       time.Time         `json:"at"`
}

const subscriberBuffer = 16

type subscriber struct {
	scanID string
	ch     chan Event
	done   chan struct{}
}

func (s *subscriber) end() {
	close(s.ch)
	close(s.done)
}

// deliver never blocks. Terminal events evict the oldest buffered event
// when the buffer is full so the final state always arrives.
func (s *subscriber) deliver(ev Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}
	if !ev.Status.Terminal() {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// Hub is an in-process pub/sub keyed by scan id. Slow subscribers lose
// intermediate events rather than blocking publishers. A terminal event
// closes every subscription for that scan.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	last map[string]Event
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		last: make(map[string]Event),
	}
}

// Subscribe returns a channel of events for scanID. The subscription ends
// when ctx is done, when the scan reaches a terminal state, or when the
// returned cancel func is called. The latest known event, if any, is
// delivered first.
func (h *Hub) Subscribe(ctx context.Context, scanID string) (<-chan Event, func()) {
	sub := &subscriber{scanID: scanID, ch: make(chan Event, subscriberBuffer), done: make(chan struct{})}

	h.mu.Lock()
	if h.subs[scanID] == nil {
		h.subs[scanID] = make(map[*subscriber]struct{})
	}
	h.subs[scanID][sub] = struct{}{}
	if ev, ok := h.last[scanID]; ok {
		sub.ch <- ev
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() { once.Do(func() { h.remove(sub) }) }
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return sub.ch, cancel
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.scanID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	sub.end()
	if len(set) == 0 {
		delete(h.subs, sub.scanID)
	}
}

func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.ScanID] {
		sub.deliver(ev)
	}
	if !ev.Status.Terminal() {
		h.last[ev.ScanID] = ev
		return
	}
	delete(h.last, ev.ScanID)
	for sub := range h.subs[ev.ScanID] {
		sub.end()
	}
	delete(h.subs, ev.ScanID)
}

// Subscribers reports the number of live subscriptions for scanID.
func (h *Hub) Subscribers(scanID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scanID])
}
