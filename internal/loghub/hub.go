// Package loghub fans rendered log lines out to live dashboard observers.
package loghub

import (
	"sync"

	"github.com/google/uuid"
)

const (
	DefaultBacklog    = 50
	subscriberBufSize = 64
)

// Hub broadcasts lines to every subscriber. A subscriber that falls behind
// loses lines rather than blocking the publisher.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]chan string
	backlog []string
	limit   int
	dropped uint64
}

func New(backlog int) *Hub {
	if backlog < 0 {
		backlog = 0
	}
	return &Hub{subs: map[string]chan string{}, limit: backlog}
}

// Subscribe registers an observer. The returned channel is closed by cancel.
func (h *Hub) Subscribe() (id string, lines <-chan string, cancel func()) {
	id, _, lines, cancel = h.subscribe(false)
	return id, lines, cancel
}

// SubscribeWithBacklog registers an observer and snapshots the retained lines
// in the same critical section, so every line lands in exactly one of
// backlog or lines.
func (h *Hub) SubscribeWithBacklog() (id string, backlog []string, lines <-chan string, cancel func()) {
	return h.subscribe(true)
}

func (h *Hub) subscribe(withBacklog bool) (string, []string, <-chan string, func()) {
	ch := make(chan string, subscriberBufSize)
	id := uuid.NewString()
	var backlog []string
	h.mu.Lock()
	h.subs[id] = ch
	if withBacklog {
		backlog = append([]string(nil), h.backlog...)
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return id, backlog, ch, cancel
}

func (h *Hub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit > 0 {
		h.backlog = append(h.backlog, line)
		if over := len(h.backlog) - h.limit; over > 0 {
			h.backlog = append(h.backlog[:0], h.backlog[over:]...)
		}
	}
	for _, ch := range h.subs {
		select {
		case ch <- line:
		default:
			h.dropped++
		}
	}
}

// Recent returns the retained lines, oldest first.
func (h *Hub) Recent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.backlog...)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
