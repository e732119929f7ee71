package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subscriberBuffer bounds how far a subscriber may fall behind before
// events for it are dropped.
const subscriberBuffer = 64

// Subscriber receives the events of one thread until it is unsubscribed,
// at which point Events is closed.
type Subscriber struct {
	ThreadID uuid.UUID
	Events   <-chan Event

	events chan Event
}

// Hub fans events out to the subscribers of each thread in this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscriber]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscriber]struct{}),
		logger: logger,
	}
}

func (h *Hub) Subscribe(threadID uuid.UUID) *Subscriber {
	ch := make(chan Event, subscriberBuffer)
	s := &Subscriber{ThreadID: threadID, Events: ch, events: ch}

	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[threadID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[threadID] = set
	}
	set[s] = struct{}{}
	return s
}

// Unsubscribe is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[s.ThreadID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.events)
	if len(set) == 0 {
		delete(h.subs, s.ThreadID)
	}
}

// Dispatch delivers e to every subscriber of its thread without blocking.
// A subscriber whose buffer is full misses the event.
func (h *Hub) Dispatch(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[e.ThreadID] {
		select {
		case s.events <- e:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				zap.Stringer("thread_id", e.ThreadID),
				zap.String("type", string(e.Type)),
			)
		}
	}
}

// Subscribers reports how many subscribers a thread has.
func (h *Hub) Subscribers(threadID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[threadID])
}

// Close drops every subscriber, which ends their streams. Used on
// shutdown since hijacked websocket connections outlive http.Server.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, set := range h.subs {
		for s := range set {
			close(s.events)
		}
		delete(h.subs, id)
	}
}
