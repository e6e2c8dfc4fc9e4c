package events

import (
	"log/slog"
	"sync"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/google/uuid"
)

const subscriberBuffer = 32

// Hub fans committed events out to live subscribers on this instance.
// Delivery never blocks: a subscriber whose buffer is full misses the event
// and is expected to catch up from the persisted feed by cursor.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[*Subscription]struct{})}
}

type Subscription struct {
	C <-chan models.Event

	ch        chan models.Event
	recipient uuid.UUID
	hub       *Hub
	once      sync.Once
}

func (h *Hub) Subscribe(recipient uuid.UUID) *Subscription {
	ch := make(chan models.Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, recipient: recipient, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[recipient]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[recipient] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Close detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.recipient]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.recipient)
			}
		}
		close(s.ch)
	})
}

func (h *Hub) Deliver(ev models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.RecipientID] {
		select {
		case sub.ch <- ev:
		default:
			slog.Warn("event subscriber buffer full, dropping live delivery",
				"event_id", ev.ID, "type", ev.Type, "user_id", ev.RecipientID.String())
		}
	}
}

// Subscribers reports the number of live subscriptions for recipient.
func (h *Hub) Subscribers(recipient uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[recipient])
}
