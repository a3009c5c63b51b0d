// Package realtime fans survey lifecycle events out to live dashboard
// observers. Delivery is best effort and at-most-once: there is no replay,
// and a subscriber that cannot keep up loses events instead of blocking the
// session that produced them. The dashboard falls back to pull refresh.
package realtime

import (
	"sync"
	"time"
)

// Event is one survey-scoped notification as sent on the wire.
type Event struct {
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const subscriberBuffer = 16

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[chan Event]struct{}
	now   func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		rooms: map[string]map[chan Event]struct{}{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe joins the survey's room. The returned cancel func must be called
// exactly once; it closes the channel and removes the subscriber.
func (h *Hub) Subscribe(surveyID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	room := h.rooms[surveyID]
	if room == nil {
		room = map[chan Event]struct{}{}
		h.rooms[surveyID] = room
	}
	room[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if room, ok := h.rooms[surveyID]; ok {
				delete(room, ch)
				if len(room) == 0 {
					delete(h.rooms, surveyID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every current subscriber of the survey's
// room. Sends never block: a full subscriber buffer drops the event for that
// subscriber only.
func (h *Hub) Publish(surveyID, event string, payload any) {
	ev := Event{Event: event, Data: payload, Timestamp: h.now()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.rooms[surveyID] {
		select {
		case ch <- ev:
		default:
			// Slow observer; drop rather than stall the emitter.
		}
	}
}

// SubscriberCount reports how many observers the survey currently has.
func (h *Hub) SubscriberCount(surveyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[surveyID])
}
