package notify

import (
	"sync"

	"github.com/nwehbe/waterops/internal/storage"
)

// EventNewNotification is the event name published for every persisted
// notification.
const EventNewNotification = "new_notification"

// Event is the payload pushed to connected subscribers.
type Event struct {
	Event        string               `json:"event"`
	UserID       string               `json:"userId"`
	Notification storage.Notification `json:"notification"`
}

const (
	defaultBufferSize       = 50
	defaultSubscriberBuffer = 16
)

// Hub fans notification events out to all connected subscribers. A slow
// subscriber never blocks publishing; its events are dropped instead.
//
// The hub replaces the original module-level socket handle: it must be
// constructed before the first publish, and publishing on a nil hub is a
// programming error (it panics) rather than a silent no-op.
type Hub struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan Event)}
}

// Publish delivers an event to every subscriber.
func (h *Hub) Publish(event Event) {
	if h == nil {
		panic("notify: publish on uninitialized hub")
	}
	h.mu.Lock()
	h.buffer = append(h.buffer, event)
	if len(h.buffer) > defaultBufferSize {
		h.buffer = h.buffer[len(h.buffer)-defaultBufferSize:]
	}
	subs := make([]chan Event, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscription is one connected client's event feed.
type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan Event
	once sync.Once
}

// Subscribe registers a subscriber and returns its feed plus the recent
// event buffer for catch-up.
func (h *Hub) Subscribe() (*Subscription, []Event) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, defaultSubscriberBuffer)
	h.subs[id] = ch
	buffer := append([]Event(nil), h.buffer...)
	h.mu.Unlock()

	return &Subscription{hub: h, id: id, ch: ch}, buffer
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}
