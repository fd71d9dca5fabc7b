package activitylog

import "sync"

const defaultSubscriberBuffer = 64

// Hub fans stored entries out to live subscribers. A subscriber that falls
// behind loses entries rather than stalling appends; it can catch up through
// List.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Entry
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Entry)}
}

// Subscribe registers a subscriber. The returned cancel function closes the
// channel and must be called once the subscriber is done.
func (h *Hub) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan Entry, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers entry to every subscriber with room in its buffer.
func (h *Hub) Broadcast(entry Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
