package broadcast

import "sync"

// Hub owns one event buffer per room. It propagates state changes, it never
// owns state: components publish after their conditional writes commit.
type Hub struct {
	mu      sync.Mutex
	bufSize int
	rooms   map[string]*EventBuffer
	// closed maps ended rooms to their final version. An ended room stays
	// ended: publishes are dropped and late subscribers hang up immediately
	// instead of lazily recreating an empty buffer.
	closed map[string]int64
}

func NewHub(bufSize int) *Hub {
	return &Hub{
		bufSize: bufSize,
		rooms:   map[string]*EventBuffer{},
		closed:  map[string]int64{},
	}
}

// room returns the room's buffer, creating one on first use. The second
// return reports an ended room, which has no buffer.
func (h *Hub) room(roomID string) (*EventBuffer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ended := h.closed[roomID]; ended {
		return nil, true
	}
	buf := h.rooms[roomID]
	if buf == nil {
		buf = NewEventBuffer(h.bufSize)
		h.rooms[roomID] = buf
	}
	return buf, false
}

func (h *Hub) Publish(roomID, event string, data any) StreamEvent {
	buf, ended := h.room(roomID)
	if ended {
		return StreamEvent{}
	}
	return buf.Append(event, roomID, data)
}

func (h *Hub) Subscribe(roomID string) chan StreamEvent {
	buf, ended := h.room(roomID)
	if ended {
		ch := make(chan StreamEvent)
		close(ch)
		return ch
	}
	return buf.Subscribe()
}

func (h *Hub) Unsubscribe(roomID string, ch chan StreamEvent) {
	h.mu.Lock()
	buf := h.rooms[roomID]
	h.mu.Unlock()
	if buf != nil {
		buf.Unsubscribe(ch)
	}
}

// ReplayAfter returns the buffered events newer than lastEventID, for
// subscribers recovering from a dropped stream. Ended rooms replay nothing.
func (h *Hub) ReplayAfter(roomID, lastEventID string) []StreamEvent {
	buf, ended := h.room(roomID)
	if ended {
		return nil
	}
	return buf.ReplayAfter(lastEventID)
}

// Version reports the room's newest event version, for snapshot responses.
// An ended room keeps reporting its final version.
func (h *Hub) Version(roomID string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if buf := h.rooms[roomID]; buf != nil {
		return buf.Version()
	}
	return h.closed[roomID]
}

// CloseRoom retires the room's buffer and hangs up its watchers, keeping the
// final version for late snapshot reads.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	buf := h.rooms[roomID]
	delete(h.rooms, roomID)
	var final int64
	if buf != nil {
		final = buf.Version()
	}
	h.closed[roomID] = final
	h.mu.Unlock()
	if buf != nil {
		buf.Close()
	}
}
