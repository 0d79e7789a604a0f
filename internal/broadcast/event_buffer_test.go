package broadcast

import "testing"

func TestEventBufferOrderAndReplay(t *testing.T) {
	buf := NewEventBuffer(10)
	ev1 := buf.Append(EventParticipantJoined, "r1", map[string]any{"n": 1})
	ev2 := buf.Append(EventSlotClaimed, "r1", map[string]any{"n": 2})
	ev3 := buf.Append(EventRevealSet, "r1", map[string]any{"n": 3})

	if ev1.EventID != "1" || ev2.EventID != "2" || ev3.EventID != "3" {
		t.Fatalf("unexpected event ids: %s %s %s", ev1.EventID, ev2.EventID, ev3.EventID)
	}
	if ev1.Version >= ev2.Version || ev2.Version >= ev3.Version {
		t.Fatalf("versions not increasing: %d %d %d", ev1.Version, ev2.Version, ev3.Version)
	}
	if buf.Version() != 3 {
		t.Fatalf("version = %d, want 3", buf.Version())
	}

	replay := buf.ReplayAfter("1")
	if len(replay) != 2 {
		t.Fatalf("expected 2 replay events, got %d", len(replay))
	}
	if replay[0].EventID != "2" || replay[1].EventID != "3" {
		t.Fatalf("unexpected replay order: %+v", replay)
	}

	// Unknown or empty cursor replays the whole window.
	if got := buf.ReplayAfter(""); len(got) != 3 {
		t.Fatalf("empty cursor replay = %d events, want 3", len(got))
	}
	if got := buf.ReplayAfter("not-a-number"); len(got) != 3 {
		t.Fatalf("bad cursor replay = %d events, want 3", len(got))
	}
}

func TestEventBufferBoundedWindow(t *testing.T) {
	buf := NewEventBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Append(EventBillingCharged, "r1", i)
	}
	replay := buf.ReplayAfter("")
	if len(replay) != 3 {
		t.Fatalf("window = %d events, want 3", len(replay))
	}
	if replay[0].EventID != "3" {
		t.Fatalf("oldest retained = %s, want 3", replay[0].EventID)
	}
}

func TestEventBufferSubscribeAndClose(t *testing.T) {
	buf := NewEventBuffer(10)
	ch := buf.Subscribe()

	buf.Append(EventParticipantJoined, "r1", nil)
	ev := <-ch
	if ev.Event != EventParticipantJoined {
		t.Fatalf("delivered event = %s", ev.Event)
	}

	buf.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("watcher channel open after close")
	}
	// Appends after close are dropped.
	if ev := buf.Append(EventRoomEnded, "r1", nil); ev.EventID != "" {
		t.Fatalf("append after close returned %+v", ev)
	}
	closed := buf.Subscribe()
	if _, ok := <-closed; ok {
		t.Fatalf("subscribe after close returned open channel")
	}
}

func TestHubIsolatesRoomsAndTracksVersions(t *testing.T) {
	h := NewHub(10)

	h.Publish("r1", EventParticipantJoined, nil)
	h.Publish("r1", EventSlotClaimed, nil)
	h.Publish("r2", EventParticipantJoined, nil)

	if v := h.Version("r1"); v != 2 {
		t.Fatalf("r1 version = %d, want 2", v)
	}
	if v := h.Version("r2"); v != 1 {
		t.Fatalf("r2 version = %d, want 1", v)
	}
	if got := h.ReplayAfter("r2", ""); len(got) != 1 {
		t.Fatalf("r2 replay = %d events, want 1", len(got))
	}

	ch := h.Subscribe("r1")
	h.Publish("r1", EventRevealSet, nil)
	ev := <-ch
	if ev.Event != EventRevealSet || ev.RoomID != "r1" {
		t.Fatalf("delivered = %+v", ev)
	}
	h.Unsubscribe("r1", ch)

	h.CloseRoom("r1")
	// The ended room keeps its final version for late snapshot reads.
	if v := h.Version("r1"); v != 3 {
		t.Fatalf("version after close = %d, want 3", v)
	}
}

func TestHubEndedRoomStaysEnded(t *testing.T) {
	h := NewHub(10)
	h.Publish("r1", EventParticipantJoined, nil)
	h.Publish("r1", EventRoomEnded, nil)
	h.CloseRoom("r1")

	// Publishes after the end are dropped instead of reviving the buffer.
	if ev := h.Publish("r1", EventSlotClaimed, nil); ev.EventID != "" {
		t.Fatalf("publish on ended room returned %+v", ev)
	}
	if got := h.ReplayAfter("r1", ""); len(got) != 0 {
		t.Fatalf("ended room replayed %d events", len(got))
	}
	// A late subscriber hangs up immediately rather than waiting forever.
	if _, ok := <-h.Subscribe("r1"); ok {
		t.Fatalf("subscriber on ended room got an open channel")
	}
	if v := h.Version("r1"); v != 2 {
		t.Fatalf("version after ended-room publish = %d, want 2", v)
	}

	// Closing a room that never buffered anything is still terminal.
	h.CloseRoom("r2")
	if _, ok := <-h.Subscribe("r2"); ok {
		t.Fatalf("subscriber on unused ended room got an open channel")
	}
}
