package billing

import (
	"context"
	"sync"
	"testing"
	"time"
)

type tickRecorder struct {
	mu    sync.Mutex
	ticks map[string][]int
}

func newTickRecorder() *tickRecorder {
	return &tickRecorder{ticks: map[string][]int{}}
}

func (r *tickRecorder) tick(_ context.Context, roomID, userID string, minuteIndex int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks[roomID+"/"+userID] = append(r.ticks[roomID+"/"+userID], minuteIndex)
}

func (r *tickRecorder) get(roomID, userID string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.ticks[roomID+"/"+userID]))
	copy(out, r.ticks[roomID+"/"+userID])
	return out
}

func TestSchedulerFiresSequentialMinutes(t *testing.T) {
	rec := newTickRecorder()
	s := NewScheduler(20*time.Millisecond, rec.tick)
	defer s.StopAll()

	s.Start("r1", "u1", time.Now())
	if !s.Running("r1", "u1") {
		t.Fatalf("ticker not running after start")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.get("r1", "u1")) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop("r1", "u1")

	got := rec.get("r1", "u1")
	if len(got) < 3 {
		t.Fatalf("got %d ticks, want at least 3", len(got))
	}
	for i, m := range got[:3] {
		if m != i+1 {
			t.Fatalf("tick sequence = %v, want 1,2,3,...", got)
		}
	}
	if s.Running("r1", "u1") {
		t.Fatalf("ticker still running after stop")
	}
}

// A ticker started with an old join timestamp catches up the minutes that
// elapsed in the meantime, which is how billing recovers after a restart.
func TestSchedulerCatchesUpMissedMinutes(t *testing.T) {
	rec := newTickRecorder()
	s := NewScheduler(50*time.Millisecond, rec.tick)
	defer s.StopAll()

	joinedAt := time.Now().Add(-175 * time.Millisecond) // 3 whole periods ago
	s.Start("r1", "u1", joinedAt)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.get("r1", "u1")) >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop("r1", "u1")

	got := rec.get("r1", "u1")
	if len(got) < 3 {
		t.Fatalf("got %v, want catch-up of minutes 1..3", got)
	}
	for i, m := range got[:3] {
		if m != i+1 {
			t.Fatalf("catch-up sequence = %v, want 1,2,3", got)
		}
	}
}

func TestSchedulerStartIsIdempotentAndStopRoomSweeps(t *testing.T) {
	rec := newTickRecorder()
	s := NewScheduler(time.Hour, rec.tick)
	defer s.StopAll()

	now := time.Now()
	s.Start("r1", "u1", now)
	s.Start("r1", "u1", now)
	s.Start("r1", "u2", now)
	s.Start("r2", "u3", now)

	if !s.Running("r1", "u1") || !s.Running("r1", "u2") || !s.Running("r2", "u3") {
		t.Fatalf("expected all tickers running")
	}
	s.StopRoom("r1")
	if s.Running("r1", "u1") || s.Running("r1", "u2") {
		t.Fatalf("room sweep left tickers running")
	}
	if !s.Running("r2", "u3") {
		t.Fatalf("room sweep stopped an unrelated room")
	}
	s.Stop("r2", "u3")
	s.Stop("r2", "u3") // double stop is safe
	if s.Running("r2", "u3") {
		t.Fatalf("ticker running after stop")
	}
}
