package billing

import (
	"context"
	"sync"
	"time"
)

// TickFunc is invoked once per elapsed minute index for a joined
// participant. Implementations own suppression and force-exit handling.
type TickFunc func(ctx context.Context, roomID, userID string, minuteIndex int)

// Scheduler drives one ticker per joined participant. Minute indexes are
// derived from the join timestamp, so a scheduler resumed after a restart
// fires the minutes that elapsed while the process was down; the ledger's
// dedup keys make any overlap with previously applied charges a no-op.
type Scheduler struct {
	period time.Duration
	tick   TickFunc

	mu      sync.Mutex
	cancels map[string]map[string]context.CancelFunc
}

func NewScheduler(period time.Duration, tick TickFunc) *Scheduler {
	if period <= 0 {
		period = time.Minute
	}
	return &Scheduler{
		period:  period,
		tick:    tick,
		cancels: map[string]map[string]context.CancelFunc{},
	}
}

// Start begins ticking for a participant. Starting an already-ticking
// participant is a no-op.
func (s *Scheduler) Start(roomID, userID string, joinedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.cancels[roomID]
	if room == nil {
		room = map[string]context.CancelFunc{}
		s.cancels[roomID] = room
	}
	if _, running := room[userID]; running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	room[userID] = cancel
	go s.run(ctx, roomID, userID, joinedAt)
}

func (s *Scheduler) run(ctx context.Context, roomID, userID string, joinedAt time.Time) {
	last := 0
	for {
		idx := int(time.Since(joinedAt) / s.period)
		for m := last + 1; m <= idx; m++ {
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx, roomID, userID, m)
		}
		if idx > last {
			last = idx
		}
		next := joinedAt.Add(time.Duration(last+1) * s.period)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop cancels the participant's ticker. Safe to call twice.
func (s *Scheduler) Stop(roomID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room := s.cancels[roomID]; room != nil {
		if cancel, ok := room[userID]; ok {
			cancel()
			delete(room, userID)
		}
		if len(room) == 0 {
			delete(s.cancels, roomID)
		}
	}
}

// StopRoom cancels every ticker in the room, used by the room-end sweep.
func (s *Scheduler) StopRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels[roomID] {
		cancel()
	}
	delete(s.cancels, roomID)
}

// StopAll cancels everything, for shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for roomID, room := range s.cancels {
		for _, cancel := range room {
			cancel()
		}
		delete(s.cancels, roomID)
	}
}

// Running reports whether the participant currently has a ticker.
func (s *Scheduler) Running(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := s.cancels[roomID]
	_, ok := room[userID]
	return ok
}
