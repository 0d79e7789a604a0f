package slots

import (
	"context"
	"errors"

	"velvet-rooms/internal/store"
)

var (
	ErrNoSlotAvailable  = errors.New("no_slot_available")
	ErrAlreadyOccupying = errors.New("already_occupying")
	ErrUnknownSlotKind  = errors.New("unknown_slot_kind")
)

type Store interface {
	ListSlots(ctx context.Context, roomID string) ([]store.Slot, error)
	SlotByOccupant(ctx context.Context, roomID, userID string) (*store.Slot, error)
	ClaimSlot(ctx context.Context, slotID, userID string) (bool, error)
	ReleaseSlot(ctx context.Context, roomID, userID string) (bool, error)
	ReleaseAllSlots(ctx context.Context, roomID string) (int, error)
}

// Allocator hands out the fixed camera positions of a room. Claims are
// conditional updates guarded by "occupant is currently null", so concurrent
// claims for one slot have exactly one winner.
type Allocator struct {
	store       Store
	maxAttempts int
}

func New(s Store, maxAttempts int) *Allocator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Allocator{store: s, maxAttempts: maxAttempts}
}

// Claim takes the lowest-index free slot of the requested kind. A claim that
// loses the race moves on to the next free slot; the listing is refreshed up
// to the attempt bound before giving up with ErrNoSlotAvailable.
func (a *Allocator) Claim(ctx context.Context, roomID, kind, userID string) (store.Slot, error) {
	if kind != store.SlotHostCam && kind != store.SlotGuestCam {
		return store.Slot{}, ErrUnknownSlotKind
	}
	held, err := a.store.SlotByOccupant(ctx, roomID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Slot{}, err
	}
	if held != nil {
		return store.Slot{}, ErrAlreadyOccupying
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		all, err := a.store.ListSlots(ctx, roomID)
		if err != nil {
			return store.Slot{}, err
		}
		free := 0
		for _, sl := range all {
			if sl.Kind != kind || sl.OccupantUserID != nil {
				continue
			}
			free++
			ok, err := a.store.ClaimSlot(ctx, sl.ID, userID)
			if errors.Is(err, store.ErrOccupantHeld) {
				return store.Slot{}, ErrAlreadyOccupying
			}
			if err != nil {
				return store.Slot{}, err
			}
			if ok {
				claimed, err := a.store.SlotByOccupant(ctx, roomID, userID)
				if err != nil {
					return store.Slot{}, err
				}
				return *claimed, nil
			}
			// Lost the race for this slot; fall through to the next index.
		}
		if free == 0 {
			return store.Slot{}, ErrNoSlotAvailable
		}
	}
	return store.Slot{}, ErrNoSlotAvailable
}

// Release clears the caller's slot. Releasing without holding one is a no-op,
// which keeps stale clients from freeing someone else's position.
func (a *Allocator) Release(ctx context.Context, roomID, userID string) (bool, error) {
	return a.store.ReleaseSlot(ctx, roomID, userID)
}

// ReleaseAll frees every occupied slot, used by the room-end sweep.
func (a *Allocator) ReleaseAll(ctx context.Context, roomID string) (int, error) {
	return a.store.ReleaseAllSlots(ctx, roomID)
}
