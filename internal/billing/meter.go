package billing

import (
	"context"
	"errors"
	"time"

	"velvet-rooms/internal/config"
	"velvet-rooms/internal/store"
	"velvet-rooms/internal/wallet"
)

// Store is the slice of the persistence collaborator the meter depends on.
type Store interface {
	OpenParticipant(ctx context.Context, p store.Participant) (bool, error)
	GetOpenParticipant(ctx context.Context, roomID, userID string) (store.Participant, error)
	CloseParticipant(ctx context.Context, roomID, userID, reason string) (bool, error)
	ListOpenParticipants(ctx context.Context, roomID string) ([]store.Participant, error)
	ListAllOpenParticipants(ctx context.Context) ([]store.Participant, error)
}

// Meter applies the entry fee on join and the per-minute charge once the
// free allowance runs out. Callers serialize room mutations; the meter's own
// writes are conditional, so a racing replay can only no-op.
type Meter struct {
	store  Store
	ledger *wallet.Ledger
	cfg    config.BillingConfig
}

func NewMeter(s Store, led *wallet.Ledger, cfg config.BillingConfig) *Meter {
	return &Meter{store: s, ledger: led, cfg: cfg}
}

// TickResult reports what one billing tick did.
type TickResult struct {
	Suppressed bool
	Charged    bool
	Applied    bool
	ForcedExit bool
	BalanceCC  int64
}

// EnterRoom activates a membership. Hosts join free; guests pay the entry
// fee. Re-entering while already joined reports the open row and changes
// nothing.
func (m *Meter) EnterRoom(ctx context.Context, room store.Room, userID string) (store.Participant, bool, error) {
	if existing, err := m.store.GetOpenParticipant(ctx, room.ID, userID); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Participant{}, false, err
	}

	p := store.Participant{
		ID:       store.NewID(),
		RoomID:   room.ID,
		UserID:   userID,
		Role:     store.RoleGuest,
		JoinedAt: time.Now().UTC(),
	}
	if userID == room.HostID {
		p.Role = store.RoleHost
	}
	created, err := m.store.OpenParticipant(ctx, p)
	if err != nil {
		return store.Participant{}, false, err
	}
	if !created {
		existing, err := m.store.GetOpenParticipant(ctx, room.ID, userID)
		return existing, true, err
	}
	// The fee is charged only after the conditional insert wins, so a join
	// that loses the race cannot mint an orphan charge.
	if p.Role != store.RoleHost && m.cfg.EntryFeeCC > 0 {
		if _, err := m.ledger.EntryFee(ctx, room.ID, userID, p.ID, m.cfg.EntryFeeCC); err != nil {
			if _, cerr := m.store.CloseParticipant(ctx, room.ID, userID, store.LeaveBillingFailure); cerr != nil {
				return store.Participant{}, false, cerr
			}
			return store.Participant{}, false, err
		}
	}
	return p, false, nil
}

// Tick bills one elapsed minute. Minutes inside the free allowance are not
// charged. A tick for a participant who already left is suppressed, and a
// charge that fails on funds force-exits the participant instead of letting
// debt accrue.
func (m *Meter) Tick(ctx context.Context, roomID, userID string, minuteIndex int) (TickResult, error) {
	p, err := m.store.GetOpenParticipant(ctx, roomID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return TickResult{Suppressed: true}, nil
	}
	if err != nil {
		return TickResult{}, err
	}
	if p.Role == store.RoleHost || minuteIndex <= m.cfg.FreeMinutes || m.cfg.PerMinuteFeeCC <= 0 {
		return TickResult{}, nil
	}
	res, err := m.ledger.MeteredCharge(ctx, roomID, userID, minuteIndex, m.cfg.PerMinuteFeeCC)
	if errors.Is(err, wallet.ErrInsufficientFunds) {
		if _, err := m.store.CloseParticipant(ctx, roomID, userID, store.LeaveBillingFailure); err != nil {
			return TickResult{}, err
		}
		return TickResult{ForcedExit: true}, nil
	}
	if err != nil {
		return TickResult{}, err
	}
	return TickResult{Charged: true, Applied: res.Applied, BalanceCC: res.SenderSpendableCC}, nil
}

// ExitRoom closes the membership. No refunds. Reports false when the user
// was not joined, so leave and sweep can overlap safely.
func (m *Meter) ExitRoom(ctx context.Context, roomID, userID, reason string) (bool, error) {
	return m.store.CloseParticipant(ctx, roomID, userID, reason)
}

// OpenParticipants lists the room's active memberships.
func (m *Meter) OpenParticipants(ctx context.Context, roomID string) ([]store.Participant, error) {
	return m.store.ListOpenParticipants(ctx, roomID)
}

// AllOpenParticipants feeds tick recovery across process restarts.
func (m *Meter) AllOpenParticipants(ctx context.Context) ([]store.Participant, error) {
	return m.store.ListAllOpenParticipants(ctx)
}
