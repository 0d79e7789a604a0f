package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"velvet-rooms/internal/billing"
	"velvet-rooms/internal/broadcast"
	"velvet-rooms/internal/config"
	"velvet-rooms/internal/notify"
	"velvet-rooms/internal/reveal"
	"velvet-rooms/internal/slots"
	"velvet-rooms/internal/store"
	"velvet-rooms/internal/wallet"
)

// Store is the slice of the persistence collaborator the engine itself
// touches; the components carry their own slices.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (store.Room, error)
	CreateRoom(ctx context.Context, hostID string, basePriceCC int64) (string, error)
	ActivateRoom(ctx context.Context, roomID string) (bool, error)
	EndRoom(ctx context.Context, roomID string) (bool, error)
	CreateSlots(ctx context.Context, roomID string, hostCams, guestCams int) error
	ListSlots(ctx context.Context, roomID string) ([]store.Slot, error)
	GetOpenParticipant(ctx context.Context, roomID, userID string) (store.Participant, error)
}

// Engine is the session engine facade: it serializes room mutations, runs
// them through the wallet/slot/billing/reveal components, and broadcasts the
// resulting state changes.
type Engine struct {
	store    Store
	ledger   *wallet.Ledger
	slots    *slots.Allocator
	meter    *billing.Meter
	reveals  *reveal.Engine
	hub      *broadcast.Hub
	sched    *billing.Scheduler
	notifier *notify.Notifier

	roomCfg    config.RoomConfig
	billingCfg config.BillingConfig
	locks      *roomLocks
}

func New(st Store, led *wallet.Ledger, alloc *slots.Allocator, meter *billing.Meter, rev *reveal.Engine, hub *broadcast.Hub, notifier *notify.Notifier, roomCfg config.RoomConfig, billingCfg config.BillingConfig) *Engine {
	if billingCfg.TickPeriod <= 0 {
		billingCfg.TickPeriod = time.Minute
	}
	e := &Engine{
		store:      st,
		ledger:     led,
		slots:      alloc,
		meter:      meter,
		reveals:    rev,
		hub:        hub,
		notifier:   notifier,
		roomCfg:    roomCfg,
		billingCfg: billingCfg,
		locks:      newRoomLocks(),
	}
	e.sched = billing.NewScheduler(billingCfg.TickPeriod, e.handleTick)
	return e
}

// CreateRoom provisions a waiting room with its fixed slot layout. Room
// creation belongs to the platform backend; this is its stand-in.
func (e *Engine) CreateRoom(ctx context.Context, hostID string, basePriceCC int64) (store.Room, error) {
	if basePriceCC <= 0 {
		basePriceCC = e.roomCfg.BaseRevealPriceCC
	}
	if err := e.ledger.EnsureAccount(ctx, hostID, 0); err != nil {
		return store.Room{}, err
	}
	roomID, err := e.store.CreateRoom(ctx, hostID, basePriceCC)
	if err != nil {
		return store.Room{}, err
	}
	if err := e.store.CreateSlots(ctx, roomID, e.roomCfg.HostCamSlots, e.roomCfg.GuestCamSlots); err != nil {
		return store.Room{}, err
	}
	return e.store.GetRoom(ctx, roomID)
}

// JoinRoom activates a membership, charging the entry fee for guests. The
// first join flips the room from waiting to active. Billing ticks begin only
// after the join has committed.
func (e *Engine) JoinRoom(ctx context.Context, roomID, userID string) (store.Participant, error) {
	e.locks.lock(roomID)
	defer e.locks.unlock(roomID)

	room, err := e.getLiveRoom(ctx, roomID)
	if err != nil {
		return store.Participant{}, err
	}
	p, already, err := e.meter.EnterRoom(ctx, room, userID)
	if err != nil {
		return store.Participant{}, err
	}
	if already {
		return p, nil
	}
	if room.Status == store.RoomWaiting {
		if _, err := e.store.ActivateRoom(ctx, roomID); err != nil {
			return store.Participant{}, err
		}
	}
	e.hub.Publish(roomID, broadcast.EventParticipantJoined, map[string]any{
		"user_id": p.UserID,
		"role":    p.Role,
	})
	if p.Role != store.RoleHost {
		e.sched.Start(roomID, userID, p.JoinedAt)
	}
	return p, nil
}

// LeaveRoom closes the membership, stops billing and frees the slot. Safe to
// call again after the fact; the connection-loss sweep reuses it.
func (e *Engine) LeaveRoom(ctx context.Context, roomID, userID string) error {
	e.locks.lock(roomID)
	defer e.locks.unlock(roomID)

	closed, err := e.meter.ExitRoom(ctx, roomID, userID, store.LeaveVoluntary)
	if err != nil {
		return err
	}
	e.sched.Stop(roomID, userID)
	released, err := e.slots.Release(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if released {
		e.hub.Publish(roomID, broadcast.EventSlotReleased, map[string]any{"user_id": userID})
	}
	if closed {
		e.hub.Publish(roomID, broadcast.EventParticipantLeft, map[string]any{"user_id": userID})
	}
	return nil
}

// ClaimCameraSlot assigns the lowest free position of the requested kind to
// a joined participant.
func (e *Engine) ClaimCameraSlot(ctx context.Context, roomID, userID, kind string) (store.Slot, error) {
	e.locks.lock(roomID)
	defer e.locks.unlock(roomID)

	if _, err := e.getLiveRoom(ctx, roomID); err != nil {
		return store.Slot{}, err
	}
	if _, err := e.store.GetOpenParticipant(ctx, roomID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Slot{}, ErrNotJoined
		}
		return store.Slot{}, err
	}
	sl, err := e.slots.Claim(ctx, roomID, kind, userID)
	if err != nil {
		return store.Slot{}, err
	}
	e.hub.Publish(roomID, broadcast.EventSlotClaimed, map[string]any{
		"slot_id": sl.ID,
		"kind":    sl.Kind,
		"index":   sl.Index,
		"user_id": userID,
	})
	return sl, nil
}

func (e *Engine) ReleaseCameraSlot(ctx context.Context, roomID, userID string) error {
	e.locks.lock(roomID)
	defer e.locks.unlock(roomID)

	released, err := e.slots.Release(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if released {
		e.hub.Publish(roomID, broadcast.EventSlotReleased, map[string]any{"user_id": userID})
	}
	return nil
}

// RequestReveal runs the paid unlock flow for a joined participant.
func (e *Engine) RequestReveal(ctx context.Context, roomID, userID, cardKind string) (reveal.Content, error) {
	e.locks.lock(roomID)
	defer e.locks.unlock(roomID)

	if _, err := e.getLiveRoom(ctx, roomID); err != nil {
		return reveal.Content{}, err
	}
	if _, err := e.store.GetOpenParticipant(ctx, roomID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reveal.Content{}, ErrNotJoined
		}
		return reveal.Content{}, err
	}
	content, err := e.reveals.Request(ctx, roomID, userID, cardKind)
	if err != nil {
		return reveal.Content{}, err
	}
	e.hub.Publish(roomID, broadcast.EventRevealSet, map[string]any{
		"kind":     content.Kind,
		"payload":  content.Payload,
		"price_cc": content.PriceCC,
		"buyer_id": userID,
	})
	return content, nil
}

func (e *Engine) ClearReveal(ctx context.Context, roomID string) error {
	e.locks.lock(roomID)
	defer e.locks.unlock(roomID)

	if _, err := e.getLiveRoom(ctx, roomID); err != nil {
		return err
	}
	if err := e.reveals.Clear(ctx, roomID); err != nil {
		return err
	}
	e.hub.Publish(roomID, broadcast.EventRevealCleared, nil)
	return nil
}

// EndRoom is the host's explicit end (callerID set) or the collaborator
// sweep (callerID empty). The sweep is idempotent: ending twice repeats only
// no-op conditional writes.
func (e *Engine) EndRoom(ctx context.Context, roomID, callerID string) error {
	e.locks.lock(roomID)
	defer e.locks.unlock(roomID)

	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoomNotFound
		}
		return err
	}
	if callerID != "" && callerID != room.HostID {
		return ErrNotHost
	}
	ended, err := e.store.EndRoom(ctx, roomID)
	if err != nil {
		return err
	}
	open, err := e.meter.OpenParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	for _, p := range open {
		if _, err := e.meter.ExitRoom(ctx, roomID, p.UserID, store.LeaveRoomEnded); err != nil {
			return err
		}
	}
	e.sched.StopRoom(roomID)
	if _, err := e.slots.ReleaseAll(ctx, roomID); err != nil {
		return err
	}
	if ended {
		e.hub.Publish(roomID, broadcast.EventRoomEnded, map[string]any{"host_id": room.HostID})
	}
	e.hub.CloseRoom(roomID)
	return nil
}

// BillingStatus is the caller's own metering position within a room.
type BillingStatus struct {
	MinutesElapsed int   `json:"minutes_elapsed"`
	FreeMinutes    int   `json:"free_minutes"`
	PerMinuteFeeCC int64 `json:"per_minute_fee_cc"`
	SpendableCC    int64 `json:"spendable_cc"`
}

// Snapshot is the authoritative full-state fetch subscribers fall back to
// when the event stream cannot guarantee replay.
type Snapshot struct {
	Room        store.Room         `json:"room"`
	Slots       []store.Slot       `json:"slots"`
	Participant *store.Participant `json:"participant,omitempty"`
	Billing     *BillingStatus     `json:"billing,omitempty"`
	Version     int64              `json:"version"`
}

func (e *Engine) Snapshot(ctx context.Context, roomID, userID string) (Snapshot, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, ErrRoomNotFound
		}
		return Snapshot{}, err
	}
	sls, err := e.store.ListSlots(ctx, roomID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Room: room, Slots: sls, Version: e.hub.Version(roomID)}
	if userID != "" {
		if p, err := e.store.GetOpenParticipant(ctx, roomID, userID); err == nil {
			snap.Participant = &p
			status := BillingStatus{
				MinutesElapsed: int(time.Since(p.JoinedAt) / e.billingCfg.TickPeriod),
				FreeMinutes:    e.billingCfg.FreeMinutes,
				PerMinuteFeeCC: e.billingCfg.PerMinuteFeeCC,
			}
			if acct, err := e.ledger.Balance(ctx, userID); err == nil {
				status.SpendableCC = acct.SpendableCC
			}
			snap.Billing = &status
		} else if !errors.Is(err, store.ErrNotFound) {
			return Snapshot{}, err
		}
	}
	return snap, nil
}

// Subscribe attaches a live watcher to the room's event stream.
func (e *Engine) Subscribe(roomID string) chan broadcast.StreamEvent {
	return e.hub.Subscribe(roomID)
}

func (e *Engine) Unsubscribe(roomID string, ch chan broadcast.StreamEvent) {
	e.hub.Unsubscribe(roomID, ch)
}

// Replay returns buffered events newer than lastEventID for reconnects.
func (e *Engine) Replay(roomID, lastEventID string) []broadcast.StreamEvent {
	return e.hub.ReplayAfter(roomID, lastEventID)
}

// ResumeBilling restarts tickers for every open membership, billing the
// minutes that elapsed while the process was down. Dedup keys absorb any
// overlap with charges applied before the restart.
func (e *Engine) ResumeBilling(ctx context.Context) error {
	open, err := e.meter.AllOpenParticipants(ctx)
	if err != nil {
		return err
	}
	for _, p := range open {
		if p.Role == store.RoleHost {
			continue
		}
		e.sched.Start(p.RoomID, p.UserID, p.JoinedAt)
	}
	return nil
}

// Shutdown stops all billing tickers and the notifier.
func (e *Engine) Shutdown() {
	e.sched.StopAll()
	if e.notifier != nil {
		e.notifier.Close()
	}
}

func (e *Engine) handleTick(ctx context.Context, roomID, userID string, minuteIndex int) {
	res, err := e.meter.Tick(ctx, roomID, userID, minuteIndex)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Int("minute", minuteIndex).Msg("billing tick failed")
		return
	}
	if res.Suppressed {
		e.sched.Stop(roomID, userID)
		return
	}
	if res.Charged && res.Applied {
		e.hub.Publish(roomID, broadcast.EventBillingCharged, map[string]any{
			"user_id":      userID,
			"minute":       minuteIndex,
			"amount_cc":    e.billingCfg.PerMinuteFeeCC,
			"spendable_cc": res.BalanceCC,
		})
	}
	if res.ForcedExit {
		e.forceExit(ctx, roomID, userID)
	}
}

func (e *Engine) forceExit(ctx context.Context, roomID, userID string) {
	e.sched.Stop(roomID, userID)

	// Stop cancels the ticker context this call arrived on; the slot release
	// still has to commit.
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	e.locks.lock(roomID)
	released, err := e.slots.Release(cleanup, roomID, userID)
	e.locks.unlock(roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("slot release on forced exit failed")
	}
	if released {
		e.hub.Publish(roomID, broadcast.EventSlotReleased, map[string]any{"user_id": userID})
	}
	e.hub.Publish(roomID, broadcast.EventParticipantForceExited, map[string]any{
		"user_id": userID,
		"reason":  store.LeaveBillingFailure,
	})
	if e.notifier != nil {
		e.notifier.Publish(notify.Event{
			Type:   notify.TypeForcedExit,
			RoomID: roomID,
			UserID: userID,
			Reason: store.LeaveBillingFailure,
		})
	}
	log.Info().Str("room_id", roomID).Str("user_id", userID).Msg("participant force-exited on billing failure")
}

func (e *Engine) getLiveRoom(ctx context.Context, roomID string) (store.Room, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Room{}, ErrRoomNotFound
		}
		return store.Room{}, err
	}
	if room.Status == store.RoomEnded {
		return store.Room{}, ErrRoomEnded
	}
	return room, nil
}
