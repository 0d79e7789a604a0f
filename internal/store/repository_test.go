package store

import (
	"errors"
	"testing"
)

func TestPostgresTransferDedupAndBalance(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	mustEnsureAccount(t, st, ctx, "guest", 100)
	mustEnsureAccount(t, st, ctx, "host", 0)

	p := TransferParams{
		SenderID: "guest", ReceiverID: "host", AmountCC: 40,
		Kind: TxRevealPurchase, RoomID: "r1", DedupKey: "reveal:a",
	}
	first, err := st.Transfer(ctx, p)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !first.Applied || first.SenderSpendableCC != 60 || first.ReceiverPendingCC != 40 {
		t.Fatalf("unexpected result %+v", first)
	}

	replay, err := st.Transfer(ctx, p)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Applied || replay.TxID != first.TxID {
		t.Fatalf("replay result %+v, want Applied=false TxID=%s", replay, first.TxID)
	}

	if _, err := st.Transfer(ctx, TransferParams{
		SenderID: "guest", AmountCC: 1000, Kind: TxEntryFee, RoomID: "r1", DedupKey: "entry:big",
	}); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	guest, err := st.GetAccount(ctx, "guest")
	if err != nil {
		t.Fatalf("get guest: %v", err)
	}
	if guest.SpendableCC != 60 {
		t.Fatalf("guest spendable = %d, want 60", guest.SpendableCC)
	}

	txs, err := st.ListTransactions(ctx, TransactionFilter{UserID: "guest"}, 10, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("transaction count = %d, want 1", len(txs))
	}
}

func TestPostgresTopupAndSettle(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	mustEnsureAccount(t, st, ctx, "guest", 10)
	mustEnsureAccount(t, st, ctx, "host", 0)

	bal, err := st.Topup(ctx, "guest", 90)
	if err != nil {
		t.Fatalf("topup: %v", err)
	}
	if bal != 100 {
		t.Fatalf("balance = %d, want 100", bal)
	}
	if _, err := st.Topup(ctx, "missing", 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("topup missing account err = %v, want ErrNotFound", err)
	}

	if _, err := st.Transfer(ctx, TransferParams{
		SenderID: "guest", ReceiverID: "host", AmountCC: 25,
		Kind: TxRevealPurchase, RoomID: "r1", DedupKey: "reveal:b",
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	moved, err := st.Settle(ctx, "host")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if moved != 25 {
		t.Fatalf("settled = %d, want 25", moved)
	}
	host, _ := st.GetAccount(ctx, "host")
	if host.SpendableCC != 25 || host.PendingCC != 0 {
		t.Fatalf("host account = %+v after settle", host)
	}
}

func TestPostgresParticipantOpenCloseCycle(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	roomID := mustCreateRoom(t, st, ctx, "host", 20)

	ok, err := st.OpenParticipant(ctx, Participant{ID: NewID(), RoomID: roomID, UserID: "u1", Role: RoleGuest})
	if err != nil || !ok {
		t.Fatalf("open: ok=%v err=%v", ok, err)
	}
	ok, err = st.OpenParticipant(ctx, Participant{ID: NewID(), RoomID: roomID, UserID: "u1", Role: RoleGuest})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if ok {
		t.Fatalf("second open row must be rejected while first is open")
	}

	got, err := st.GetOpenParticipant(ctx, roomID, "u1")
	if err != nil {
		t.Fatalf("get open: %v", err)
	}
	if got.Role != RoleGuest || got.LeftAt != nil {
		t.Fatalf("open row = %+v", got)
	}

	closed, err := st.CloseParticipant(ctx, roomID, "u1", LeaveBillingFailure)
	if err != nil || !closed {
		t.Fatalf("close: ok=%v err=%v", closed, err)
	}
	if _, err := st.GetOpenParticipant(ctx, roomID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after close", err)
	}

	ok, err = st.OpenParticipant(ctx, Participant{ID: NewID(), RoomID: roomID, UserID: "u1", Role: RoleGuest})
	if err != nil || !ok {
		t.Fatalf("reopen: ok=%v err=%v", ok, err)
	}
}

func TestPostgresSlotClaimConstraints(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	roomID := mustCreateRoom(t, st, ctx, "host", 20)
	if err := st.CreateSlots(ctx, roomID, 1, 2); err != nil {
		t.Fatalf("create slots: %v", err)
	}
	sls, err := st.ListSlots(ctx, roomID)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if len(sls) != 3 {
		t.Fatalf("slot count = %d, want 3", len(sls))
	}

	var guests []Slot
	for _, sl := range sls {
		if sl.Kind == SlotGuestCam {
			guests = append(guests, sl)
		}
	}
	ok, err := st.ClaimSlot(ctx, guests[0].ID, "u1")
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := st.ClaimSlot(ctx, guests[0].ID, "u2"); ok {
		t.Fatalf("occupied slot claim must lose")
	}
	if _, err := st.ClaimSlot(ctx, guests[1].ID, "u1"); !errors.Is(err, ErrOccupantHeld) {
		t.Fatalf("err = %v, want ErrOccupantHeld for second slot", err)
	}

	held, err := st.SlotByOccupant(ctx, roomID, "u1")
	if err != nil {
		t.Fatalf("slot by occupant: %v", err)
	}
	if held == nil || held.ID != guests[0].ID {
		t.Fatalf("slot by occupant = %+v", held)
	}

	n, err := st.ReleaseAllSlots(ctx, roomID)
	if err != nil {
		t.Fatalf("release all: %v", err)
	}
	if n != 1 {
		t.Fatalf("released %d slots, want 1", n)
	}
}

func TestPostgresRoomRevealCAS(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	roomID := mustCreateRoom(t, st, ctx, "host", 20)
	if ok, err := st.ActivateRoom(ctx, roomID); err != nil || !ok {
		t.Fatalf("activate: ok=%v err=%v", ok, err)
	}
	ok, err := st.SetReveal(ctx, roomID, "dare", "payload")
	if err != nil || !ok {
		t.Fatalf("set reveal: ok=%v err=%v", ok, err)
	}
	if ok, _ := st.SetReveal(ctx, roomID, "truth", "other"); ok {
		t.Fatalf("set over active reveal must lose")
	}
	room, err := st.GetRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.RevealKind == nil || *room.RevealKind != "dare" {
		t.Fatalf("room reveal = %+v", room.RevealKind)
	}
	if err := st.ClearReveal(ctx, roomID); err != nil {
		t.Fatalf("clear reveal: %v", err)
	}
	if ok, err := st.EndRoom(ctx, roomID); err != nil || !ok {
		t.Fatalf("end: ok=%v err=%v", ok, err)
	}
	if ok, _ := st.SetReveal(ctx, roomID, "dare", "x"); ok {
		t.Fatalf("set reveal on ended room must lose")
	}
}
