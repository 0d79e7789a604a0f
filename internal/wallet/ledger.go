package wallet

import (
	"context"
	"errors"
	"fmt"

	"velvet-rooms/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrAccountNotFound   = errors.New("account_not_found")
	ErrInvalidAmount     = errors.New("invalid_amount")
)

// Store is the slice of the persistence collaborator the ledger depends on.
type Store interface {
	Transfer(ctx context.Context, p store.TransferParams) (store.TransferResult, error)
	GetAccount(ctx context.Context, userID string) (store.Account, error)
	EnsureAccount(ctx context.Context, userID string, initialCC int64) error
	Topup(ctx context.Context, userID string, amountCC int64) (int64, error)
	Settle(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]store.Transaction, error)
}

// Ledger is the authoritative wallet surface. Every balance mutation in the
// engine goes through it and lands as exactly one transaction row.
type Ledger struct {
	store Store
}

func New(s Store) *Ledger {
	return &Ledger{store: s}
}

// Transfer debits the sender's spendable balance and credits the receiver's
// pending balance; with an empty receiver it is a pure fee. The balance check
// and the mutation commit atomically in the store, and the dedup key makes a
// replayed transfer a no-op.
func (l *Ledger) Transfer(ctx context.Context, senderID, receiverID string, amountCC int64, kind, roomID, dedupKey string) (store.TransferResult, error) {
	if amountCC <= 0 {
		return store.TransferResult{}, ErrInvalidAmount
	}
	res, err := l.store.Transfer(ctx, store.TransferParams{
		SenderID:   senderID,
		ReceiverID: receiverID,
		AmountCC:   amountCC,
		Kind:       kind,
		RoomID:     roomID,
		DedupKey:   dedupKey,
	})
	if err != nil {
		return store.TransferResult{}, mapStoreErr(err)
	}
	return res, nil
}

// EntryFee charges the one-time join fee as a pure fee. The open participant
// row's id keys the dedup, so a re-sent join cannot double charge.
func (l *Ledger) EntryFee(ctx context.Context, roomID, userID, participantID string, amountCC int64) (store.TransferResult, error) {
	return l.Transfer(ctx, userID, "", amountCC, store.TxEntryFee, roomID, "entry:"+participantID)
}

// MeteredCharge bills one elapsed minute. The (room, user, minute) triple
// keys the dedup, which is what makes tick replays idempotent.
func (l *Ledger) MeteredCharge(ctx context.Context, roomID, userID string, minuteIndex int, amountCC int64) (store.TransferResult, error) {
	key := fmt.Sprintf("tick:%s:%s:%d", roomID, userID, minuteIndex)
	return l.Transfer(ctx, userID, "", amountCC, store.TxMeteredBilling, roomID, key)
}

// RevealPurchase moves the reveal price from the requester to the host.
func (l *Ledger) RevealPurchase(ctx context.Context, roomID, requesterID, hostID string, amountCC int64, revealID string) (store.TransferResult, error) {
	return l.Transfer(ctx, requesterID, hostID, amountCC, store.TxRevealPurchase, roomID, "reveal:"+revealID)
}

func (l *Ledger) Balance(ctx context.Context, userID string) (store.Account, error) {
	a, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return store.Account{}, mapStoreErr(err)
	}
	return a, nil
}

func (l *Ledger) EnsureAccount(ctx context.Context, userID string, initialCC int64) error {
	return l.store.EnsureAccount(ctx, userID, initialCC)
}

func (l *Ledger) Topup(ctx context.Context, userID string, amountCC int64) (int64, error) {
	if amountCC <= 0 {
		return 0, ErrInvalidAmount
	}
	bal, err := l.store.Topup(ctx, userID, amountCC)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return bal, nil
}

// Settle clears the user's pending balance into spendable. Settlement timing
// is a platform concern; the engine only exposes the operation.
func (l *Ledger) Settle(ctx context.Context, userID string) (int64, error) {
	moved, err := l.store.Settle(ctx, userID)
	if err != nil {
		return 0, mapStoreErr(err)
	}
	return moved, nil
}

func (l *Ledger) History(ctx context.Context, f store.TransactionFilter, limit, offset int) ([]store.Transaction, error) {
	return l.store.ListTransactions(ctx, f, limit, offset)
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientBalance):
		return ErrInsufficientFunds
	case errors.Is(err, store.ErrNotFound):
		return ErrAccountNotFound
	default:
		return err
	}
}
