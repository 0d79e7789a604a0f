package reveal

import (
	"context"
	"errors"
	"math/rand"

	"velvet-rooms/internal/store"
	"velvet-rooms/internal/wallet"
)

var (
	ErrRevealInProgress = errors.New("reveal_in_progress")
	ErrUnknownCardKind  = errors.New("unknown_card_kind")
	ErrConcurrentUpdate = errors.New("concurrent_update_conflict")
)

// Card kinds a requester can ask for. Mystery resolves to truth or dare
// before pricing.
const (
	KindTruth   = "truth"
	KindDare    = "dare"
	KindMystery = "mystery"
)

type Content struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
	PriceCC int64  `json:"price_cc"`
}

// ContentPool supplies candidate payloads for a resolved kind. The engine
// picks uniformly; the pool's origin (static or external) is its own concern.
type ContentPool interface {
	Pick(kind string) (string, error)
}

type Store interface {
	GetRoom(ctx context.Context, roomID string) (store.Room, error)
	SetReveal(ctx context.Context, roomID, kind, payload string) (bool, error)
	ClearReveal(ctx context.Context, roomID string) error
}

// Engine runs the priced unlock flow: validate funds, move the price from
// requester to host, pick content, publish it onto the room row.
type Engine struct {
	store  Store
	ledger *wallet.Ledger
	pool   ContentPool
}

func New(s Store, led *wallet.Ledger, pool ContentPool) *Engine {
	return &Engine{store: s, ledger: led, pool: pool}
}

// Price is basePrice for dare-class reveals and basePrice/2 rounded down for
// truth-class.
func Price(kind string, basePriceCC int64) (int64, error) {
	switch kind {
	case KindDare:
		return basePriceCC, nil
	case KindTruth:
		return basePriceCC / 2, nil
	default:
		return 0, ErrUnknownCardKind
	}
}

func resolveKind(cardKind string) (string, error) {
	switch cardKind {
	case KindTruth, KindDare:
		return cardKind, nil
	case KindMystery:
		if rand.Intn(2) == 0 {
			return KindTruth, nil
		}
		return KindDare, nil
	default:
		return "", ErrUnknownCardKind
	}
}

// Request performs one paid reveal. Callers serialize requests per room; the
// conditional write on the room row is the backstop against writers outside
// this process. The write lands before the transfer, so a racer that loses
// the write pays nothing, and a transfer failure rolls the reveal back.
func (e *Engine) Request(ctx context.Context, roomID, requesterID, cardKind string) (Content, error) {
	room, err := e.store.GetRoom(ctx, roomID)
	if err != nil {
		return Content{}, err
	}
	if room.RevealKind != nil {
		return Content{}, ErrRevealInProgress
	}
	kind, err := resolveKind(cardKind)
	if err != nil {
		return Content{}, err
	}
	price, err := Price(kind, room.BasePriceCC)
	if err != nil {
		return Content{}, err
	}

	// Surface insufficient funds before anything mutates. The transfer
	// re-checks atomically at commit.
	acct, err := e.ledger.Balance(ctx, requesterID)
	if err != nil {
		return Content{}, err
	}
	if acct.SpendableCC < price {
		return Content{}, wallet.ErrInsufficientFunds
	}

	payload, err := e.pool.Pick(kind)
	if err != nil {
		return Content{}, err
	}
	ok, err := e.store.SetReveal(ctx, roomID, kind, payload)
	if err != nil {
		return Content{}, err
	}
	if !ok {
		return Content{}, ErrConcurrentUpdate
	}
	revealID := store.NewID()
	if _, err := e.ledger.RevealPurchase(ctx, roomID, requesterID, room.HostID, price, revealID); err != nil {
		// An unpaid reveal must not stand.
		_ = e.store.ClearReveal(ctx, roomID)
		return Content{}, err
	}
	return Content{Kind: kind, Payload: payload, PriceCC: price}, nil
}

// Clear resets the outstanding reveal so the next one can be requested.
func (e *Engine) Clear(ctx context.Context, roomID string) error {
	return e.store.ClearReveal(ctx, roomID)
}
