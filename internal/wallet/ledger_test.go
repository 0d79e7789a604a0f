package wallet

import (
	"context"
	"errors"
	"testing"

	"velvet-rooms/internal/store"
)

func newLedger(t *testing.T, balances map[string]int64) (*Ledger, context.Context) {
	t.Helper()
	s := store.NewMem()
	ctx := context.Background()
	for id, bal := range balances {
		if err := s.EnsureAccount(ctx, id, bal); err != nil {
			t.Fatalf("ensure account %s: %v", id, err)
		}
	}
	return New(s), ctx
}

func TestLedgerEntryFeeIdempotent(t *testing.T) {
	led, ctx := newLedger(t, map[string]int64{"guest": 25})

	res, err := led.EntryFee(ctx, "room1", "guest", "part1", 10)
	if err != nil {
		t.Fatalf("entry fee: %v", err)
	}
	if !res.Applied || res.SenderSpendableCC != 15 {
		t.Fatalf("unexpected result %+v", res)
	}

	replay, err := led.EntryFee(ctx, "room1", "guest", "part1", 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Applied {
		t.Fatalf("replayed entry fee must not apply")
	}
	acct, err := led.Balance(ctx, "guest")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if acct.SpendableCC != 15 {
		t.Fatalf("balance = %d, want 15 after one charge", acct.SpendableCC)
	}
}

func TestLedgerMeteredChargeDedupPerMinute(t *testing.T) {
	led, ctx := newLedger(t, map[string]int64{"guest": 10})

	for _, minute := range []int{11, 11, 12} {
		if _, err := led.MeteredCharge(ctx, "room1", "guest", minute, 2); err != nil {
			t.Fatalf("charge minute %d: %v", minute, err)
		}
	}
	acct, _ := led.Balance(ctx, "guest")
	if acct.SpendableCC != 6 {
		t.Fatalf("balance = %d, want 6 after two distinct minutes", acct.SpendableCC)
	}
}

func TestLedgerRevealPurchaseCreditsHostPending(t *testing.T) {
	led, ctx := newLedger(t, map[string]int64{"guest": 50, "host": 0})

	res, err := led.RevealPurchase(ctx, "room1", "guest", "host", 20, "rev1")
	if err != nil {
		t.Fatalf("reveal purchase: %v", err)
	}
	if res.ReceiverPendingCC != 20 {
		t.Fatalf("host pending = %d, want 20", res.ReceiverPendingCC)
	}
	moved, err := led.Settle(ctx, "host")
	if err != nil || moved != 20 {
		t.Fatalf("settle = %d, %v, want 20, nil", moved, err)
	}
}

func TestLedgerErrorMapping(t *testing.T) {
	led, ctx := newLedger(t, map[string]int64{"guest": 1})

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{
			name: "insufficient funds",
			run: func() error {
				_, err := led.EntryFee(ctx, "room1", "guest", "p1", 10)
				return err
			},
			want: ErrInsufficientFunds,
		},
		{
			name: "missing account",
			run: func() error {
				_, err := led.Balance(ctx, "nobody")
				return err
			},
			want: ErrAccountNotFound,
		},
		{
			name: "zero amount",
			run: func() error {
				_, err := led.Transfer(ctx, "guest", "", 0, store.TxEntryFee, "room1", "k")
				return err
			},
			want: ErrInvalidAmount,
		},
		{
			name: "negative topup",
			run: func() error {
				_, err := led.Topup(ctx, "guest", -5)
				return err
			},
			want: ErrInvalidAmount,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}
