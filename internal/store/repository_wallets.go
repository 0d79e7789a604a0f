package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// Transfer applies one atomic wallet movement: debit the sender's spendable
// balance, credit the receiver's pending balance when a receiver is given,
// and append exactly one transaction row. A transfer whose dedup key has been
// seen before changes nothing and reports Applied=false.
func (s *Postgres) Transfer(ctx context.Context, p TransferParams) (TransferResult, error) {
	var res TransferResult
	if p.AmountCC <= 0 {
		return res, errors.New("amount must be positive")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	txID := NewID()
	var receiver *string
	if p.ReceiverID != "" {
		receiver = &p.ReceiverID
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, sender_id, receiver_id, amount_cc, kind, room_id, dedup_key)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (dedup_key) DO NOTHING`,
		txID, p.SenderID, receiver, p.AmountCC, p.Kind, p.RoomID, p.DedupKey)
	if err != nil {
		return res, err
	}
	if tag.RowsAffected() == 0 {
		// Replay of an already-applied transfer.
		var existingID string
		err := s.Pool.QueryRow(ctx,
			`SELECT id FROM transactions WHERE dedup_key = $1`, p.DedupKey).Scan(&existingID)
		if err != nil {
			return res, err
		}
		return TransferResult{TxID: existingID, Applied: false}, nil
	}

	var bal int64
	err = tx.QueryRow(ctx,
		`SELECT spendable_cc FROM accounts WHERE user_id = $1 FOR UPDATE`, p.SenderID).Scan(&bal)
	if err != nil {
		return res, mapNotFound(err)
	}
	if bal < p.AmountCC {
		return res, ErrInsufficientBalance
	}
	res.SenderSpendableCC = bal - p.AmountCC
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET spendable_cc = $1, updated_at = now() WHERE user_id = $2`,
		res.SenderSpendableCC, p.SenderID); err != nil {
		return res, err
	}
	if p.ReceiverID != "" {
		err := tx.QueryRow(ctx,
			`UPDATE accounts SET pending_cc = pending_cc + $1, updated_at = now()
			 WHERE user_id = $2 RETURNING pending_cc`,
			p.AmountCC, p.ReceiverID).Scan(&res.ReceiverPendingCC)
		if err != nil {
			return res, mapNotFound(err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return res, err
	}
	res.TxID = txID
	res.Applied = true
	return res, nil
}

func (s *Postgres) GetAccount(ctx context.Context, userID string) (Account, error) {
	var a Account
	err := s.Pool.QueryRow(ctx,
		`SELECT user_id, spendable_cc, pending_cc, updated_at FROM accounts WHERE user_id = $1`,
		userID).Scan(&a.UserID, &a.SpendableCC, &a.PendingCC, &a.UpdatedAt)
	if err != nil {
		return a, mapNotFound(err)
	}
	return a, nil
}

func (s *Postgres) EnsureAccount(ctx context.Context, userID string, initialCC int64) error {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO accounts (user_id, spendable_cc) VALUES ($1,$2)
		 ON CONFLICT (user_id) DO NOTHING`, userID, initialCC)
	return err
}

// Topup credits spendable balance out of band. The platform backend is the
// counterparty, so the row is recorded against the "platform" sender.
func (s *Postgres) Topup(ctx context.Context, userID string, amountCC int64) (int64, error) {
	if amountCC <= 0 {
		return 0, errors.New("amount must be positive")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var bal int64
	err = tx.QueryRow(ctx,
		`UPDATE accounts SET spendable_cc = spendable_cc + $1, updated_at = now()
		 WHERE user_id = $2 RETURNING spendable_cc`, amountCC, userID).Scan(&bal)
	if err != nil {
		return 0, mapNotFound(err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, sender_id, receiver_id, amount_cc, kind, room_id, dedup_key)
		 VALUES ($1,'platform',$2,$3,'admin_topup','',$4)`,
		NewID(), userID, amountCC, NewID()); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return bal, nil
}

// Settle clears the user's full pending balance into spendable and returns
// the amount moved.
func (s *Postgres) Settle(ctx context.Context, userID string) (int64, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var pending int64
	err = tx.QueryRow(ctx,
		`SELECT pending_cc FROM accounts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&pending)
	if err != nil {
		return 0, mapNotFound(err)
	}
	if pending == 0 {
		return 0, nil
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET spendable_cc = spendable_cc + $1, pending_cc = 0, updated_at = now()
		 WHERE user_id = $2`, pending, userID); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, sender_id, receiver_id, amount_cc, kind, room_id, dedup_key)
		 VALUES ($1,$2,NULL,$3,'settlement','',$4)`,
		NewID(), userID, pending, NewID()); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return pending, nil
}

func (s *Postgres) ListTransactions(ctx context.Context, f TransactionFilter, limit, offset int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, sender_id, COALESCE(receiver_id,''), amount_cc, kind, room_id, dedup_key, created_at
		 FROM transactions
		 WHERE ($1 = '' OR sender_id = $1 OR receiver_id = $1)
		   AND ($2 = '' OR room_id = $2)
		   AND ($3 = '' OR kind = $3)
		 ORDER BY created_at DESC
		 LIMIT $4 OFFSET $5`,
		f.UserID, f.RoomID, f.Kind, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Transaction, 0, limit)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.AmountCC, &t.Kind, &t.RoomID, &t.DedupKey, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
