package store

import (
	"context"
)

func (s *Postgres) CreateRoom(ctx context.Context, hostID string, basePriceCC int64) (string, error) {
	id := NewID()
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO rooms (id, host_id, status, base_price_cc) VALUES ($1,$2,$3,$4)`,
		id, hostID, RoomWaiting, basePriceCC)
	return id, err
}

func (s *Postgres) GetRoom(ctx context.Context, roomID string) (Room, error) {
	var r Room
	err := s.Pool.QueryRow(ctx,
		`SELECT id, host_id, status, base_price_cc, reveal_kind, reveal_payload, created_at, updated_at
		 FROM rooms WHERE id = $1`, roomID).
		Scan(&r.ID, &r.HostID, &r.Status, &r.BasePriceCC, &r.RevealKind, &r.RevealPayload, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, mapNotFound(err)
	}
	return r, nil
}

// ActivateRoom flips waiting -> active. Reports false when the room was not
// in the waiting state.
func (s *Postgres) ActivateRoom(ctx context.Context, roomID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE rooms SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		RoomActive, roomID, RoomWaiting)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// EndRoom flips any non-ended room to ended. Reports false when the room was
// already ended.
func (s *Postgres) EndRoom(ctx context.Context, roomID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE rooms SET status = $1, updated_at = now() WHERE id = $2 AND status <> $1`,
		RoomEnded, roomID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetReveal publishes revealed content, guarded by "no outstanding reveal".
func (s *Postgres) SetReveal(ctx context.Context, roomID, kind, payload string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE rooms SET reveal_kind = $1, reveal_payload = $2, updated_at = now()
		 WHERE id = $3 AND status = $4 AND reveal_kind IS NULL`,
		kind, payload, roomID, RoomActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ClearReveal(ctx context.Context, roomID string) error {
	_, err := s.Pool.Exec(ctx,
		`UPDATE rooms SET reveal_kind = NULL, reveal_payload = NULL, updated_at = now() WHERE id = $1`,
		roomID)
	return err
}
