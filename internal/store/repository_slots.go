package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CreateSlots lays out the room's fixed camera positions.
func (s *Postgres) CreateSlots(ctx context.Context, roomID string, hostCams, guestCams int) error {
	batch := &pgx.Batch{}
	for i := 0; i < hostCams; i++ {
		batch.Queue(`INSERT INTO slots (id, room_id, kind, idx) VALUES ($1,$2,$3,$4)`,
			NewID(), roomID, SlotHostCam, i)
	}
	for i := 0; i < guestCams; i++ {
		batch.Queue(`INSERT INTO slots (id, room_id, kind, idx) VALUES ($1,$2,$3,$4)`,
			NewID(), roomID, SlotGuestCam, i)
	}
	return s.Pool.SendBatch(ctx, batch).Close()
}

func (s *Postgres) ListSlots(ctx context.Context, roomID string) ([]Slot, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, room_id, kind, idx, occupant_user_id, occupied_at
		 FROM slots WHERE room_id = $1 ORDER BY kind, idx`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		var sl Slot
		if err := rows.Scan(&sl.ID, &sl.RoomID, &sl.Kind, &sl.Index, &sl.OccupantUserID, &sl.OccupiedAt); err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *Postgres) SlotByOccupant(ctx context.Context, roomID, userID string) (*Slot, error) {
	var sl Slot
	err := s.Pool.QueryRow(ctx,
		`SELECT id, room_id, kind, idx, occupant_user_id, occupied_at
		 FROM slots WHERE room_id = $1 AND occupant_user_id = $2`, roomID, userID).
		Scan(&sl.ID, &sl.RoomID, &sl.Kind, &sl.Index, &sl.OccupantUserID, &sl.OccupiedAt)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &sl, nil
}

// ClaimSlot sets the occupant only if the slot is still free. Reports false
// when another claim won the race. ErrOccupantHeld surfaces when the user
// already holds a slot in the room (unique partial index).
func (s *Postgres) ClaimSlot(ctx context.Context, slotID, userID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE slots SET occupant_user_id = $1, occupied_at = now()
		 WHERE id = $2 AND occupant_user_id IS NULL`, userID, slotID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, ErrOccupantHeld
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseSlot clears the occupant only when it equals the caller, so a stale
// client cannot free someone else's position.
func (s *Postgres) ReleaseSlot(ctx context.Context, roomID, userID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE slots SET occupant_user_id = NULL, occupied_at = NULL
		 WHERE room_id = $1 AND occupant_user_id = $2`, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseAllSlots is the room-end sweep.
func (s *Postgres) ReleaseAllSlots(ctx context.Context, roomID string) (int, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE slots SET occupant_user_id = NULL, occupied_at = NULL
		 WHERE room_id = $1 AND occupant_user_id IS NOT NULL`, roomID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
