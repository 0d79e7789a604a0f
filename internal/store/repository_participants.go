package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// OpenParticipant inserts an open membership row. Reports false when the user
// already has an open row in the room, which makes repeated joins a no-op.
func (s *Postgres) OpenParticipant(ctx context.Context, p Participant) (bool, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	tag, err := s.Pool.Exec(ctx,
		`INSERT INTO participants (id, room_id, user_id, role, joined_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (room_id, user_id) WHERE left_at IS NULL DO NOTHING`,
		p.ID, p.RoomID, p.UserID, p.Role, p.JoinedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) GetOpenParticipant(ctx context.Context, roomID, userID string) (Participant, error) {
	var p Participant
	err := s.Pool.QueryRow(ctx,
		`SELECT id, room_id, user_id, role, joined_at, left_at, COALESCE(leave_reason,'')
		 FROM participants WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL`,
		roomID, userID).
		Scan(&p.ID, &p.RoomID, &p.UserID, &p.Role, &p.JoinedAt, &p.LeftAt, &p.LeaveReason)
	if err != nil {
		return p, mapNotFound(err)
	}
	return p, nil
}

// CloseParticipant stamps left_at on the open row. Reports false when no open
// row exists, so double leaves and sweep overlaps are harmless.
func (s *Postgres) CloseParticipant(ctx context.Context, roomID, userID, reason string) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE participants SET left_at = now(), leave_reason = $1
		 WHERE room_id = $2 AND user_id = $3 AND left_at IS NULL`,
		reason, roomID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) ListOpenParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, room_id, user_id, role, joined_at, left_at, COALESCE(leave_reason,'')
		 FROM participants WHERE room_id = $1 AND left_at IS NULL ORDER BY joined_at`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParticipants(rows)
}

// ListAllOpenParticipants feeds billing-tick recovery on process restart.
func (s *Postgres) ListAllOpenParticipants(ctx context.Context) ([]Participant, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT p.id, p.room_id, p.user_id, p.role, p.joined_at, p.left_at, COALESCE(p.leave_reason,'')
		 FROM participants p
		 JOIN rooms r ON r.id = p.room_id
		 WHERE p.left_at IS NULL AND r.status <> 'ended'
		 ORDER BY p.joined_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParticipants(rows)
}

func scanParticipants(rows pgx.Rows) ([]Participant, error) {
	var out []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.RoomID, &p.UserID, &p.Role, &p.JoinedAt, &p.LeftAt, &p.LeaveReason); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
