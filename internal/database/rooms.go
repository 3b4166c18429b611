// internal/database/rooms.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/coderoom/internal/models"
	"github.com/jason-s-yu/coderoom/internal/store"
)

const uniqueViolation = "23505"

const roomColumns = `id, title, capacity, visibility, password_hash, level, mode,
	occupancy, accepting, phase, challenge, created_at`

const membershipColumns = `room_id, slots, ready, owner, submitted, solved, reviewed`

// RoomStore keeps rooms and memberships in PostgreSQL. It implements store.Store.
type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

var _ store.Store = (*RoomStore)(nil)

func scanRoom(row pgx.Row) (*models.Room, error) {
	var r models.Room
	err := row.Scan(
		&r.ID, &r.Title, &r.Capacity, &r.Visibility, &r.PasswordHash, &r.Level, &r.Mode,
		&r.Occupancy, &r.Accepting, &r.Phase, &r.Challenge, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var roomID uuid.UUID
	var slots []string
	var ready, owner, submitted, solved, reviewed []bool
	err := row.Scan(&roomID, &slots, &ready, &owner, &submitted, &solved, &reviewed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(slots) != models.MaxSlots {
		return nil, fmt.Errorf("membership of room %s has %d slots", roomID, len(slots))
	}
	m := &models.Membership{RoomID: roomID}
	for i := range slots {
		m.Slots[i] = models.SlotValue(slots[i])
	}
	for _, f := range []struct {
		dst *[models.MaxSlots]bool
		src []bool
	}{
		{&m.Ready, ready}, {&m.Owner, owner}, {&m.Submitted, submitted},
		{&m.Solved, solved}, {&m.Reviewed, reviewed},
	} {
		if len(f.src) != models.MaxSlots {
			return nil, fmt.Errorf("membership of room %s has a short flag array", roomID)
		}
		copy(f.dst[:], f.src)
	}
	return m, nil
}

func membershipArgs(m *models.Membership) []interface{} {
	slots := make([]string, models.MaxSlots)
	for i, s := range m.Slots {
		slots[i] = string(s)
	}
	return []interface{}{
		m.RoomID, slots, m.Ready[:], m.Owner[:], m.Submitted[:], m.Solved[:], m.Reviewed[:],
	}
}

func roomArgs(r *models.Room) []interface{} {
	return []interface{}{
		r.ID, r.Title, r.Capacity, r.Visibility, r.PasswordHash, r.Level, r.Mode,
		r.Occupancy, r.Accepting, r.Phase, r.Challenge, r.CreatedAt,
	}
}

// CreateRoom inserts the room and its membership in one transaction.
func (s *RoomStore) CreateRoom(ctx context.Context, r *models.Room, m *models.Membership) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		q := `INSERT INTO rooms (` + roomColumns + `)
		      VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
		if _, err := tx.Exec(ctx, q, roomArgs(r)...); err != nil {
			return err
		}
		q = `INSERT INTO room_memberships (` + membershipColumns + `)
		     VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err := tx.Exec(ctx, q, membershipArgs(m)...)
		return err
	})
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrDuplicateTitle
	}
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

func (s *RoomStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

func (s *RoomStore) FindRoomByTitle(ctx context.Context, title string) (*models.Room, error) {
	return scanRoom(s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE title = $1`, title))
}

// ListRooms returns every room, oldest first.
func (s *RoomStore) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY created_at, title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRoom removes the room; the membership goes with it through the cascade.
func (s *RoomStore) DeleteRoom(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) GetMembership(ctx context.Context, roomID uuid.UUID) (*models.Membership, error) {
	return scanMembership(s.pool.QueryRow(ctx,
		`SELECT `+membershipColumns+` FROM room_memberships WHERE room_id = $1`, roomID))
}

// Mutate locks both rows, applies fn and writes them back in one transaction.
func (s *RoomStore) Mutate(ctx context.Context, roomID uuid.UUID, fn store.MutateFunc) (*models.Room, *models.Membership, error) {
	var (
		r *models.Room
		m *models.Membership
	)
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		r, err = scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, roomID))
		if err != nil {
			return err
		}
		m, err = scanMembership(tx.QueryRow(ctx,
			`SELECT `+membershipColumns+` FROM room_memberships WHERE room_id = $1 FOR UPDATE`, roomID))
		if err != nil {
			return err
		}
		if err := fn(r, m); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE rooms SET capacity = $2, occupancy = $3, accepting = $4, phase = $5, challenge = $6
			WHERE id = $1`,
			r.ID, r.Capacity, r.Occupancy, r.Accepting, r.Phase, r.Challenge)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE room_memberships
			SET slots = $2, ready = $3, owner = $4, submitted = $5, solved = $6, reviewed = $7
			WHERE room_id = $1`, membershipArgs(m)...)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return r, m, nil
}
