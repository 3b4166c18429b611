// internal/database/users.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/coderoom/internal/models"
)

// UserDirectory reads profiles from the users table.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// LookupMany fetches all requested profiles in a single query.
func (d *UserDirectory) LookupMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	out := make(map[uuid.UUID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := d.pool.Query(ctx,
		`SELECT id, nickname, level, online FROM users WHERE id = ANY($1::uuid[])`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.User, error) {
		var u models.User
		err := row.Scan(&u.ID, &u.Nickname, &u.Level, &u.Online)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// UpsertUser writes a profile, replacing an existing one with the same id.
func (d *UserDirectory) UpsertUser(ctx context.Context, u models.User) error {
	q := `INSERT INTO users (id, nickname, level, online) VALUES ($1, $2, $3, $4)
	      ON CONFLICT (id) DO UPDATE SET nickname = EXCLUDED.nickname, level = EXCLUDED.level, online = EXCLUDED.online`
	return pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, u.ID, u.Nickname, u.Level, u.Online)
		return err
	})
}

// SetOnline flips the stored online flag.
func (d *UserDirectory) SetOnline(ctx context.Context, id uuid.UUID, online bool) error {
	_, err := d.pool.Exec(ctx, `UPDATE users SET online = $2 WHERE id = $1`, id, online)
	return err
}
