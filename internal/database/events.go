// internal/database/events.go
package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/coderoom/internal/cache"
)

// InsertRoomEventsTx appends a batch of history records inside tx.
func InsertRoomEventsTx(ctx context.Context, tx pgx.Tx, recs []cache.RoomEventRecord) error {
	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(`INSERT INTO room_events (room_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4)`,
			rec.RoomID, rec.EventType, []byte(rec.Payload), time.UnixMilli(rec.Timestamp).UTC())
	}
	return tx.SendBatch(ctx, batch).Close()
}

// CountRoomEvents returns how many history rows a room has.
func CountRoomEvents(ctx context.Context, pool *pgxpool.Pool, roomID uuid.UUID) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `SELECT count(*) FROM room_events WHERE room_id = $1`, roomID).Scan(&n)
	return n, err
}

// EventWriter persists history batches. It is the historian's sink.
type EventWriter struct {
	pool *pgxpool.Pool
}

func NewEventWriter(pool *pgxpool.Pool) *EventWriter {
	return &EventWriter{pool: pool}
}

// WriteBatch inserts recs in a single transaction.
func (w *EventWriter) WriteBatch(ctx context.Context, recs []cache.RoomEventRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return pgx.BeginTxFunc(ctx, w.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return InsertRoomEventsTx(ctx, tx, recs)
	})
}
