// internal/cache/events.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/room"
	"github.com/redis/go-redis/v9"
)

// RoomEventRecord is one entry of the room history queue.
type RoomEventRecord struct {
	RoomID    uuid.UUID       `json:"room_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// EncodeRecord serializes ev for the queue.
func EncodeRecord(roomID uuid.UUID, ev room.Event, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Type(), err)
	}
	return json.Marshal(RoomEventRecord{
		RoomID:    roomID,
		EventType: ev.Type(),
		Payload:   payload,
		Timestamp: at.UnixMilli(),
	})
}

// EventQueue appends room events to a Redis list. It implements room.EventSink.
type EventQueue struct {
	rdb   *redis.Client
	queue string
}

func NewEventQueue(rdb *redis.Client, queue string) *EventQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &EventQueue{rdb: rdb, queue: queue}
}

// Record pushes the event to the tail of the queue.
func (q *EventQueue) Record(ctx context.Context, roomID uuid.UUID, ev room.Event) error {
	data, err := EncodeRecord(roomID, ev, time.Now())
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}
