// internal/room/deps.go
package room

import (
	"context"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/judge"
	"github.com/jason-s-yu/coderoom/internal/models"
)

// Directory resolves user profiles for projections.
type Directory interface {
	// LookupMany returns the profiles it knows; unknown ids are simply absent.
	LookupMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
}

// Presence records which connection currently represents a user.
type Presence interface {
	Register(ctx context.Context, userID uuid.UUID, connID string) error
	// Release clears the record if it still names connID and reports whether it did.
	Release(ctx context.Context, userID uuid.UUID, connID string) (bool, error)
}

// Judge is the challenge catalogue and code runner.
type Judge interface {
	judge.Executor
	RandomChallenge(ctx context.Context, level int) (judge.Challenge, error)
	GetChallenge(ctx context.Context, title string) (judge.Challenge, error)
}

// Broadcaster delivers events to live connections. Implementations must not
// block the caller.
type Broadcaster interface {
	Subscribe(roomID, userID uuid.UUID)
	Unsubscribe(roomID, userID uuid.UUID)
	BroadcastRoom(roomID uuid.UUID, ev Event)
	SendToUser(userID uuid.UUID, ev Event)
}

// EventSink appends room events to the history log.
type EventSink interface {
	Record(ctx context.Context, roomID uuid.UUID, ev Event) error
}
