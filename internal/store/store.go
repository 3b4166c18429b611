// internal/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/models"
)

var (
	// ErrRoomNotFound means no room (or membership record) exists for the key.
	ErrRoomNotFound = errors.New("room not found")
	// ErrDuplicateTitle is returned by CreateRoom when the title is taken.
	ErrDuplicateTitle = errors.New("duplicate room title")
)

// MutateFunc edits a room and its membership in place. Returning an error aborts
// the write and leaves both records untouched.
type MutateFunc func(r *models.Room, m *models.Membership) error

// RoomStore is the durable record of rooms.
type RoomStore interface {
	// CreateRoom persists r together with its membership record in one step.
	CreateRoom(ctx context.Context, r *models.Room, m *models.Membership) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	FindRoomByTitle(ctx context.Context, title string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]*models.Room, error)
	// DeleteRoom removes the room and its membership.
	DeleteRoom(ctx context.Context, id uuid.UUID) error
}

// MembershipStore is the durable seat arena of each room.
type MembershipStore interface {
	GetMembership(ctx context.Context, roomID uuid.UUID) (*models.Membership, error)
}

// Store combines both stores and adds the atomic read-modify-write used by every
// mutating room operation.
type Store interface {
	RoomStore
	MembershipStore

	// Mutate loads the room and membership, applies fn and commits both, or
	// neither. Callers serialize Mutate per room through the room coordinator.
	Mutate(ctx context.Context, roomID uuid.UUID, fn MutateFunc) (*models.Room, *models.Membership, error)
}
