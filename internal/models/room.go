// internal/models/room.go
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Visibility controls whether a room needs a password to join.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Mode selects how a round is scored.
type Mode string

const (
	ModeStudy       Mode = "STUDY"
	ModeCooperative Mode = "COOPERATIVE"
)

// Phase is the room-wide stage of the round state machine.
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhaseInRound  Phase = "IN_ROUND"
	PhaseInReview Phase = "IN_REVIEW"
)

var (
	// ErrRoomFull is returned when occupancy would exceed capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomEmpty is returned when occupancy would drop below zero.
	ErrRoomEmpty = errors.New("room is already empty")
	// ErrCapacityRange is returned when a capacity change leaves the 1..MaxSlots range
	// or falls below the current occupancy.
	ErrCapacityRange = errors.New("capacity out of range")
)

// Room is the durable record of a practice room.
type Room struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Capacity     int        `json:"capacity"`
	Visibility   Visibility `json:"visibility"`
	PasswordHash string     `json:"-"`
	Level        int        `json:"level"`
	Mode         Mode       `json:"mode"`
	Occupancy    int        `json:"occupancy"`
	Accepting    bool       `json:"accepting"`
	Phase        Phase      `json:"phase"`

	// Challenge is the title of the problem drawn when the current round started.
	Challenge string    `json:"challenge,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRoom builds a waiting room with a fresh id. Occupancy starts at zero; the
// creator is counted once they are seated.
func NewRoom(title string, capacity int, visibility Visibility, level int, mode Mode) *Room {
	r := &Room{
		ID:         uuid.New(),
		Title:      title,
		Capacity:   capacity,
		Visibility: visibility,
		Level:      level,
		Mode:       mode,
		Phase:      PhaseWaiting,
		CreatedAt:  time.Now().UTC(),
	}
	r.refreshAccepting()
	return r
}

// refreshAccepting re-derives the accepting flag from occupancy, capacity and phase.
func (r *Room) refreshAccepting() {
	r.Accepting = r.Occupancy < r.Capacity && r.Phase == PhaseWaiting
}

// IncrementOccupancy seats one more member, closing the room when it fills up.
func (r *Room) IncrementOccupancy() error {
	if r.Occupancy >= r.Capacity {
		return ErrRoomFull
	}
	r.Occupancy++
	r.refreshAccepting()
	return nil
}

// DecrementOccupancy frees one seat, reopening the room if it was full.
func (r *Room) DecrementOccupancy() error {
	if r.Occupancy <= 0 {
		return ErrRoomEmpty
	}
	r.Occupancy--
	r.refreshAccepting()
	return nil
}

// AdjustCapacity applies a lock/unlock delta to the effective capacity.
func (r *Room) AdjustCapacity(delta int) error {
	next := r.Capacity + delta
	if next < 1 || next > MaxSlots || next < r.Occupancy {
		return ErrCapacityRange
	}
	r.Capacity = next
	r.refreshAccepting()
	return nil
}

// SetPhase moves the room to p. Leaving IN_ROUND/IN_REVIEW clears the challenge.
func (r *Room) SetPhase(p Phase) {
	r.Phase = p
	if p == PhaseWaiting {
		r.Challenge = ""
	}
	r.refreshAccepting()
}

// IsPrivate reports whether joining requires a password.
func (r *Room) IsPrivate() bool {
	return r.Visibility == VisibilityPrivate
}

// Ratio is the fill ratio used by quick-join to prefer emptier rooms.
func (r *Room) Ratio() float64 {
	if r.Capacity == 0 {
		return 1
	}
	return float64(r.Occupancy) / float64(r.Capacity)
}

// Clone returns a copy safe to hand out of a store.
func (r *Room) Clone() *Room {
	c := *r
	return &c
}
