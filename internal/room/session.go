// internal/room/session.go
package room

import "github.com/google/uuid"

// SessionState tracks where a connection is in the protocol.
type SessionState string

const (
	StateUnauthenticated SessionState = "UNAUTHENTICATED"
	StateAuthenticated   SessionState = "AUTHENTICATED"
	StateInRoom          SessionState = "IN_ROOM"
	StateTerminated      SessionState = "TERMINATED"
)

// Session is per-connection state. It is owned by the connection's reader
// goroutine and never shared.
type Session struct {
	UserID uuid.UUID
	ConnID string
	RoomID uuid.UUID
	Slot   int
	State  SessionState
}

// InRoom reports whether the session is seated somewhere.
func (s *Session) InRoom() bool {
	return s.RoomID != uuid.Nil
}

func (s *Session) enter(roomID uuid.UUID, slot int) {
	s.RoomID = roomID
	s.Slot = slot
	s.State = StateInRoom
}

func (s *Session) exit() {
	s.RoomID = uuid.Nil
	s.Slot = -1
	if s.State != StateTerminated {
		s.State = StateAuthenticated
	}
}
