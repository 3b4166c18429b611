// internal/room/events.go
package room

import (
	"github.com/jason-s-yu/coderoom/internal/models"
)

// Outbound event types.
const (
	EventRoomCreated       = "room-created"
	EventRoomStatusChanged = "room-status-changed"
	EventEnterRoom         = "enter-room"
	EventStart             = "start"
	EventTimer             = "timer"
	EventTimeout           = "timeout"
	EventFinishedGame      = "finishedGame"
	EventReviewFinished    = "reviewFinished"
	EventKicked            = "kicked"
)

// Winner values of finishedGame in team rooms.
const (
	WinnerA    = "A"
	WinnerB    = "B"
	WinnerDraw = "DRAW"
)

// Event is an outbound message: {"type": ..., fields...}.
type Event map[string]interface{}

// Type returns the event's type field.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

func statusChanged(p *models.Projection) Event {
	return Event{"type": EventRoomStatusChanged, "title": p.Title, "room": p}
}

func reviewStatus(p *models.Projection) Event {
	ev := statusChanged(p)
	ev["reviewer"] = p.FirstPending(models.FlagReviewed)
	return ev
}
