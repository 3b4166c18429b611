package hub

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(c *Conn) []room.Event {
	var out []room.Event
	for {
		select {
		case ev := <-c.OutChan:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	h := New(logrus.New())
	roomID := uuid.New()
	a := NewConn("a", uuid.New(), nil)
	b := NewConn("b", uuid.New(), nil)
	h.Register(a)
	h.Register(b)
	h.Subscribe(roomID, a.UserID)

	h.BroadcastRoom(roomID, room.Event{"type": room.EventTimer, "remaining": 3})
	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))

	h.Unsubscribe(roomID, a.UserID)
	assert.Zero(t, h.Subscribers(roomID))
	h.BroadcastRoom(roomID, room.Event{"type": room.EventTimer})
	assert.Empty(t, drain(a))
}

func TestSendToUserFollowsReconnect(t *testing.T) {
	h := New(logrus.New())
	user := uuid.New()
	old := NewConn("old", user, nil)
	assert.Nil(t, h.Register(old))

	fresh := NewConn("fresh", user, nil)
	prev := h.Register(fresh)
	require.NotNil(t, prev)
	assert.Equal(t, "old", prev.ID)

	h.Unregister(old)
	h.SendToUser(user, room.Event{"type": room.EventKicked})
	assert.Len(t, drain(fresh), 1, "unregistering a superseded conn keeps the new one")
	assert.Empty(t, drain(old))
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	h := New(logrus.New())
	c := NewConn("c", uuid.New(), nil)
	h.Register(c)
	for i := 0; i < OutQueueSize+5; i++ {
		h.SendToUser(c.UserID, room.Event{"type": room.EventTimer, "remaining": i})
	}
	assert.Len(t, drain(c), OutQueueSize)
}
