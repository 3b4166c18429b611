// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/auth"
	"github.com/jason-s-yu/coderoom/internal/hub"
	"github.com/jason-s-yu/coderoom/internal/judge"
	"github.com/jason-s-yu/coderoom/internal/middleware"
	"github.com/jason-s-yu/coderoom/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	roomSubprotocol = "room"
	// maxMessageSize leaves room for submitted scripts.
	maxMessageSize = 1 << 20
	requestTimeout = 30 * time.Second
	pingInterval   = 30 * time.Second

	// per connection: sustained messages per second and burst
	messageRate  = 10
	messageBurst = 20
)

var (
	errSessionReplaced = errors.New("session replaced by a newer connection")
	errRateLimited     = errors.New("too many messages")
)

// errorCode extends room.Code with the gateway's own failures.
func errorCode(err error) string {
	if errors.Is(err, errRateLimited) {
		return "rate_limited"
	}
	return room.Code(err)
}

// RoomServer serves the room gateway and the room listing.
type RoomServer struct {
	logger *logrus.Logger
	svc    *room.Service
	hub    *hub.Hub
	tokens *auth.Tokens
}

func NewRoomServer(logger *logrus.Logger, svc *room.Service, h *hub.Hub, tokens *auth.Tokens) *RoomServer {
	return &RoomServer{logger: logger, svc: svc, hub: h, tokens: tokens}
}

// inbound is the union of every client message shape.
type inbound struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`

	room.CreateRequest
	Index        *int   `json:"index,omitempty"`
	Script       string `json:"script,omitempty"`
	Language     string `json:"language,omitempty"`
	VersionIndex int    `json:"versionIndex,omitempty"`
}

func (m inbound) index() (int, error) {
	if m.Index == nil {
		return 0, fmt.Errorf("%w: %s needs an index", room.ErrValidation, m.Type)
	}
	return *m.Index, nil
}

// RoomWSHandler upgrades to the room protocol. The connection is authenticated
// once, up front; a bad credential closes it with InvalidAuthTokenError.
func (s *RoomServer) RoomWSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{roomSubprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			s.logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")
		c.SetReadLimit(maxMessageSize)

		if c.Subprotocol() != roomSubprotocol {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}

		userID, err := s.tokens.Verify(requestToken(r))
		if err != nil {
			s.logger.WithField("remote", r.RemoteAddr).Warnf("authentication failed: %v", err)
			c.Close(InvalidAuthTokenError, "invalid auth token")
			return
		}
		if userID == uuid.Nil {
			c.Close(InvalidUserIDError, "invalid user id")
			return
		}

		connID := uuid.NewString()
		ctx, cancel := context.WithCancelCause(r.Context())
		defer cancel(nil)

		sess, err := s.svc.Connect(ctx, userID, connID)
		if err != nil {
			s.logger.WithField("user", userID).Errorf("connect failed: %v", err)
			c.Close(websocket.StatusInternalError, "presence unavailable")
			return
		}
		conn := hub.NewConn(connID, userID, func() { cancel(errSessionReplaced) })
		if old := s.hub.Register(conn); old != nil {
			old.Cancel()
		}
		middleware.LogWebSocketConnect(s.logger, r, userID, connID)

		go s.writePump(ctx, c, conn)
		readErr := s.readPump(ctx, c, conn, sess)

		// cleanup must outlive the request context
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), requestTimeout)
		s.svc.Disconnect(cleanupCtx, sess)
		cleanupCancel()
		s.hub.Unregister(conn)
		middleware.LogWebSocketDisconnect(s.logger, r, userID, connID, readErr)

		if errors.Is(context.Cause(ctx), errSessionReplaced) {
			c.Close(SessionReplacedError, "session replaced")
			return
		}
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump handles messages in arrival order until the socket closes. It
// returns the read error unless the close was a normal one.
func (s *RoomServer) readPump(ctx context.Context, c *websocket.Conn, conn *hub.Conn, sess *room.Session) error {
	log := s.logger.WithFields(logrus.Fields{"user": conn.UserID, "conn": conn.ID})
	limiter := rate.NewLimiter(messageRate, messageBurst)
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", typ)
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(conn, msg, nil, fmt.Errorf("%w: invalid JSON: %v", room.ErrValidation, err))
			continue
		}
		if !limiter.Allow() {
			s.reply(conn, msg, nil, errRateLimited)
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		payload, err := s.dispatch(reqCtx, sess, msg)
		cancel()
		if err != nil {
			log.WithFields(logrus.Fields{"event": msg.Type, "code": errorCode(err)}).Debugf("request failed: %v", err)
		}
		s.reply(conn, msg, payload, err)
	}
}

// dispatch runs one inbound event against the session.
func (s *RoomServer) dispatch(ctx context.Context, sess *room.Session, msg inbound) (interface{}, error) {
	switch msg.Type {
	case "create-room":
		return s.svc.CreateRoom(ctx, sess, msg.CreateRequest)
	case "join-room":
		return s.svc.JoinRoom(ctx, sess, msg.Title, msg.Password)
	case "quick-join":
		return s.svc.QuickJoin(ctx, sess)
	case "leave-room":
		return nil, s.svc.LeaveRoom(ctx, sess)
	case "ready":
		ready, err := s.svc.Ready(ctx, sess)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"ready": ready}, nil
	case "lockunlock":
		i, err := msg.index()
		if err != nil {
			return nil, err
		}
		return s.svc.LockUnlock(ctx, sess, i)
	case "change-owner":
		i, err := msg.index()
		if err != nil {
			return nil, err
		}
		return s.svc.ChangeOwner(ctx, sess, i)
	case "start":
		return s.svc.Start(ctx, sess)
	case "submitCode":
		return s.svc.Submit(ctx, sess, judge.Submission{
			Script:       msg.Script,
			Language:     msg.Language,
			VersionIndex: msg.VersionIndex,
		})
	case "reviewUser":
		return s.svc.Review(ctx, sess, true)
	case "reviewPass":
		return s.svc.Review(ctx, sess, false)
	case "forceLeave":
		i, err := msg.index()
		if err != nil {
			return nil, err
		}
		return nil, s.svc.ForceLeave(ctx, sess, i)
	case "timer":
		n, err := s.svc.TimerResync(ctx, sess)
		if err != nil {
			return nil, err
		}
		return map[string]int{"remaining": n}, nil
	}
	return nil, fmt.Errorf("%w: unknown event type %q", room.ErrValidation, msg.Type)
}

// reply queues the ack for msg.
func (s *RoomServer) reply(conn *hub.Conn, msg inbound, payload interface{}, err error) {
	ack := room.Event{"type": "ack", "event": msg.Type, "success": err == nil}
	if msg.RequestID != "" {
		ack["requestId"] = msg.RequestID
	}
	if err != nil {
		ack["payload"] = map[string]string{"code": errorCode(err), "message": err.Error()}
	} else if payload != nil {
		ack["payload"] = payload
	}
	if !conn.Write(ack) {
		s.logger.WithFields(logrus.Fields{"user": conn.UserID, "event": msg.Type}).Warn("out queue full, ack dropped")
	}
}

func (s *RoomServer) writePump(ctx context.Context, c *websocket.Conn, conn *hub.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-conn.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Warnf("failed to marshal outgoing %s for user %v: %v", msg.Type(), conn.UserID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				s.logger.Warnf("failed to write to websocket for user %v: %v", conn.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				s.logger.Warnf("ping to user %v failed, assuming disconnect: %v", conn.UserID, err)
				return
			}
		}
	}
}

// ListRoomsHandler serves GET /rooms: every room with its seat counts.
func (s *RoomServer) ListRoomsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rooms, err := s.svc.ListRooms(r.Context())
		if err != nil {
			s.logger.Errorf("list rooms: %v", err)
			http.Error(w, "failed to list rooms", http.StatusInternalServerError)
			return
		}
		out := make([]roomSummary, 0, len(rooms))
		for _, rm := range rooms {
			out = append(out, roomSummary{
				Title:      rm.Title,
				Occupancy:  rm.Occupancy,
				Capacity:   rm.Capacity,
				Visibility: string(rm.Visibility),
				Mode:       string(rm.Mode),
				Level:      rm.Level,
				Phase:      string(rm.Phase),
				Accepting:  rm.Accepting,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

type roomSummary struct {
	Title      string `json:"title"`
	Occupancy  int    `json:"occupancy"`
	Capacity   int    `json:"capacity"`
	Visibility string `json:"visibility"`
	Mode       string `json:"mode"`
	Level      int    `json:"level"`
	Phase      string `json:"phase"`
	Accepting  bool   `json:"accepting"`
}
