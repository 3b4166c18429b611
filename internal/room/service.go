// internal/room/service.go
package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/auth"
	"github.com/jason-s-yu/coderoom/internal/judge"
	"github.com/jason-s-yu/coderoom/internal/models"
	"github.com/jason-s-yu/coderoom/internal/store"
	"github.com/sirupsen/logrus"
)

const maxTitleLength = 64

// errStale aborts a mutation that turned out to be obsolete.
var errStale = errors.New("stale operation")

// Config tunes the engine.
type Config struct {
	LockTimeout  time.Duration
	TickInterval time.Duration
	RoundTicks   int
	// BackgroundTimeout bounds work the engine starts on its own, such as
	// expiring a round.
	BackgroundTimeout time.Duration
}

// Deps are the collaborators of a Service. Sink may be nil.
type Deps struct {
	Store       store.Store
	Directory   Directory
	Presence    Presence
	Judge       Judge
	Broadcaster Broadcaster
	Sink        EventSink
	Logger      *logrus.Logger
}

// Service implements every room operation. All mutations of a room go through
// its coordinator lock; projections, judge calls and broadcasts happen outside it.
type Service struct {
	store    store.Store
	coord    *Coordinator
	timers   *PhaseTimer
	proj     *Projector
	presence Presence
	judge    Judge
	out      Broadcaster
	sink     EventSink
	logger   *logrus.Logger
	bgTime   time.Duration
}

// NewService wires the engine.
func NewService(cfg Config, d Deps) *Service {
	if cfg.BackgroundTimeout <= 0 {
		cfg.BackgroundTimeout = 10 * time.Second
	}
	s := &Service{
		store:    d.Store,
		coord:    NewCoordinator(cfg.LockTimeout),
		timers:   NewPhaseTimer(cfg.TickInterval, cfg.RoundTicks),
		proj:     NewProjector(d.Store, d.Directory),
		presence: d.Presence,
		judge:    d.Judge,
		out:      d.Broadcaster,
		sink:     d.Sink,
		logger:   d.Logger,
		bgTime:   cfg.BackgroundTimeout,
	}
	s.timers.onTick = s.handleTick
	s.timers.onExpire = s.handleExpire
	return s
}

// Timers exposes the phase timer, mainly for inspection.
func (s *Service) Timers() *PhaseTimer { return s.timers }

// Projector exposes the projection builder.
func (s *Service) Projector() *Projector { return s.proj }

// CreateRequest describes a new room.
type CreateRequest struct {
	Title      string            `json:"title"`
	Capacity   int               `json:"capacity"`
	Visibility models.Visibility `json:"visibility"`
	Password   string            `json:"password,omitempty"`
	Level      int               `json:"level"`
	Mode       models.Mode       `json:"mode"`
}

func (req *CreateRequest) normalize() error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || utf8.RuneCountInString(req.Title) > maxTitleLength {
		return validationf("title must be 1-%d characters", maxTitleLength)
	}
	if req.Capacity < 1 || req.Capacity > models.MaxSlots {
		return validationf("capacity must be between 1 and %d", models.MaxSlots)
	}
	if req.Visibility == "" {
		req.Visibility = models.VisibilityPublic
	}
	switch req.Visibility {
	case models.VisibilityPublic:
		req.Password = ""
	case models.VisibilityPrivate:
		if req.Password == "" {
			return validationf("private rooms need a password")
		}
	default:
		return validationf("unknown visibility %q", req.Visibility)
	}
	if req.Mode == "" {
		req.Mode = models.ModeStudy
	}
	if req.Mode != models.ModeStudy && req.Mode != models.ModeCooperative {
		return validationf("unknown mode %q", req.Mode)
	}
	if req.Level < 0 {
		return validationf("level must not be negative")
	}
	return nil
}

// Seat is the result of entering a room.
type Seat struct {
	Slot int                `json:"slot"`
	Room *models.Projection `json:"room"`
}

// SubmitResult is returned to the submitter.
type SubmitResult struct {
	Solved    bool               `json:"quizResult"`
	Submitted bool               `json:"submitted"`
	Result    judge.Execution    `json:"result"`
	Room      *models.Projection `json:"room,omitempty"`
}

// Connect registers a freshly authenticated connection. A user who still holds
// a seat, e.g. after a dropped socket, resumes it.
func (s *Service) Connect(ctx context.Context, userID uuid.UUID, connID string) (*Session, error) {
	if err := s.presence.Register(ctx, userID, connID); err != nil {
		return nil, fmt.Errorf("%w: presence: %w", ErrCollaborator, err)
	}
	sess := &Session{UserID: userID, ConnID: connID, Slot: -1, State: StateAuthenticated}
	roomID, slot, err := s.locate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if slot >= 0 {
		sess.enter(roomID, slot)
		s.out.Subscribe(roomID, userID)
		s.logger.WithFields(logrus.Fields{"room": roomID, "user": userID, "slot": slot}).Info("seat resumed")
	}
	return sess, nil
}

// locate finds the seat userID holds, if any. Slot is -1 when there is none.
func (s *Service) locate(ctx context.Context, userID uuid.UUID) (uuid.UUID, int, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return uuid.Nil, -1, classify(err)
	}
	for _, r := range rooms {
		m, err := s.store.GetMembership(ctx, r.ID)
		if err != nil {
			continue
		}
		if i, err := m.FindSlotOf(userID); err == nil {
			return r.ID, i, nil
		}
	}
	return uuid.Nil, -1, nil
}

// ListRooms returns every room for the lobby listing.
func (s *Service) ListRooms(ctx context.Context) ([]*models.Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	return rooms, classify(err)
}

// CheckPassword is true for public rooms, false for private rooms without a
// candidate, and otherwise compares against the stored hash.
func (s *Service) CheckPassword(ctx context.Context, title, candidate string) (bool, error) {
	r, err := s.store.FindRoomByTitle(ctx, title)
	if err != nil {
		return false, classify(err)
	}
	return checkRoomPassword(r, candidate)
}

func checkRoomPassword(r *models.Room, candidate string) (bool, error) {
	if !r.IsPrivate() {
		return true, nil
	}
	if candidate == "" {
		return false, nil
	}
	return auth.CheckPassword(candidate, r.PasswordHash)
}

// CreateRoom creates a room with the caller seated in slot 0 as owner.
func (s *Service) CreateRoom(ctx context.Context, sess *Session, req CreateRequest) (*Seat, error) {
	if sess.InRoom() {
		return nil, conflictf("already in a room")
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}

	r := models.NewRoom(req.Title, req.Capacity, req.Visibility, req.Level, req.Mode)
	if r.IsPrivate() {
		hash, err := auth.HashPassword(req.Password, auth.RoomPasswordParams)
		if err != nil {
			return nil, fmt.Errorf("hash room password: %w", err)
		}
		r.PasswordHash = hash
	}
	var m *models.Membership
	if r.Mode == models.ModeCooperative {
		m = models.NewTeamMembership(r.ID, sess.UserID, r.Capacity)
	} else {
		m = models.NewMembership(r.ID, sess.UserID, r.Capacity)
	}
	if err := r.IncrementOccupancy(); err != nil {
		return nil, classify(err)
	}
	if err := s.store.CreateRoom(ctx, r, m); err != nil {
		return nil, classify(err)
	}

	sess.enter(r.ID, 0)
	s.out.Subscribe(r.ID, sess.UserID)
	s.logger.WithFields(logrus.Fields{"room": r.ID, "title": r.Title, "user": sess.UserID}).Info("room created")

	proj := s.project(ctx, r.ID)
	if proj != nil {
		s.broadcast(ctx, r.ID, Event{"type": EventRoomCreated, "title": r.Title, "room": proj})
	}
	return &Seat{Slot: 0, Room: proj}, nil
}

// JoinRoom seats the caller in the first open slot of the titled room.
func (s *Service) JoinRoom(ctx context.Context, sess *Session, title, password string) (*Seat, error) {
	if sess.InRoom() {
		return nil, conflictf("already in a room")
	}
	r, err := s.store.FindRoomByTitle(ctx, title)
	if err != nil {
		return nil, classify(err)
	}
	if !r.Accepting {
		return nil, conflictf("room %q is not accepting members", title)
	}
	ok, err := checkRoomPassword(r, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictf("password mismatch")
	}
	return s.join(ctx, sess, r.ID)
}

// QuickJoin picks the emptiest public room that is accepting members, oldest
// first on ties, and joins it.
func (s *Service) QuickJoin(ctx context.Context, sess *Session) (*Seat, error) {
	if sess.InRoom() {
		return nil, conflictf("already in a room")
	}
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, classify(err)
	}
	candidates := rooms[:0]
	for _, r := range rooms {
		if !r.IsPrivate() && r.Accepting {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Ratio() != b.Ratio() {
			return a.Ratio() < b.Ratio()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Title < b.Title
	})

	for _, r := range candidates {
		m, err := s.store.GetMembership(ctx, r.ID)
		if err != nil {
			continue
		}
		if _, err := m.FindSlotOf(sess.UserID); err == nil {
			return nil, conflictf("already seated in room %q", r.Title)
		}
		if _, err := m.FindEmptySlot(); err != nil {
			continue
		}
		seat, err := s.join(ctx, sess, r.ID)
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			// lost a race for the last seat or the room dissolved
			continue
		}
		return seat, err
	}
	return nil, fmt.Errorf("%w: no room with an open slot", ErrNotFound)
}

func (s *Service) join(ctx context.Context, sess *Session, roomID uuid.UUID) (*Seat, error) {
	slot := -1
	_, _, err := s.mutate(ctx, roomID, func(r *models.Room, m *models.Membership) error {
		if !r.Accepting {
			return conflictf("room %q is not accepting members", r.Title)
		}
		if _, err := m.FindSlotOf(sess.UserID); err == nil {
			return conflictf("already seated in room %q", r.Title)
		}
		var err error
		if r.Mode == models.ModeCooperative {
			slot, err = m.FindTeamSlot()
		} else {
			slot, err = m.FindEmptySlot()
		}
		if err != nil {
			return err
		}
		if err := m.SetSlot(slot, models.MemberSlot(sess.UserID)); err != nil {
			return err
		}
		if err := m.SetFlag(slot, models.FlagReady, false); err != nil {
			return err
		}
		// a room whose dissolve failed has no owner left
		m.PromoteNextOwner()
		return r.IncrementOccupancy()
	})
	if err != nil {
		return nil, err
	}

	sess.enter(roomID, slot)
	s.out.Subscribe(roomID, sess.UserID)
	s.logger.WithFields(logrus.Fields{"room": roomID, "user": sess.UserID, "slot": slot}).Info("member joined")

	proj := s.project(ctx, roomID)
	if proj != nil {
		s.send(sess.UserID, Event{"type": EventEnterRoom, "title": proj.Title, "slot": slot, "room": proj})
		s.broadcast(ctx, roomID, statusChanged(proj))
	}
	return &Seat{Slot: slot, Room: proj}, nil
}

// LeaveRoom frees the caller's slot. The last member out dissolves the room.
func (s *Service) LeaveRoom(ctx context.Context, sess *Session) error {
	if !sess.InRoom() {
		return conflictf("not in a room")
	}
	roomID := sess.RoomID
	err := s.leave(ctx, roomID, sess.UserID)
	sess.exit()
	s.out.Unsubscribe(roomID, sess.UserID)
	return err
}

// Disconnect runs the leave path for a dropped connection, unless the user has
// since connected elsewhere. Vanished rooms are not an error here.
func (s *Service) Disconnect(ctx context.Context, sess *Session) {
	defer func() { sess.State = StateTerminated }()
	log := s.logger.WithFields(logrus.Fields{"user": sess.UserID, "conn": sess.ConnID})

	current, err := s.presence.Release(ctx, sess.UserID, sess.ConnID)
	if err != nil {
		log.Warnf("presence release failed, leaving anyway: %v", err)
		current = true
	}
	if !current {
		log.Debug("stale disconnect ignored")
		return
	}
	if !sess.InRoom() {
		return
	}
	roomID := sess.RoomID
	err = s.leave(ctx, roomID, sess.UserID)
	sess.exit()
	s.out.Unsubscribe(roomID, sess.UserID)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, models.ErrRoomEmpty) {
		log.WithField("room", roomID).Warnf("leave on disconnect failed: %v", err)
	}
}

func (s *Service) leave(ctx context.Context, roomID, userID uuid.UUID) error {
	var (
		dissolved bool
		ended     bool
		review    bool
		reviewed  bool
		winner    string
	)
	_, _, err := s.mutate(ctx, roomID, func(r *models.Room, m *models.Membership) error {
		i, err := m.FindSlotOf(userID)
		if err != nil {
			return err
		}
		if err := m.SetSlot(i, models.SlotEmpty); err != nil {
			return err
		}
		if err := r.DecrementOccupancy(); err != nil {
			return err
		}
		if r.Occupancy == 0 {
			dissolved = true
			return nil
		}
		m.PromoteNextOwner()
		switch {
		case r.Phase == models.PhaseInRound && m.AllOccupied(models.FlagSubmitted):
			ended = true
			winner = roundWinner(r, m)
			review = endRound(r, m)
		case r.Phase == models.PhaseInReview && m.AllOccupied(models.FlagReviewed):
			reviewed = true
			finishReview(r, m)
		}
		return nil
	}, func(*models.Room, *models.Membership) error {
		if dissolved {
			s.timers.Cancel(roomID)
			return s.store.DeleteRoom(ctx, roomID)
		}
		if ended {
			s.timers.Cancel(roomID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log := s.logger.WithFields(logrus.Fields{"room": roomID, "user": userID})
	if dissolved {
		log.Info("last member left, room dissolved")
		return nil
	}
	log.Info("member left")
	proj := s.project(ctx, roomID)
	if proj == nil {
		return nil
	}
	switch {
	case ended:
		s.announceRoundEnd(ctx, roomID, proj, review, winner)
	case reviewed:
		s.broadcast(ctx, roomID, Event{"type": EventReviewFinished, "title": proj.Title, "room": proj})
	case proj.Phase == models.PhaseInReview:
		s.broadcast(ctx, roomID, reviewStatus(proj))
	default:
		s.broadcast(ctx, roomID, statusChanged(proj))
	}
	return nil
}

// Ready toggles the caller's ready flag and returns the new value.
func (s *Service) Ready(ctx context.Context, sess *Session) (bool, error) {
	if !sess.InRoom() {
		return false, conflictf("not in a room")
	}
	var ready bool
	_, _, err := s.mutate(ctx, sess.RoomID, func(r *models.Room, m *models.Membership) error {
		if r.Phase != models.PhaseWaiting {
			return conflictf("round in progress")
		}
		i, err := m.FindSlotOf(sess.UserID)
		if err != nil {
			return err
		}
		ready, err = m.ToggleFlag(i, models.FlagReady)
		return err
	})
	if err != nil {
		return false, err
	}
	s.broadcastStatus(ctx, sess.RoomID)
	return ready, nil
}

// LockUnlock toggles slot index between EMPTY and LOCKED. Owner only.
func (s *Service) LockUnlock(ctx context.Context, sess *Session, index int) (*models.Projection, error) {
	if !sess.InRoom() {
		return nil, conflictf("not in a room")
	}
	if index < 0 || index >= models.MaxSlots {
		return nil, validationf("slot index %d out of range", index)
	}
	_, _, err := s.mutate(ctx, sess.RoomID, func(r *models.Room, m *models.Membership) error {
		delta, err := m.LockUnlockSlot(index, sess.UserID)
		if err != nil {
			return err
		}
		return r.AdjustCapacity(delta)
	})
	if err != nil {
		return nil, err
	}
	return s.broadcastStatus(ctx, sess.RoomID), nil
}

// ChangeOwner hands ownership to the member at index. Only the current owner
// may do so.
func (s *Service) ChangeOwner(ctx context.Context, sess *Session, index int) (*models.Projection, error) {
	if !sess.InRoom() {
		return nil, conflictf("not in a room")
	}
	if index < 0 || index >= models.MaxSlots {
		return nil, validationf("slot index %d out of range", index)
	}
	_, _, err := s.mutate(ctx, sess.RoomID, func(r *models.Room, m *models.Membership) error {
		from, err := m.FindSlotOf(sess.UserID)
		if err != nil {
			return err
		}
		if !m.Owner[from] {
			return models.ErrNotOwner
		}
		if m.Slots[index].IsSentinel() {
			return fmt.Errorf("%w: slot %d", models.ErrNotMember, index)
		}
		return m.TransferOwner(from, index)
	})
	if err != nil {
		return nil, err
	}
	return s.broadcastStatus(ctx, sess.RoomID), nil
}

func checkStart(r *models.Room, m *models.Membership, caller uuid.UUID) error {
	if r.Phase != models.PhaseWaiting {
		return conflictf("room is not waiting")
	}
	i, err := m.FindSlotOf(caller)
	if err != nil {
		return err
	}
	if !m.Owner[i] {
		return models.ErrNotOwner
	}
	for _, j := range m.Occupied() {
		if j != i && !m.Ready[j] {
			return conflictf("not every member is ready")
		}
	}
	if r.Mode == models.ModeCooperative && !m.TeamsBalanced() {
		a, b := m.Headcount()
		return conflictf("teams are unbalanced (%d vs %d)", a, b)
	}
	return nil
}

// Start draws a challenge and begins the round. Owner only.
func (s *Service) Start(ctx context.Context, sess *Session) (*models.Projection, error) {
	if !sess.InRoom() {
		return nil, conflictf("not in a room")
	}
	roomID := sess.RoomID
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	m, err := s.store.GetMembership(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	if err := checkStart(r, m, sess.UserID); err != nil {
		return nil, classify(err)
	}

	ch, err := s.judge.RandomChallenge(ctx, r.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: draw challenge: %w", ErrCollaborator, err)
	}

	_, _, err = s.mutate(ctx, roomID, func(r *models.Room, m *models.Membership) error {
		if err := checkStart(r, m, sess.UserID); err != nil {
			return err
		}
		m.ResetRoundFlags()
		r.Challenge = ch.Title
		r.SetPhase(models.PhaseInRound)
		return nil
	}, func(*models.Room, *models.Membership) error {
		s.timers.Arm(roomID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"room": roomID, "challenge": ch.Title}).Info("round started")
	proj := s.project(ctx, roomID)
	if proj != nil {
		s.broadcast(ctx, roomID, Event{
			"type":      EventStart,
			"title":     proj.Title,
			"challenge": map[string]interface{}{"title": ch.Title, "level": ch.Level},
		})
		s.broadcast(ctx, roomID, statusChanged(proj))
	}
	return proj, nil
}

// Submit grades the caller's code and records the outcome. The judge is
// called without holding the room lock.
func (s *Service) Submit(ctx context.Context, sess *Session, sub judge.Submission) (*SubmitResult, error) {
	if !sess.InRoom() {
		return nil, conflictf("not in a room")
	}
	roomID := sess.RoomID
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	if r.Phase != models.PhaseInRound {
		return nil, conflictf("no round in progress")
	}
	m, err := s.store.GetMembership(ctx, roomID)
	if err != nil {
		return nil, classify(err)
	}
	i, err := m.FindSlotOf(sess.UserID)
	if err != nil {
		return nil, classify(err)
	}
	if m.Submitted[i] {
		return nil, conflictf("already submitted")
	}

	gaveUp := sub.Empty()
	var verdict judge.Verdict
	if !gaveUp {
		ch, err := s.judge.GetChallenge(ctx, r.Challenge)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch challenge: %w", ErrCollaborator, err)
		}
		verdict, err = judge.Grade(ctx, s.judge, ch, sub)
		if err != nil {
			return nil, fmt.Errorf("%w: grade: %w", ErrCollaborator, err)
		}
	}

	challenge := r.Challenge
	var (
		marked bool
		ended  bool
		review bool
		winner string
	)
	_, _, err = s.mutate(ctx, roomID, func(r *models.Room, m *models.Membership) error {
		if r.Phase != models.PhaseInRound || r.Challenge != challenge {
			return conflictf("round already ended")
		}
		i, err := m.FindSlotOf(sess.UserID)
		if err != nil {
			return err
		}
		if m.Submitted[i] {
			return conflictf("already submitted")
		}
		if r.Mode == models.ModeCooperative && !gaveUp && !verdict.Solved {
			// wrong answers do not use up the attempt in team rooms
			return errStale
		}
		m.Submitted[i] = true
		m.Solved[i] = verdict.Solved
		marked = true
		if m.AllOccupied(models.FlagSubmitted) {
			ended = true
			winner = roundWinner(r, m)
			review = endRound(r, m)
		}
		return nil
	}, func(*models.Room, *models.Membership) error {
		if ended {
			s.timers.Cancel(roomID)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		return nil, err
	}

	res := &SubmitResult{Solved: verdict.Solved, Submitted: marked, Result: verdict.Last}
	if !marked {
		return res, nil
	}
	s.logger.WithFields(logrus.Fields{"room": roomID, "user": sess.UserID, "solved": verdict.Solved}).Info("code submitted")
	proj := s.project(ctx, roomID)
	res.Room = proj
	if proj == nil {
		return res, nil
	}
	if ended {
		s.announceRoundEnd(ctx, roomID, proj, review, winner)
	} else {
		s.broadcast(ctx, roomID, statusChanged(proj))
	}
	return res, nil
}

// Review marks the caller as done reviewing. approve is kept in the event log.
func (s *Service) Review(ctx context.Context, sess *Session, approve bool) (*models.Projection, error) {
	if !sess.InRoom() {
		return nil, conflictf("not in a room")
	}
	roomID := sess.RoomID
	var finished bool
	_, _, err := s.mutate(ctx, roomID, func(r *models.Room, m *models.Membership) error {
		if r.Phase != models.PhaseInReview {
			return conflictf("room is not in review")
		}
		i, err := m.FindSlotOf(sess.UserID)
		if err != nil {
			return err
		}
		if m.Reviewed[i] {
			return conflictf("already reviewed")
		}
		m.Reviewed[i] = true
		if m.AllOccupied(models.FlagReviewed) {
			finished = true
			finishReview(r, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, roomID, Event{"type": "review", "user": sess.UserID.String(), "approve": approve})
	proj := s.project(ctx, roomID)
	if proj == nil {
		return nil, nil
	}
	if finished {
		s.broadcast(ctx, roomID, Event{"type": EventReviewFinished, "title": proj.Title, "room": proj})
	} else {
		s.broadcast(ctx, roomID, reviewStatus(proj))
	}
	return proj, nil
}

// ForceLeave tells the member at index to leave. Owner only; the membership
// itself is untouched until the kicked client leaves.
func (s *Service) ForceLeave(ctx context.Context, sess *Session, index int) error {
	if !sess.InRoom() {
		return conflictf("not in a room")
	}
	if index < 0 || index >= models.MaxSlots {
		return validationf("slot index %d out of range", index)
	}
	r, err := s.store.GetRoom(ctx, sess.RoomID)
	if err != nil {
		return classify(err)
	}
	m, err := s.store.GetMembership(ctx, sess.RoomID)
	if err != nil {
		return classify(err)
	}
	i, err := m.FindSlotOf(sess.UserID)
	if err != nil {
		return classify(err)
	}
	if !m.Owner[i] {
		return classify(models.ErrNotOwner)
	}
	target, ok := m.Slots[index].UserID()
	if !ok {
		return classify(fmt.Errorf("%w: slot %d", models.ErrNotMember, index))
	}
	if target == sess.UserID {
		return conflictf("cannot kick yourself")
	}
	s.send(target, Event{"type": EventKicked, "title": r.Title, "slot": index})
	s.record(ctx, sess.RoomID, Event{"type": EventKicked, "user": target.String(), "by": sess.UserID.String()})
	return nil
}

// TimerResync returns the count last broadcast for the caller's round.
func (s *Service) TimerResync(_ context.Context, sess *Session) (int, error) {
	if !sess.InRoom() {
		return 0, conflictf("not in a room")
	}
	n, ok := s.timers.Remaining(sess.RoomID)
	if !ok {
		return 0, conflictf("no round in progress")
	}
	return n, nil
}

func (s *Service) handleTick(roomID uuid.UUID, remaining int) {
	s.out.BroadcastRoom(roomID, Event{"type": EventTimer, "remaining": remaining})
}

func (s *Service) handleExpire(roomID uuid.UUID, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.bgTime)
	defer cancel()
	log := s.logger.WithField("room", roomID)

	var review bool
	_, _, err := s.mutate(ctx, roomID, func(r *models.Room, m *models.Membership) error {
		if !s.timers.Finish(roomID, gen) || r.Phase != models.PhaseInRound {
			return errStale
		}
		review = endRound(r, m)
		return nil
	})
	if errors.Is(err, errStale) {
		log.Debug("stale round expiry ignored")
		return
	}
	if err != nil {
		log.Errorf("round expiry failed: %v", err)
		return
	}

	log.WithField("review", review).Info("round timed out")
	proj := s.project(ctx, roomID)
	if proj == nil {
		return
	}
	ev := Event{"type": EventTimeout, "title": proj.Title, "review": review}
	if review {
		ev["reviewer"] = proj.FirstPending(models.FlagReviewed)
		ev["challenge"] = proj.Challenge
	}
	s.broadcast(ctx, roomID, ev)
	s.broadcast(ctx, roomID, statusChanged(proj))
}

func (s *Service) announceRoundEnd(ctx context.Context, roomID uuid.UUID, proj *models.Projection, review bool, winner string) {
	ev := Event{"type": EventFinishedGame, "title": proj.Title}
	if winner != "" {
		ev["winner"] = winner
	}
	s.broadcast(ctx, roomID, ev)
	if review {
		s.broadcast(ctx, roomID, reviewStatus(proj))
	} else {
		s.broadcast(ctx, roomID, statusChanged(proj))
	}
}

// endRound closes the round in place: review when at least one member has a
// solution to look at, otherwise straight back to waiting.
func endRound(r *models.Room, m *models.Membership) bool {
	if m.AnyOccupied(models.FlagSolved) {
		r.SetPhase(models.PhaseInReview)
		return true
	}
	m.ResetRoundFlags()
	r.SetPhase(models.PhaseWaiting)
	return false
}

func finishReview(r *models.Room, m *models.Membership) {
	m.ResetRoundFlags()
	r.SetPhase(models.PhaseWaiting)
}

// roundWinner compares solved counts per team. Study rooms have no winner.
func roundWinner(r *models.Room, m *models.Membership) string {
	if r.Mode != models.ModeCooperative {
		return ""
	}
	a, b := m.SolvedByTeam()
	switch {
	case a > b:
		return WinnerA
	case b > a:
		return WinnerB
	}
	return WinnerDraw
}

// mutate runs fn through the store under the room lock. Each onCommit hook
// runs after a successful commit, still under the lock.
func (s *Service) mutate(ctx context.Context, roomID uuid.UUID, fn store.MutateFunc, onCommit ...store.MutateFunc) (*models.Room, *models.Membership, error) {
	var (
		r *models.Room
		m *models.Membership
	)
	err := s.coord.WithRoom(ctx, roomID, func() error {
		var err error
		r, m, err = s.store.Mutate(ctx, roomID, fn)
		if err != nil {
			return err
		}
		for _, hook := range onCommit {
			if err := hook(r, m); err != nil {
				return err
			}
		}
		return nil
	})
	return r, m, classify(err)
}

func (s *Service) project(ctx context.Context, roomID uuid.UUID) *models.Projection {
	proj, found, err := s.proj.Project(ctx, roomID)
	if err != nil {
		s.logger.WithField("room", roomID).Warnf("projection failed: %v", err)
		return nil
	}
	if !found {
		return nil
	}
	return proj
}

func (s *Service) broadcastStatus(ctx context.Context, roomID uuid.UUID) *models.Projection {
	proj := s.project(ctx, roomID)
	if proj != nil {
		s.broadcast(ctx, roomID, statusChanged(proj))
	}
	return proj
}

func (s *Service) broadcast(ctx context.Context, roomID uuid.UUID, ev Event) {
	s.out.BroadcastRoom(roomID, ev)
	s.record(ctx, roomID, ev)
}

func (s *Service) send(userID uuid.UUID, ev Event) {
	s.out.SendToUser(userID, ev)
}

func (s *Service) record(ctx context.Context, roomID uuid.UUID, ev Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Record(ctx, roomID, ev); err != nil {
		s.logger.WithFields(logrus.Fields{"room": roomID, "event": ev.Type()}).Warnf("event log append failed: %v", err)
	}
}
