package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/identity"
	"github.com/jason-s-yu/coderoom/internal/judge"
	"github.com/jason-s-yu/coderoom/internal/models"
	"github.com/jason-s-yu/coderoom/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	room uuid.UUID
	user uuid.UUID
	ev   Event
}

// recorder is a Broadcaster that keeps everything it is asked to deliver.
type recorder struct {
	mu     sync.Mutex
	events []recorded
	subs   map[uuid.UUID]map[uuid.UUID]bool
}

func newRecorder() *recorder {
	return &recorder{subs: make(map[uuid.UUID]map[uuid.UUID]bool)}
}

func (r *recorder) Subscribe(roomID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[roomID] == nil {
		r.subs[roomID] = make(map[uuid.UUID]bool)
	}
	r.subs[roomID][userID] = true
}

func (r *recorder) Unsubscribe(roomID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[roomID], userID)
}

func (r *recorder) BroadcastRoom(roomID uuid.UUID, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{room: roomID, ev: ev})
}

func (r *recorder) SendToUser(userID uuid.UUID, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{user: userID, ev: ev})
}

// ofType returns the broadcast events of typ for roomID, in order.
func (r *recorder) ofType(roomID uuid.UUID, typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.room == roomID && e.ev.Type() == typ {
			out = append(out, e.ev)
		}
	}
	return out
}

func (r *recorder) toUser(userID uuid.UUID) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.user == userID {
			out = append(out, e.ev)
		}
	}
	return out
}

// fakeJudge serves one challenge whose answers are the sums of the inputs.
type fakeJudge struct {
	challenge judge.Challenge
	fail      atomic.Bool
	execs     atomic.Int32
}

func newFakeJudge() *fakeJudge {
	return &fakeJudge{challenge: judge.Challenge{
		Title:   "a-plus-b",
		Level:   1,
		Inputs:  []string{"1 2", "3 4"},
		Outputs: []string{"3", "7"},
	}}
}

var errJudgeDown = errors.New("judge down")

func (j *fakeJudge) Execute(_ context.Context, sub judge.Submission, input string) (judge.Execution, error) {
	j.execs.Add(1)
	if j.fail.Load() {
		return judge.Execution{}, errJudgeDown
	}
	if sub.Script != "correct" {
		return judge.Execution{Output: "0\n"}, nil
	}
	for i, in := range j.challenge.Inputs {
		if in == input {
			return judge.Execution{Output: j.challenge.Outputs[i] + "\n", StatusCode: "0"}, nil
		}
	}
	return judge.Execution{}, errors.New("unexpected input")
}

func (j *fakeJudge) RandomChallenge(context.Context, int) (judge.Challenge, error) {
	if j.fail.Load() {
		return judge.Challenge{}, errJudgeDown
	}
	return j.challenge, nil
}

func (j *fakeJudge) GetChallenge(_ context.Context, title string) (judge.Challenge, error) {
	if j.fail.Load() {
		return judge.Challenge{}, errJudgeDown
	}
	if title != j.challenge.Title {
		return judge.Challenge{}, errors.New("no such challenge")
	}
	return j.challenge, nil
}

type testEnv struct {
	svc      *Service
	store    *store.MemoryStore
	dir      *identity.MemoryDirectory
	presence *identity.MemoryPresence
	judge    *fakeJudge
	out      *recorder
}

func newTestEnv(t *testing.T, cfg ...Config) *testEnv {
	t.Helper()
	c := Config{LockTimeout: time.Second, TickInterval: time.Hour, RoundTicks: 10}
	if len(cfg) > 0 {
		c = cfg[0]
	}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	e := &testEnv{
		store:    store.NewMemoryStore(),
		dir:      identity.NewMemoryDirectory(),
		presence: identity.NewMemoryPresence(),
		judge:    newFakeJudge(),
		out:      newRecorder(),
	}
	e.svc = NewService(c, Deps{
		Store:       e.store,
		Directory:   e.dir,
		Presence:    e.presence,
		Judge:       e.judge,
		Broadcaster: e.out,
		Logger:      logger,
	})
	return e
}

// connect registers a new user and returns their session.
func (e *testEnv) connect(t *testing.T, nickname string) *Session {
	t.Helper()
	id := uuid.New()
	e.dir.Put(models.User{ID: id, Nickname: nickname, Level: 1})
	sess, err := e.svc.Connect(context.Background(), id, uuid.NewString())
	require.NoError(t, err)
	return sess
}

func (e *testEnv) create(t *testing.T, owner *Session, req CreateRequest) *Seat {
	t.Helper()
	seat, err := e.svc.CreateRoom(context.Background(), owner, req)
	require.NoError(t, err)
	return seat
}

func (e *testEnv) join(t *testing.T, sess *Session, title string) *Seat {
	t.Helper()
	seat, err := e.svc.JoinRoom(context.Background(), sess, title, "")
	require.NoError(t, err)
	return seat
}

func (e *testEnv) room(t *testing.T, id uuid.UUID) (*models.Room, *models.Membership) {
	t.Helper()
	r, err := e.store.GetRoom(context.Background(), id)
	require.NoError(t, err)
	m, err := e.store.GetMembership(context.Background(), id)
	require.NoError(t, err)
	return r, m
}

// assertConsistent checks the occupancy and ownership invariants.
func (e *testEnv) assertConsistent(t *testing.T, id uuid.UUID) {
	t.Helper()
	r, m := e.room(t, id)
	require.Equal(t, len(m.Occupied()), r.Occupancy, "occupancy must match seated members")
	require.LessOrEqual(t, r.Occupancy, r.Capacity)
	require.Equal(t, r.Occupancy < r.Capacity && r.Phase == models.PhaseWaiting, r.Accepting)
	owners := 0
	for _, i := range m.Occupied() {
		if m.Owner[i] {
			owners++
		}
	}
	require.Equal(t, 1, owners, "exactly one owner")
}
