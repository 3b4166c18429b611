// internal/room/timer.go
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type countdown struct {
	gen       uint64
	remaining int
	current   int
	timer     *time.Timer
}

// PhaseTimer owns one countdown per room in IN_ROUND. Each tick reports the
// remaining count from ticks down to 0; the tick after 0 expires the round.
type PhaseTimer struct {
	mu       sync.Mutex
	rounds   map[uuid.UUID]*countdown
	gen      uint64
	interval time.Duration
	ticks    int

	onTick   func(roomID uuid.UUID, remaining int)
	onExpire func(roomID uuid.UUID, gen uint64)
}

// NewPhaseTimer builds a timer. Callbacks are installed by the owning service.
func NewPhaseTimer(interval time.Duration, ticks int) *PhaseTimer {
	return &PhaseTimer{
		rounds:   make(map[uuid.UUID]*countdown),
		interval: interval,
		ticks:    ticks,
		onTick:   func(uuid.UUID, int) {},
		onExpire: func(uuid.UUID, uint64) {},
	}
}

// Arm starts a fresh countdown for roomID, replacing any previous one, and
// returns its generation.
func (t *PhaseTimer) Arm(roomID uuid.UUID) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelUnsafe(roomID)
	t.gen++
	cd := &countdown{gen: t.gen, remaining: t.ticks, current: t.ticks}
	t.rounds[roomID] = cd
	t.scheduleUnsafe(roomID, cd)
	return cd.gen
}

func (t *PhaseTimer) scheduleUnsafe(roomID uuid.UUID, cd *countdown) {
	cd.timer = time.AfterFunc(t.interval, func() { t.fire(roomID, cd) })
}

func (t *PhaseTimer) fire(roomID uuid.UUID, cd *countdown) {
	t.mu.Lock()
	if t.rounds[roomID] != cd {
		// canceled or replaced while this callback was pending
		t.mu.Unlock()
		return
	}
	if cd.remaining < 0 {
		gen := cd.gen
		t.mu.Unlock()
		t.onExpire(roomID, gen)
		return
	}
	remaining := cd.remaining
	cd.current = remaining
	cd.remaining--
	t.scheduleUnsafe(roomID, cd)
	t.mu.Unlock()

	t.onTick(roomID, remaining)
}

// Finish claims the expiry of generation gen. It returns false when the
// countdown was canceled or re-armed in the meantime.
func (t *PhaseTimer) Finish(roomID uuid.UUID, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cd, ok := t.rounds[roomID]
	if !ok || cd.gen != gen {
		return false
	}
	delete(t.rounds, roomID)
	return true
}

// Cancel stops roomID's countdown. It reports whether one was running.
func (t *PhaseTimer) Cancel(roomID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelUnsafe(roomID)
}

func (t *PhaseTimer) cancelUnsafe(roomID uuid.UUID) bool {
	cd, ok := t.rounds[roomID]
	if !ok {
		return false
	}
	cd.timer.Stop()
	delete(t.rounds, roomID)
	return true
}

// Remaining returns the last count broadcast for roomID.
func (t *PhaseTimer) Remaining(roomID uuid.UUID) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cd, ok := t.rounds[roomID]
	if !ok {
		return 0, false
	}
	return cd.current, true
}

// Active reports whether roomID has a running countdown.
func (t *PhaseTimer) Active(roomID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rounds[roomID]
	return ok
}
