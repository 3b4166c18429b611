// internal/room/coordinator.go
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var errLockTimeout = errors.New("room lock timeout")

// roomLock is a one-slot semaphore. refs counts the holder plus every waiter so
// the entry can be dropped once nobody references it.
type roomLock struct {
	ch   chan struct{}
	refs int
}

// Coordinator serializes mutating operations per room. Rooms never block each
// other and a holder never takes a second room's lock.
type Coordinator struct {
	mu      sync.Mutex
	locks   map[uuid.UUID]*roomLock
	timeout time.Duration
}

// NewCoordinator returns a coordinator whose acquisitions give up after timeout.
func NewCoordinator(timeout time.Duration) *Coordinator {
	return &Coordinator{
		locks:   make(map[uuid.UUID]*roomLock),
		timeout: timeout,
	}
}

// WithRoom runs fn while holding roomID's lock. A timed-out acquisition is
// retried once before failing with ErrConcurrency. The lock is released on
// every return path, panics included.
func (c *Coordinator) WithRoom(ctx context.Context, roomID uuid.UUID, fn func() error) error {
	release, err := c.acquire(ctx, roomID)
	if errors.Is(err, errLockTimeout) {
		release, err = c.acquire(ctx, roomID)
	}
	if err != nil {
		if errors.Is(err, errLockTimeout) {
			return fmt.Errorf("%w: room %s", ErrConcurrency, roomID)
		}
		return err
	}
	defer release()
	return fn()
}

func (c *Coordinator) acquire(ctx context.Context, roomID uuid.UUID) (func(), error) {
	c.mu.Lock()
	l, ok := c.locks[roomID]
	if !ok {
		l = &roomLock{ch: make(chan struct{}, 1)}
		c.locks[roomID] = l
	}
	l.refs++
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			c.unref(roomID, l)
		}, nil
	case <-timer.C:
		c.unref(roomID, l)
		return nil, errLockTimeout
	case <-ctx.Done():
		c.unref(roomID, l)
		return nil, ctx.Err()
	}
}

func (c *Coordinator) unref(roomID uuid.UUID, l *roomLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, roomID)
	}
}

// Len reports how many rooms currently have a lock entry.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
