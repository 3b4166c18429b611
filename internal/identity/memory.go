// internal/identity/memory.go
package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/models"
)

// ErrUnknownUser is returned by Lookup for ids the directory has never seen.
var ErrUnknownUser = errors.New("unknown user")

// MemoryDirectory is an in-process user directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
}

func NewMemoryDirectory(users ...models.User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[uuid.UUID]models.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a profile.
func (d *MemoryDirectory) Put(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// UpsertUser is Put behind the registry signature shared with the database directory.
func (d *MemoryDirectory) UpsertUser(_ context.Context, u models.User) error {
	d.Put(u)
	return nil
}

func (d *MemoryDirectory) Lookup(_ context.Context, id uuid.UUID) (models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return models.User{}, ErrUnknownUser
	}
	return u, nil
}

func (d *MemoryDirectory) LookupMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[uuid.UUID]models.User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// MemoryPresence tracks the live connection id of each user in process.
type MemoryPresence struct {
	mu    sync.Mutex
	conns map[uuid.UUID]string
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{conns: make(map[uuid.UUID]string)}
}

// Register makes connID the user's current connection, superseding any older one.
func (p *MemoryPresence) Register(_ context.Context, userID uuid.UUID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[userID] = connID
	return nil
}

func (p *MemoryPresence) Release(_ context.Context, userID uuid.UUID, connID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[userID] != connID {
		return false, nil
	}
	delete(p.conns, userID)
	return true, nil
}

// Current returns the user's live connection id, if any.
func (p *MemoryPresence) Current(_ context.Context, userID uuid.UUID) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[userID]
	return c, ok, nil
}
