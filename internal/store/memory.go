// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/models"
)

type memoryEntry struct {
	room       *models.Room
	membership *models.Membership
}

// MemoryStore keeps rooms in process memory. It is the default store and the
// one used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]*memoryEntry
	byTitle map[string]uuid.UUID
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:   make(map[uuid.UUID]*memoryEntry),
		byTitle: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, r *models.Room, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byTitle[r.Title]; taken {
		return ErrDuplicateTitle
	}
	s.rooms[r.ID] = &memoryEntry{room: r.Clone(), membership: m.Clone()}
	s.byTitle[r.Title] = r.ID
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, id uuid.UUID) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return e.room.Clone(), nil
}

func (s *MemoryStore) FindRoomByTitle(_ context.Context, title string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTitle[title]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return s.rooms[id].room.Clone(), nil
}

// ListRooms returns every room, oldest first.
func (s *MemoryStore) ListRooms(_ context.Context) ([]*models.Room, error) {
	s.mu.RLock()
	out := make([]*models.Room, 0, len(s.rooms))
	for _, e := range s.rooms {
		out = append(out, e.room.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Title < out[j].Title
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	delete(s.byTitle, e.room.Title)
	delete(s.rooms, id)
	return nil
}

func (s *MemoryStore) GetMembership(_ context.Context, roomID uuid.UUID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return e.membership.Clone(), nil
}

// Mutate edits copies and swaps them in only when fn succeeds.
func (s *MemoryStore) Mutate(_ context.Context, roomID uuid.UUID, fn MutateFunc) (*models.Room, *models.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[roomID]
	if !ok {
		return nil, nil, ErrRoomNotFound
	}
	r, m := e.room.Clone(), e.membership.Clone()
	if err := fn(r, m); err != nil {
		return nil, nil, err
	}
	e.room, e.membership = r, m
	return r.Clone(), m.Clone(), nil
}
