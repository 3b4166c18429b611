// internal/room/projection.go
package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/coderoom/internal/models"
	"github.com/jason-s-yu/coderoom/internal/store"
)

// Projector builds client snapshots. It never takes a room lock.
type Projector struct {
	store     store.Store
	directory Directory
}

// NewProjector wires a projector over st and dir.
func NewProjector(st store.Store, dir Directory) *Projector {
	return &Projector{store: st, directory: dir}
}

// Project returns the snapshot of roomID. found is false when the room or its
// membership no longer exists, which is not an error.
func (p *Projector) Project(ctx context.Context, roomID uuid.UUID) (*models.Projection, bool, error) {
	r, err := p.store.GetRoom(ctx, roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	m, err := p.store.GetMembership(ctx, roomID)
	if errors.Is(err, store.ErrRoomNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	proj, err := p.build(ctx, r, m)
	if err != nil {
		return nil, false, err
	}
	return proj, true, nil
}

func (p *Projector) build(ctx context.Context, r *models.Room, m *models.Membership) (*models.Projection, error) {
	users, err := p.directory.LookupMany(ctx, m.Members())
	if err != nil {
		return nil, fmt.Errorf("%w: user lookup: %w", ErrCollaborator, err)
	}

	team := r.Mode == models.ModeCooperative
	proj := &models.Projection{
		Kind:      models.ProjectionStandard,
		Title:     r.Title,
		Occupancy: r.Occupancy,
		Capacity:  r.Capacity,
		Mode:      r.Mode,
		Phase:     r.Phase,
		Level:     r.Level,
		Private:   r.IsPrivate(),
		Challenge: r.Challenge,
		Slots:     make([]models.SlotView, models.MaxSlots),
	}
	if team {
		a, b := m.Headcount()
		proj.Kind = models.ProjectionTeam
		proj.Teams = &models.TeamCounts{A: a, B: b}
	}

	for i, s := range m.Slots {
		id, ok := s.UserID()
		if !ok {
			proj.Slots[i] = models.SlotView{Sentinel: s}
			continue
		}
		u, known := users[id]
		if !known {
			u = models.User{ID: id, Nickname: "User_" + id.String()[:4]}
		}
		info := &models.UserInfo{
			ID:        id.String(),
			Nickname:  u.Nickname,
			Level:     u.Level,
			Ready:     m.Ready[i],
			Owner:     m.Owner[i],
			Submitted: m.Submitted[i],
			Solved:    m.Solved[i],
			Reviewed:  m.Reviewed[i],
		}
		if team {
			info.Team = models.TeamOf(i)
		}
		proj.Slots[i] = models.SlotView{User: info}
	}
	return proj, nil
}
