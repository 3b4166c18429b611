package models

import "github.com/google/uuid"

// Team identifies one side of a COOPERATIVE room.
type Team string

const (
	TeamA Team = "A"
	TeamB Team = "B"
)

// TeamSize is the number of slots per side: slots 0-4 play for A, 5-9 for B.
const TeamSize = MaxSlots / 2

// TeamOf returns the side slot i plays for.
func TeamOf(i int) Team {
	if i < TeamSize {
		return TeamA
	}
	return TeamB
}

// Headcount counts members per team.
func (m *Membership) Headcount() (a, b int) {
	for _, i := range m.Occupied() {
		if TeamOf(i) == TeamA {
			a++
		} else {
			b++
		}
	}
	return a, b
}

// TeamsBalanced reports whether both sides field the same, non-zero number of members.
func (m *Membership) TeamsBalanced() bool {
	a, b := m.Headcount()
	return a == b && a > 0
}

// SolvedByTeam counts solved members per team.
func (m *Membership) SolvedByTeam() (a, b int) {
	for _, i := range m.Occupied() {
		if !m.Solved[i] {
			continue
		}
		if TeamOf(i) == TeamA {
			a++
		} else {
			b++
		}
	}
	return a, b
}

// NewTeamMembership is NewMembership for COOPERATIVE rooms: the open seats are
// split across both sides, team A getting the odd one.
func NewTeamMembership(roomID, owner uuid.UUID, capacity int) *Membership {
	m := &Membership{RoomID: roomID}
	openA := (capacity + 1) / 2
	openB := capacity / 2
	for i := range m.Slots {
		switch {
		case i == 0:
			m.Slots[i] = MemberSlot(owner)
		case i < openA, i >= TeamSize && i < TeamSize+openB:
			m.Slots[i] = SlotEmpty
		default:
			m.Slots[i] = SlotLocked
		}
	}
	m.Owner[0] = true
	return m
}

// FindTeamSlot returns the lowest EMPTY slot on the side with fewer members,
// using the other side when that one has no seat left. Ties go to team A.
func (m *Membership) FindTeamSlot() (int, error) {
	a, b := m.Headcount()
	first, second := 0, TeamSize
	if b < a {
		first, second = TeamSize, 0
	}
	for _, start := range []int{first, second} {
		for i := start; i < start+TeamSize; i++ {
			if m.Slots[i] == SlotEmpty {
				return i, nil
			}
		}
	}
	return -1, ErrNoEmptySlot
}
