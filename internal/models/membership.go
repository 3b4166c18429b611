// internal/models/membership.go
package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxSlots is the fixed number of seats every room has, locked or not.
const MaxSlots = 10

// SlotValue is either a member's user id (in string form) or one of the sentinels.
type SlotValue string

const (
	SlotEmpty  SlotValue = "EMPTY"
	SlotLocked SlotValue = "LOCKED"
)

// MemberSlot encodes a user id as a slot value.
func MemberSlot(id uuid.UUID) SlotValue {
	return SlotValue(id.String())
}

// IsSentinel reports whether the slot holds EMPTY or LOCKED.
func (s SlotValue) IsSentinel() bool {
	return s == SlotEmpty || s == SlotLocked
}

// UserID decodes the member id, returning false for sentinels.
func (s SlotValue) UserID() (uuid.UUID, bool) {
	if s.IsSentinel() {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(string(s))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Flag names one of the per-slot boolean arrays.
type Flag string

const (
	FlagReady     Flag = "ready"
	FlagOwner     Flag = "owner"
	FlagSubmitted Flag = "submitted"
	FlagSolved    Flag = "solved"
	FlagReviewed  Flag = "reviewed"
)

var (
	ErrSlotIndex    = errors.New("slot index out of range")
	ErrNoEmptySlot  = errors.New("no empty slot")
	ErrNotMember    = errors.New("user does not occupy a slot")
	ErrSlotOccupied = errors.New("slot holds a member")
	ErrNotOwner     = errors.New("caller is not the room owner")
	ErrUnknownFlag  = errors.New("unknown flag")
	ErrSentinelFlag = errors.New("flags cannot be set on a sentinel slot")
)

// Membership is the per-room seat arena. All flag arrays are index-aligned with Slots.
type Membership struct {
	RoomID    uuid.UUID           `json:"roomId"`
	Slots     [MaxSlots]SlotValue `json:"slots"`
	Ready     [MaxSlots]bool      `json:"ready"`
	Owner     [MaxSlots]bool      `json:"owner"`
	Submitted [MaxSlots]bool      `json:"submitted"`
	Solved    [MaxSlots]bool      `json:"solved"`
	Reviewed  [MaxSlots]bool      `json:"reviewed"`
}

// NewMembership seats owner in slot 0, opens slots 1..capacity-1 and locks the rest.
func NewMembership(roomID, owner uuid.UUID, capacity int) *Membership {
	m := &Membership{RoomID: roomID}
	for i := range m.Slots {
		switch {
		case i == 0:
			m.Slots[i] = MemberSlot(owner)
		case i < capacity:
			m.Slots[i] = SlotEmpty
		default:
			m.Slots[i] = SlotLocked
		}
	}
	m.Owner[0] = true
	return m
}

func checkIndex(i int) error {
	if i < 0 || i >= MaxSlots {
		return fmt.Errorf("%w: %d", ErrSlotIndex, i)
	}
	return nil
}

func (m *Membership) flagArray(f Flag) (*[MaxSlots]bool, error) {
	switch f {
	case FlagReady:
		return &m.Ready, nil
	case FlagOwner:
		return &m.Owner, nil
	case FlagSubmitted:
		return &m.Submitted, nil
	case FlagSolved:
		return &m.Solved, nil
	case FlagReviewed:
		return &m.Reviewed, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, f)
}

// FindEmptySlot returns the lowest EMPTY index.
func (m *Membership) FindEmptySlot() (int, error) {
	for i, s := range m.Slots {
		if s == SlotEmpty {
			return i, nil
		}
	}
	return -1, ErrNoEmptySlot
}

// FindSlotOf returns the index holding id.
func (m *Membership) FindSlotOf(id uuid.UUID) (int, error) {
	want := MemberSlot(id)
	for i, s := range m.Slots {
		if s == want {
			return i, nil
		}
	}
	return -1, ErrNotMember
}

// SetSlot writes v at index i. Writing a sentinel clears every flag of the slot.
func (m *Membership) SetSlot(i int, v SlotValue) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	m.Slots[i] = v
	if v.IsSentinel() {
		m.clearFlags(i)
	}
	return nil
}

func (m *Membership) clearFlags(i int) {
	m.Ready[i] = false
	m.Owner[i] = false
	m.Submitted[i] = false
	m.Solved[i] = false
	m.Reviewed[i] = false
}

// SetFlag sets flag f of slot i.
func (m *Membership) SetFlag(i int, f Flag, v bool) error {
	if err := checkIndex(i); err != nil {
		return err
	}
	if m.Slots[i].IsSentinel() {
		return ErrSentinelFlag
	}
	arr, err := m.flagArray(f)
	if err != nil {
		return err
	}
	arr[i] = v
	return nil
}

// ToggleFlag flips flag f of slot i and returns the new value.
func (m *Membership) ToggleFlag(i int, f Flag) (bool, error) {
	if err := checkIndex(i); err != nil {
		return false, err
	}
	if m.Slots[i].IsSentinel() {
		return false, ErrSentinelFlag
	}
	arr, err := m.flagArray(f)
	if err != nil {
		return false, err
	}
	arr[i] = !arr[i]
	return arr[i], nil
}

// Flag reads flag f of slot i; sentinel slots always read false.
func (m *Membership) Flag(i int, f Flag) bool {
	if checkIndex(i) != nil || m.Slots[i].IsSentinel() {
		return false
	}
	arr, err := m.flagArray(f)
	if err != nil {
		return false
	}
	return arr[i]
}

// OwnerSlot returns the index of the owning member, or -1.
func (m *Membership) OwnerSlot() int {
	for i, s := range m.Slots {
		if !s.IsSentinel() && m.Owner[i] {
			return i
		}
	}
	return -1
}

// LockUnlockSlot toggles slot i between EMPTY and LOCKED on behalf of caller, who
// must own the room. It returns the capacity delta to apply to the Room.
func (m *Membership) LockUnlockSlot(i int, caller uuid.UUID) (int, error) {
	if err := checkIndex(i); err != nil {
		return 0, err
	}
	callerSlot, err := m.FindSlotOf(caller)
	if err != nil {
		return 0, err
	}
	if !m.Owner[callerSlot] {
		return 0, ErrNotOwner
	}
	switch m.Slots[i] {
	case SlotEmpty:
		m.Slots[i] = SlotLocked
		return -1, nil
	case SlotLocked:
		m.Slots[i] = SlotEmpty
		return 1, nil
	}
	return 0, ErrSlotOccupied
}

// TransferOwner moves ownership from slot `from` to slot `to`. Both must hold members.
func (m *Membership) TransferOwner(from, to int) error {
	if err := checkIndex(from); err != nil {
		return err
	}
	if err := checkIndex(to); err != nil {
		return err
	}
	if m.Slots[to].IsSentinel() || m.Slots[from].IsSentinel() {
		return ErrNotMember
	}
	m.Owner[from] = false
	m.Owner[to] = true
	return nil
}

// PromoteNextOwner hands ownership to the lowest occupied slot when nobody owns
// the room, e.g. after the owner left. It returns the new owner index or -1.
func (m *Membership) PromoteNextOwner() int {
	if i := m.OwnerSlot(); i >= 0 {
		return i
	}
	for i, s := range m.Slots {
		if !s.IsSentinel() {
			m.Owner[i] = true
			return i
		}
	}
	return -1
}

// ResetRoundFlags clears ready/submitted/solved/reviewed for every slot.
func (m *Membership) ResetRoundFlags() {
	for i := range m.Slots {
		m.Ready[i] = false
		m.Submitted[i] = false
		m.Solved[i] = false
		m.Reviewed[i] = false
	}
}

// Occupied returns the indexes holding members, in slot order.
func (m *Membership) Occupied() []int {
	out := make([]int, 0, MaxSlots)
	for i, s := range m.Slots {
		if !s.IsSentinel() {
			out = append(out, i)
		}
	}
	return out
}

// Members returns the member ids in slot order.
func (m *Membership) Members() []uuid.UUID {
	out := make([]uuid.UUID, 0, MaxSlots)
	for _, s := range m.Slots {
		if id, ok := s.UserID(); ok {
			out = append(out, id)
		}
	}
	return out
}

// AllOccupied reports whether flag f is set on every occupied slot. An empty
// membership reports false.
func (m *Membership) AllOccupied(f Flag) bool {
	occ := m.Occupied()
	if len(occ) == 0 {
		return false
	}
	for _, i := range occ {
		if !m.Flag(i, f) {
			return false
		}
	}
	return true
}

// AnyOccupied reports whether flag f is set on at least one occupied slot.
func (m *Membership) AnyOccupied(f Flag) bool {
	for _, i := range m.Occupied() {
		if m.Flag(i, f) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; the arrays are values so a struct copy suffices.
func (m *Membership) Clone() *Membership {
	c := *m
	return &c
}
