// internal/models/projection.go
package models

// ProjectionKind discriminates the projection variants.
type ProjectionKind string

const (
	ProjectionStandard ProjectionKind = "standard"
	ProjectionTeam     ProjectionKind = "team"
)

// UserInfo is a resolved member with its slot flags.
type UserInfo struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Level     int    `json:"level"`
	Ready     bool   `json:"ready"`
	Owner     bool   `json:"owner"`
	Submitted bool   `json:"submitted"`
	Solved    bool   `json:"solved"`
	Reviewed  bool   `json:"reviewed"`
	Team      Team   `json:"team,omitempty"`
}

// SlotView is one entry of a projection: exactly one of Sentinel or User is set.
type SlotView struct {
	Sentinel SlotValue `json:"sentinel,omitempty"`
	User     *UserInfo `json:"user,omitempty"`
}

// TeamCounts carries per-side headcounts in team projections.
type TeamCounts struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Projection is the client-facing snapshot of a room. It is derived on demand and never stored.
type Projection struct {
	Kind      ProjectionKind `json:"kind"`
	Title     string         `json:"title"`
	Occupancy int            `json:"occupancy"`
	Capacity  int            `json:"capacity"`
	Mode      Mode           `json:"mode"`
	Phase     Phase          `json:"phase"`
	Level     int            `json:"level"`
	Private   bool           `json:"private"`
	Challenge string         `json:"challenge,omitempty"`
	Slots     []SlotView     `json:"slots"`

	// Teams is only populated for ProjectionTeam.
	Teams *TeamCounts `json:"teams,omitempty"`
}

// FirstPending returns the nickname of the lowest occupied slot whose flag is
// still false, or "" when every member has it set.
func (p *Projection) FirstPending(f Flag) string {
	for _, s := range p.Slots {
		if s.User == nil {
			continue
		}
		var v bool
		switch f {
		case FlagReviewed:
			v = s.User.Reviewed
		case FlagSubmitted:
			v = s.User.Submitted
		case FlagReady:
			v = s.User.Ready
		default:
			continue
		}
		if !v {
			return s.User.Nickname
		}
	}
	return ""
}
