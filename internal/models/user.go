package models

import "github.com/google/uuid"

// User is the read-only profile the room engine needs from the user directory.
type User struct {
	ID       uuid.UUID `json:"id"`
	Nickname string    `json:"nickname"`
	Level    int       `json:"level"`
	Online   bool      `json:"online"`
}
