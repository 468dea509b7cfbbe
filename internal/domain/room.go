package domain

import "time"

type (
	RoomID string
	// ConnID identifies one transport session. A user may hold several.
	ConnID string
)

// Connection is the registry's view of a live transport session.
type Connection struct {
	ID        ConnID
	Identity  *Identity
	CreatedAt time.Time
}

// Identified reports whether the connection has presented a verified identity.
func (c Connection) Identified() bool { return c.Identity != nil }
