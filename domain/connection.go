// Package domain contains core concepts of the realtime layer.
// This file defines Connection records owned by the registry.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// Connection is one live transport session.
// Identity is nil until the client sends user:join.
type Connection struct {
	ID          ConnectionID
	Identity    *Identity
	Rooms       RoomSet
	ConnectedAt time.Time
}

func NewConnection(id ConnectionID, at time.Time) *Connection {
	return &Connection{
		ID:          id,
		Rooms:       make(RoomSet),
		ConnectedAt: at,
	}
}

func (c *Connection) HasIdentity() bool {
	return c.Identity != nil
}

// Snapshot returns a copy safe to hand out of the registry lock.
func (c *Connection) Snapshot() Connection {
	snapshot := Connection{
		ID:          c.ID,
		Rooms:       c.Rooms.Clone(),
		ConnectedAt: c.ConnectedAt,
	}
	if c.Identity != nil {
		identity := *c.Identity
		snapshot.Identity = &identity
	}
	return snapshot
}
