// Package domain contains core concepts of the realtime layer.
// This file defines Room identifiers and membership sets.
// A room has no lifecycle of its own: it exists while at least one connection is in it.
package domain

import (
	"sort"
	"strings"
)

type RoomID string

func NewRoomID(raw string) RoomID {
	return RoomID(strings.TrimSpace(raw))
}

func (r RoomID) IsZero() bool {
	return r == ""
}

// RoomSet is the set of rooms a connection has joined.
type RoomSet map[RoomID]struct{}

// Add reports whether the room was not already present.
func (s RoomSet) Add(room RoomID) bool {
	if _, ok := s[room]; ok {
		return false
	}
	s[room] = struct{}{}
	return true
}

// Remove reports whether the room was present.
func (s RoomSet) Remove(room RoomID) bool {
	if _, ok := s[room]; !ok {
		return false
	}
	delete(s, room)
	return true
}

func (s RoomSet) Contains(room RoomID) bool {
	_, ok := s[room]
	return ok
}

// Sorted returns the rooms in a stable order, mostly for logs and tests.
func (s RoomSet) Sorted() []RoomID {
	rooms := make([]RoomID, 0, len(s))
	for room := range s {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

func (s RoomSet) Clone() RoomSet {
	clone := make(RoomSet, len(s))
	for room := range s {
		clone[room] = struct{}{}
	}
	return clone
}
