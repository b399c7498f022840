// Package domain contains core concepts of the realtime layer.
// This file defines the Identity handed over by the external identity provider.
// Identities are never verified here, only carried.
package domain

type Identity struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required"`
	Name   string `json:"name,omitempty"`
}

func (i Identity) SameUser(other Identity) bool {
	return i.UserID == other.UserID
}
