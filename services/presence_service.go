package services

import (
	"collab-realtime/errors"
	"collab-realtime/infrastructure/storage"
	"fmt"
	"time"
)

type UserPresence struct {
	UserID      string     `json:"userId"`
	Online      bool       `json:"online"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

type ConnectionCounter interface {
	Connections(userID string) int
}

type IPresenceService interface {
	Lookup(userID string) (UserPresence, error)
}

// PresenceService answers "is this user here, and if not since when".
type PresenceService struct {
	counter    ConnectionCounter
	repository storage.IPresenceRepository
}

func NewPresenceService(counter ConnectionCounter, repository storage.IPresenceRepository) *PresenceService {
	return &PresenceService{counter: counter, repository: repository}
}

// Lookup returns errors.ErrUserNotFound for a user neither connected nor journaled.
func (s *PresenceService) Lookup(userID string) (UserPresence, error) {
	presence := UserPresence{UserID: userID, Connections: s.counter.Connections(userID)}
	presence.Online = presence.Connections > 0

	lastSeen, err := s.repository.LastSeen(userID)
	switch {
	case err == nil:
		presence.LastSeen = &lastSeen
	case errors.Is(err, errors.ErrUserNotFound):
		if !presence.Online {
			return UserPresence{}, err
		}
	default:
		return UserPresence{}, fmt.Errorf("presence lookup of %s: %w", userID, err)
	}
	return presence, nil
}
