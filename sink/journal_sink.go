package sink

import (
	"collab-realtime/domain/event"
	"collab-realtime/infrastructure/storage"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// JournalSink records the moment users go offline.
// Registered as a permanent sink, it sees every outbound event and keeps
// only offline transitions that leave the user with no connection.
type JournalSink struct {
	log        *slog.Logger
	repository storage.IPresenceRepository
	now        func() time.Time
}

func NewJournalSink(log *slog.Logger, repository storage.IPresenceRepository) *JournalSink {
	return &JournalSink{log: log, repository: repository, now: time.Now}
}

// Consume journals the time the status was emitted, not the time it is read
// here. It gives up when ctx ends, the write itself still completes.
func (j *JournalSink) Consume(ctx context.Context, e event.DomainEvent) error {
	status, ok := e.(event.UserStatus)
	if !ok || !status.IsOffline() || !status.LastConnection {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to journal %s going offline: %w", status.UserID, err)
	}
	at := status.At
	if at.IsZero() {
		at = j.now()
	}

	done := make(chan error, 1)
	go func() { done <- j.repository.RecordLastSeen(status.UserID, at) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to journal %s going offline: %w", status.UserID, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("failed to journal %s going offline: %w", status.UserID, ctx.Err())
	}
	j.log.Debug("Journaled offline transition", "user_id", status.UserID, "at", at)
	return nil
}

func (j *JournalSink) Close() {}
