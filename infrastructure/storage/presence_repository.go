//go:generate go run go.uber.org/mock/mockgen -source=presence_repository.go -destination=../../mocks/mock_presence_repository.go -package=mocks
package storage

import (
	projecterrors "collab-realtime/errors"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const presencePrefix = "presence:"

type IPresenceRepository interface {
	RecordLastSeen(userID string, at time.Time) error
	LastSeen(userID string) (time.Time, error)
}

// PresenceRepository keeps the last offline transition of every user.
type PresenceRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewPresenceRepository(db *badger.DB, log *slog.Logger) *PresenceRepository {
	return &PresenceRepository{db: db, log: log}
}

func presenceKey(userID string) []byte {
	return []byte(presencePrefix + userID)
}

// RecordLastSeen overwrites the previous value, older timestamps are ignored.
func (p PresenceRepository) RecordLastSeen(userID string, at time.Time) error {
	data, err := proto.Marshal(timestamppb.New(at))
	if err != nil {
		return err
	}
	return p.db.Update(func(txn *badger.Txn) error {
		previous, err := readTimestamp(txn, userID)
		switch {
		case err == nil && previous.After(at):
			p.log.Debug("Ignoring older last seen", "user_id", userID, "at", at)
			return nil
		case err != nil && !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(presenceKey(userID), data)
	})
}

// LastSeen returns errors.ErrUserNotFound for a user never seen going offline.
func (p PresenceRepository) LastSeen(userID string) (time.Time, error) {
	var at time.Time
	err := p.db.View(func(txn *badger.Txn) error {
		var err error
		at, err = readTimestamp(txn, userID)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, projecterrors.ErrUserNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last seen of %s: %w", userID, err)
	}
	return at, nil
}

func readTimestamp(txn *badger.Txn, userID string) (time.Time, error) {
	item, err := txn.Get(presenceKey(userID))
	if err != nil {
		return time.Time{}, err
	}
	var ts timestamppb.Timestamp
	err = item.Value(func(v []byte) error {
		return proto.Unmarshal(v, &ts)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to unmarshal timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

type LastSeenEntry struct {
	UserID string
	At     time.Time
}

// All scans the whole journal, ordered by user id.
func (p PresenceRepository) All() ([]LastSeenEntry, error) {
	var entries []LastSeenEntry
	prefix := []byte(presencePrefix)
	err := p.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			userID := strings.TrimPrefix(string(item.Key()), presencePrefix)
			err := item.Value(func(v []byte) error {
				var ts timestamppb.Timestamp
				if err := proto.Unmarshal(v, &ts); err != nil {
					return fmt.Errorf("failed to unmarshal %s: %w", userID, err)
				}
				entries = append(entries, LastSeenEntry{UserID: userID, At: ts.AsTime()})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error during journal scan: %w", err)
	}
	return entries, nil
}

// OpenBadger opens the journal, in memory when path is empty.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	return badger.Open(opts)
}
