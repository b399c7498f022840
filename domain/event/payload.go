package event

import (
	"bytes"
	"collab-realtime/domain"
	"collab-realtime/errors"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MessageID accepts both JSON strings and numbers, message ids come from
// the external store and their type is not ours to decide.
type MessageID string

func (m *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*m = MessageID(n.String())
	return nil
}

type RoomRef struct {
	RoomID string `json:"roomId" validate:"required"`
}

type SendPayload struct {
	RoomID  string          `json:"roomId" validate:"required"`
	Message json.RawMessage `json:"message"`
}

type EditPayload struct {
	RoomID    string          `json:"roomId" validate:"required"`
	MessageID MessageID       `json:"messageId" validate:"required"`
	Content   json.RawMessage `json:"content"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
}

type DeletePayload struct {
	RoomID    string    `json:"roomId" validate:"required"`
	MessageID MessageID `json:"messageId" validate:"required"`
}

type ReactPayload struct {
	RoomID    string          `json:"roomId" validate:"required"`
	MessageID MessageID       `json:"messageId" validate:"required"`
	Reaction  json.RawMessage `json:"reaction" validate:"required"`
	UserID    string          `json:"userId"`
}

type TypingPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Decode parses a raw frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", errors.ErrInvalidPayload)
	}
	return env, nil
}

// DecodePayload unmarshals and validates the data of an envelope.
// Partial payloads are rejected as a whole.
func DecodePayload[T any](data json.RawMessage) (T, error) {
	var payload T
	if len(bytes.TrimSpace(data)) == 0 {
		return payload, fmt.Errorf("%w: missing data", errors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return payload, nil
}

// DecodeIdentity reads the user:join payload.
func DecodeIdentity(data json.RawMessage) (domain.Identity, error) {
	return DecodePayload[domain.Identity](data)
}

// DecodeRoomRef reads room:join and room:leave payloads, which are either a
// bare JSON string or an object carrying roomId.
func DecodeRoomRef(data json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var roomID string
		if err := json.Unmarshal(trimmed, &roomID); err != nil {
			return "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		if err := validate.Var(roomID, "required"); err != nil {
			return "", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
		}
		return roomID, nil
	}
	ref, err := DecodePayload[RoomRef](data)
	if err != nil {
		return "", err
	}
	return ref.RoomID, nil
}

// ValidateRoomID checks the normalized room id against the configured bound.
func ValidateRoomID(room domain.RoomID, maxLength int) error {
	if room.IsZero() {
		return fmt.Errorf("%w: roomId is empty", errors.ErrInvalidPayload)
	}
	if err := validate.Var(string(room), fmt.Sprintf("max=%d", maxLength)); err != nil {
		return fmt.Errorf("%w: roomId %v", errors.ErrInvalidPayload, err)
	}
	return nil
}

func StartedTyping(room domain.RoomID, p TypingPayload) Typing {
	return Typing{Room: room, UserID: p.UserID, Email: p.Email, DisplayName: p.Name}
}

func StoppedTyping(room domain.RoomID, p TypingPayload) Typing {
	return Typing{Room: room, UserID: p.UserID, Email: p.Email, DisplayName: p.Name, stopped: true}
}
