// Package event defines the wire events exchanged with clients.
// Inbound events are decoded from an Envelope, outbound events implement DomainEvent.
package event

import (
	"collab-realtime/domain"
	"encoding/json"
	"time"
)

type Name string

// Inbound, sent by clients.
const (
	UserJoin      Name = "user:join"
	RoomJoin      Name = "room:join"
	RoomLeave     Name = "room:leave"
	MessageSend   Name = "message:send"
	MessageEdit   Name = "message:edit"
	MessageDelete Name = "message:delete"
	MessageReact  Name = "message:react"
	TypingStart   Name = "typing:start"
	TypingStop    Name = "typing:stop"
)

// Outbound, produced by the router.
const (
	UserStatusChanged Name = "user:status"
	UserJoinedRoom    Name = "user:joined-room"
	UserLeftRoom      Name = "user:left-room"
	MessageNew        Name = "message:new"
	MessageUpdated    Name = "message:updated"
	MessageDeleted    Name = "message:deleted"
	MessageReaction   Name = "message:reaction"
	UserTyping        Name = "user:typing"
	UserStoppedTyping Name = "user:stopped-typing"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DomainEvent is anything the fanout can deliver.
// RoomID is empty for global events.
type DomainEvent interface {
	Name() Name
	RoomID() domain.RoomID
}

// Encode wraps the event in an Envelope ready to be written on a socket.
func Encode(e DomainEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: data})
}

// Encoded carries an outbound event along with its frame, so a fan-out to
// many connections encodes it once.
type Encoded struct {
	DomainEvent
	Frame []byte
}

// EncodeOnce wraps e with its frame.
func EncodeOnce(e DomainEvent) (Encoded, error) {
	frame, err := Encode(e)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{DomainEvent: e, Frame: frame}, nil
}

// Frame returns the frame of e, reusing the one an Encoded already carries.
func Frame(e DomainEvent) ([]byte, error) {
	if encoded, ok := e.(Encoded); ok {
		return encoded.Frame, nil
	}
	return Encode(e)
}

// Unwrap returns the event an Encoded carries, e itself otherwise.
func Unwrap(e DomainEvent) DomainEvent {
	if encoded, ok := e.(Encoded); ok {
		return encoded.DomainEvent
	}
	return e
}

// UserStatus is stamped when the router emits it. LastConnection is set on
// an offline status once the user holds no connection at all, which only
// differs from the status itself with per-connection presence.
type UserStatus struct {
	domain.Identity
	Status         domain.Status `json:"status"`
	At             time.Time     `json:"-"`
	LastConnection bool          `json:"-"`
}

func (UserStatus) Name() Name            { return UserStatusChanged }
func (UserStatus) RoomID() domain.RoomID { return "" }
func (u UserStatus) IsOffline() bool     { return u.Status == domain.StatusOffline }

type RoomPresence struct {
	domain.Identity
	Room   domain.RoomID `json:"roomId"`
	joined bool
}

func Joined(identity domain.Identity, room domain.RoomID) RoomPresence {
	return RoomPresence{Identity: identity, Room: room, joined: true}
}

func Left(identity domain.Identity, room domain.RoomID) RoomPresence {
	return RoomPresence{Identity: identity, Room: room}
}

func (r RoomPresence) Name() Name {
	if r.joined {
		return UserJoinedRoom
	}
	return UserLeftRoom
}

func (r RoomPresence) RoomID() domain.RoomID { return r.Room }

type NewMessage struct {
	Room    domain.RoomID   `json:"roomId"`
	Message json.RawMessage `json:"message"`
}

func (NewMessage) Name() Name              { return MessageNew }
func (m NewMessage) RoomID() domain.RoomID { return m.Room }

type UpdatedMessage struct {
	Room      domain.RoomID   `json:"roomId"`
	MessageID MessageID       `json:"messageId"`
	Content   json.RawMessage `json:"content,omitempty"`
	UpdatedAt json.RawMessage `json:"updatedAt,omitempty"`
}

func (UpdatedMessage) Name() Name              { return MessageUpdated }
func (m UpdatedMessage) RoomID() domain.RoomID { return m.Room }

type DeletedMessage struct {
	Room      domain.RoomID `json:"roomId"`
	MessageID MessageID     `json:"messageId"`
}

func (DeletedMessage) Name() Name              { return MessageDeleted }
func (m DeletedMessage) RoomID() domain.RoomID { return m.Room }

type Reaction struct {
	Room      domain.RoomID   `json:"roomId"`
	MessageID MessageID       `json:"messageId"`
	Reaction  json.RawMessage `json:"reaction"`
	UserID    string          `json:"userId,omitempty"`
}

func (Reaction) Name() Name              { return MessageReaction }
func (r Reaction) RoomID() domain.RoomID { return r.Room }

type Typing struct {
	Room        domain.RoomID `json:"roomId"`
	UserID      string        `json:"userId,omitempty"`
	Email       string        `json:"email,omitempty"`
	DisplayName string        `json:"name,omitempty"`
	stopped     bool
}

func (t Typing) Name() Name {
	if t.stopped {
		return UserStoppedTyping
	}
	return UserTyping
}

func (t Typing) RoomID() domain.RoomID { return t.Room }
