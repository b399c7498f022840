package event

import (
	"collab-realtime/domain"
	"collab-realtime/errors"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRoomRef(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{"Bare string", `"proj-42"`, "proj-42", false},
		{"Object", `{"roomId":"proj-42"}`, "proj-42", false},
		{"Empty string", `""`, "", true},
		{"Object without roomId", `{"room":"proj-42"}`, "", true},
		{"Number", `42`, "", true},
		{"Missing data", ``, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, err := DecodeRoomRef(json.RawMessage(tt.data))
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrInvalidPayload)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestDecodeIdentity_Requires_UserID_And_Email(t *testing.T) {
	req := require.New(t)

	identity, err := DecodeIdentity(json.RawMessage(`{"userId":"u1","email":"alice@example.com","name":"Alice"}`))
	req.NoError(err)
	req.Equal(domain.Identity{UserID: "u1", Email: "alice@example.com", Name: "Alice"}, identity)

	_, err = DecodeIdentity(json.RawMessage(`{"email":"alice@example.com"}`))
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestDecodePayload_MessageID_Accepts_Numbers(t *testing.T) {
	req := require.New(t)

	payload, err := DecodePayload[DeletePayload](json.RawMessage(`{"roomId":"proj-42","messageId":1234}`))
	req.NoError(err)
	req.Equal(MessageID("1234"), payload.MessageID)

	payload, err = DecodePayload[DeletePayload](json.RawMessage(`{"roomId":"proj-42","messageId":"m-1"}`))
	req.NoError(err)
	req.Equal(MessageID("m-1"), payload.MessageID)

	_, err = DecodePayload[DeletePayload](json.RawMessage(`{"roomId":"proj-42","messageId":true}`))
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestDecode_Rejects_Missing_Event(t *testing.T) {
	_, err := Decode([]byte(`{"data":{}}`))
	require.ErrorIs(t, err, errors.ErrInvalidPayload)

	_, err = Decode([]byte(`not json`))
	require.ErrorIs(t, err, errors.ErrInvalidPayload)
}

func TestValidateRoomID_Length(t *testing.T) {
	req := require.New(t)
	req.NoError(ValidateRoomID("proj-42", 8))
	req.ErrorIs(ValidateRoomID("proj-4242", 8), errors.ErrInvalidPayload)
	req.ErrorIs(ValidateRoomID("", 8), errors.ErrInvalidPayload)
	req.ErrorContains(ValidateRoomID(domain.NewRoomID("   "), 8), "roomId is empty")
}

func TestEncode_Flattens_Identity(t *testing.T) {
	req := require.New(t)
	identity := domain.Identity{UserID: "u1", Email: "alice@example.com"}

	frame, err := Encode(Left(identity, "proj-42"))
	req.NoError(err)

	var env Envelope
	req.NoError(json.Unmarshal(frame, &env))
	req.Equal(UserLeftRoom, env.Event)
	req.JSONEq(`{"userId":"u1","email":"alice@example.com","roomId":"proj-42"}`, string(env.Data))
}

func TestTyping_Names(t *testing.T) {
	payload := TypingPayload{RoomID: "proj-42", UserID: "u1"}
	require.Equal(t, UserTyping, StartedTyping("proj-42", payload).Name())
	require.Equal(t, UserStoppedTyping, StoppedTyping("proj-42", payload).Name())
}
