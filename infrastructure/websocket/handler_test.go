package websocket

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	"collab-realtime/mocks"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testOptions() Options {
	return Options{
		SendBufferSize: 4,
		MaxFrameBytes:  1024,
		PongWait:       time.Second,
		WriteWait:      time.Second,
	}
}

func startServer(t *testing.T, hub contract.IHub, origins ...string) string {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	server := httptest.NewServer(NewHandler(log, hub, origins, testOptions()))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHandler_Frames_Reach_The_Hub_And_Disconnect_Follows(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockIHub(ctrl)
	submitted := make(chan event.Envelope, 1)
	disconnected := make(chan domain.ConnectionID, 1)

	hub.EXPECT().Connect(gomock.Any()).Return(domain.ConnectionID("c1"))
	hub.EXPECT().Submit(domain.ConnectionID("c1"), gomock.Any()).
		DoAndReturn(func(_ domain.ConnectionID, env event.Envelope) bool {
			submitted <- env
			return true
		}).Times(1)
	hub.EXPECT().Disconnect(domain.ConnectionID("c1")).
		Do(func(id domain.ConnectionID) {
			disconnected <- id
		})

	conn := dial(t, startServer(t, hub), nil)

	// When a malformed frame then a valid one are sent
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"room:join","data":"proj-42"}`)))

	// Then only the valid one is submitted
	select {
	case env := <-submitted:
		req.Equal(event.RoomJoin, env.Event)
		req.JSONEq(`"proj-42"`, string(env.Data))
	case <-time.After(time.Second):
		req.Fail("frame never submitted")
	}

	// And closing the socket disconnects the connection
	req.NoError(conn.Close())
	select {
	case id := <-disconnected:
		req.Equal(domain.ConnectionID("c1"), id)
	case <-time.After(2 * time.Second):
		req.Fail("disconnect never delivered")
	}
}

func TestHandler_Outbound_Events_Are_Written_As_Envelopes(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockIHub(ctrl)
	sinks := make(chan contract.EventSink, 1)

	hub.EXPECT().Connect(gomock.Any()).DoAndReturn(func(sink contract.EventSink) domain.ConnectionID {
		sinks <- sink
		return "c1"
	})
	hub.EXPECT().Disconnect(gomock.Any()).AnyTimes()

	conn := dial(t, startServer(t, hub), nil)
	sink := <-sinks

	// When the fan-out hands an event to the sink
	req.NoError(sink.Consume(context.Background(), event.NewMessage{
		Room:    "proj-42",
		Message: json.RawMessage(`{"text":"hi"}`),
	}))

	// Then the client reads the envelope
	req.NoError(conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, frame, err := conn.ReadMessage()
	req.NoError(err)
	req.JSONEq(`{"event":"message:new","data":{"roomId":"proj-42","message":{"text":"hi"}}}`, string(frame))

	// And closing the sink closes the socket
	sink.Close()
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestHandler_Rejects_Unknown_Origin(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockIHub(ctrl)
	hub.EXPECT().Connect(gomock.Any()).Times(0)
	url := startServer(t, hub, "https://app.example.com")

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}})
	req.Error(err)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestHandler_Oversized_Frame_Closes_Connection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	hub := mocks.NewMockIHub(ctrl)
	disconnected := make(chan struct{})
	hub.EXPECT().Connect(gomock.Any()).Return(domain.ConnectionID("c1"))
	hub.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(0)
	hub.EXPECT().Disconnect(domain.ConnectionID("c1")).
		Do(func(domain.ConnectionID) {
			close(disconnected)
		})

	conn := dial(t, startServer(t, hub), nil)
	payload := `{"event":"message:send","data":"` + strings.Repeat("x", 2048) + `"}`
	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte(payload)))

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		req.Fail("oversized frame did not close the connection")
	}
}

func TestClient_Consume(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	opts := testOptions()
	opts.SendBufferSize = 1
	client := newClient(log, nil, nil, opts)
	e := event.DeletedMessage{Room: "proj-42", MessageID: "1"}

	req.NoError(client.Consume(context.Background(), e))
	req.ErrorIs(client.Consume(context.Background(), e), errors.ErrSlowConsumer)

	client.Close()
	client.Close()
	req.ErrorIs(client.Consume(context.Background(), e), errors.ErrConnectionClosed)
}
