package e2e

import (
	"collab-realtime/domain/event"
	"collab-realtime/infrastructure/storage"
	"collab-realtime/internal"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type BaseWsSuite struct {
	suite.Suite
	Config         Config
	addr           string
	receiveTimeout time.Duration
	server         *httptest.Server
	db             *badger.DB
	app            *internal.App
	cancel         context.CancelFunc
}

// SetupSuite starts an in-process server unless SERVER_ADDR points to one.
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	s.receiveTimeout, err = time.ParseDuration(s.Config.ReceiveTimeout)
	s.Require().NoError(err)

	if s.Config.ServerAddr != "" {
		s.addr = s.Config.ServerAddr
		return
	}

	log := logs.GetLoggerFromLevel(slog.LevelWarn)
	s.db, err = storage.OpenBadger("")
	s.Require().NoError(err)
	s.app, err = internal.NewApp(log, internal.Config{
		BufferSize:           256,
		ConnectionBufferSize: 64,
		SlowConsumerPolicy:   "disconnect",
		RequireMembership:    true,
		MaxFrameBytes:        65536,
		MaxRoomIDLength:      128,
		PongWait:             10 * time.Second,
		WriteWait:            time.Second,
		RestartInterval:      100 * time.Millisecond,
		SinkTimeout:          time.Second,
		MetricInterval:       time.Second,
		ReportInterval:       time.Minute,
	}, s.db)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.app.Start(ctx)
	s.server = httptest.NewServer(s.app.Handler)
	s.addr = strings.TrimPrefix(s.server.URL, "http://")
}

func (s *BaseWsSuite) TearDownSuite() {
	if s.server == nil {
		return
	}
	s.server.Close()
	s.app.Stop()
	s.cancel()
	_ = s.db.Close()
}

func (s *BaseWsSuite) HTTPURL(path string) string {
	return "http://" + s.addr + path
}

// Step prints a colorized header for one scenario step.
func (s *BaseWsSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Peer is one test client socket.
type Peer struct {
	s    *BaseWsSuite
	name string
	conn *websocket.Conn
}

func (s *BaseWsSuite) Dial(name string) *Peer {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.addr+"/ws", nil)
	s.Require().NoError(err, "Failed to connect to "+s.addr)
	s.T().Cleanup(func() { _ = conn.Close() })
	return &Peer{s: s, name: name, conn: conn}
}

func (p *Peer) Emit(name event.Name, data any) {
	raw, err := json.Marshal(data)
	p.s.Require().NoError(err)
	p.s.Require().NoError(p.conn.WriteJSON(event.Envelope{Event: name, Data: raw}))
}

// Expect reads frames until one named name arrives, skipping the others.
func (p *Peer) Expect(name event.Name) json.RawMessage {
	return p.ExpectWhere(name, func(map[string]any) bool { return true })
}

// ExpectWhere is Expect restricted to payloads matching match.
func (p *Peer) ExpectWhere(name event.Name, match func(data map[string]any) bool) json.RawMessage {
	deadline := time.Now().Add(p.s.receiveTimeout)
	for {
		env, err := p.read(deadline)
		p.s.Require().NoError(err, "%s never received the expected %s", p.name, name)
		if env.Event != name {
			continue
		}
		var data map[string]any
		if json.Unmarshal(env.Data, &data) == nil && match(data) {
			return env.Data
		}
	}
}

// StatusOf matches the user:status of one user.
func StatusOf(userID, status string) func(map[string]any) bool {
	return func(data map[string]any) bool {
		return data["userId"] == userID && data["status"] == status
	}
}

// ExpectNothing fails if a frame named name arrives within wait.
// The read deadline it hits leaves the socket unusable, it must be the
// last read of the peer.
func (p *Peer) ExpectNothing(name event.Name, wait time.Duration) {
	deadline := time.Now().Add(wait)
	for {
		env, err := p.read(deadline)
		if err != nil {
			var netErr interface{ Timeout() bool }
			p.s.Require().ErrorAs(err, &netErr)
			p.s.Require().True(netErr.Timeout())
			return
		}
		p.s.Require().NotEqual(name, env.Event, "%s unexpectedly received %s", p.name, name)
	}
}

func (p *Peer) read(deadline time.Time) (event.Envelope, error) {
	var env event.Envelope
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return env, err
	}
	if err := p.conn.ReadJSON(&env); err != nil {
		return env, err
	}
	if p.s.Config.DebugJSON {
		p.s.T().Logf("%s <- %s %s", p.name, env.Event, string(env.Data))
	}
	return env, nil
}

// Join enters room and waits until the server has processed it: the echo of
// a marker message proves the membership is in place.
func (p *Peer) Join(room string) {
	p.Emit(event.RoomJoin, room)
	p.Emit(event.MessageSend, map[string]any{"roomId": room, "message": map[string]string{"sync": p.name}})
	p.ExpectWhere(event.MessageNew, func(data map[string]any) bool {
		message, ok := data["message"].(map[string]any)
		return ok && data["roomId"] == room && message["sync"] == p.name
	})
}

// TextMessage matches a message:new carrying {"text": text}.
func TextMessage(text string) func(map[string]any) bool {
	return func(data map[string]any) bool {
		message, ok := data["message"].(map[string]any)
		return ok && message["text"] == text
	}
}

// Close drops the socket without a close handshake, like a lost network.
func (p *Peer) Close() {
	_ = p.conn.Close()
}
