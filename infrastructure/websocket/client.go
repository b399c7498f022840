package websocket

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Options struct {
	SendBufferSize int
	MaxFrameBytes  int64
	PongWait       time.Duration
	WriteWait      time.Duration
}

func (o Options) pingPeriod() time.Duration {
	return o.PongWait * 9 / 10
}

// Client is the sink of one socket. Events are queued by the fan-out and
// written by writePump, the only goroutine allowed to write on conn.
type Client struct {
	log       *slog.Logger
	conn      *websocket.Conn
	hub       contract.IHub
	id        domain.ConnectionID
	send      chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
	opts      Options
}

func newClient(log *slog.Logger, conn *websocket.Conn, hub contract.IHub, opts Options) *Client {
	return &Client{
		log:  log,
		conn: conn,
		hub:  hub,
		send: make(chan event.DomainEvent, opts.SendBufferSize),
		done: make(chan struct{}),
		opts: opts,
	}
}

// Consume never blocks: a full queue is reported as a slow consumer.
func (c *Client) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- e:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// Close asks the writer to send a close frame and drop the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case e := <-c.send:
			frame, err := event.Frame(e)
			if err != nil {
				c.log.Error("Unable to encode event", "connection_id", c.id, "event", e.Name(), "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing connection", "connection_id", c.id, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed, closing connection", "connection_id", c.id, "error", err)
				c.Close()
				return
			}
		}
	}
}

// readPump returns when the socket is gone, whatever the reason.
func (c *Client) readPump() {
	c.conn.SetReadLimit(c.opts.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Unexpected close", "connection_id", c.id, "error", err)
			}
			return
		}
		env, err := event.Decode(frame)
		if err != nil {
			c.log.Warn("Rejected frame", "connection_id", c.id, "error", err)
			continue
		}
		c.hub.Submit(c.id, env)
	}
}
