package runtime

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/domain/event"
	"collab-realtime/errors"
	"collab-realtime/observability"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Command is anything the router processes, one at a time.
type Command interface {
	Connection() domain.ConnectionID
}

// Inbound is a decoded client frame.
type Inbound struct {
	ConnID   domain.ConnectionID
	Envelope event.Envelope
}

func (c Inbound) Connection() domain.ConnectionID { return c.ConnID }

// Disconnected is emitted by the transport once the socket is gone.
type Disconnected struct {
	ConnID domain.ConnectionID
}

func (c Disconnected) Connection() domain.ConnectionID { return c.ConnID }

type handlerFunc func(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error

type RouterOptions struct {
	BufferSize        int
	RequireMembership bool
	MaxRoomIDLength   int
}

// Router owns the dispatch table of client events.
//
// A single goroutine (Run) consumes every command, which serializes registry
// mutations with the fan-out that follows them: events of one room reach
// each connection in the order they were processed. Socket writes happen
// later, in each connection's own writer.
type Router struct {
	log        *slog.Logger
	registry   *Registry
	fanout     contract.IFanout
	monitoring *observability.MonitoringManager
	commands   chan Command
	handlers   map[event.Name]handlerFunc
	opts       RouterOptions
	now        func() time.Time
	closed     chan struct{}
	closeOnce  sync.Once
}

func NewRouter(log *slog.Logger, registry *Registry, fanout contract.IFanout,
	monitoring *observability.MonitoringManager, opts RouterOptions) *Router {
	r := &Router{
		log:        log,
		registry:   registry,
		fanout:     fanout,
		monitoring: monitoring,
		commands:   make(chan Command, opts.BufferSize),
		opts:       opts,
		now:        time.Now,
		closed:     make(chan struct{}),
	}
	r.handlers = map[event.Name]handlerFunc{
		event.UserJoin:      r.handleUserJoin,
		event.RoomJoin:      r.handleRoomJoin,
		event.RoomLeave:     r.handleRoomLeave,
		event.MessageSend:   r.handleMessageSend,
		event.MessageEdit:   r.handleMessageEdit,
		event.MessageDelete: r.handleMessageDelete,
		event.MessageReact:  r.handleMessageReact,
		event.TypingStart:   r.handleTyping(event.StartedTyping),
		event.TypingStop:    r.handleTyping(event.StoppedTyping),
	}
	return r
}

// Connect registers a fresh connection. It does not go through the command
// queue: nothing is broadcast until the client sends user:join.
func (r *Router) Connect(sink contract.EventSink) domain.ConnectionID {
	id := r.registry.Connect(sink)
	r.log.Debug("Connection registered", "connection_id", id)
	return id
}

// Submit queues a client event. A full queue drops it, like any lost frame.
func (r *Router) Submit(connID domain.ConnectionID, env event.Envelope) bool {
	select {
	case r.commands <- Inbound{ConnID: connID, Envelope: env}:
		return true
	default:
		r.monitoring.IncrCommandsDropped()
		r.log.Warn("Router queue full, dropping event", "connection_id", connID, "event", env.Event)
		return false
	}
}

// Disconnect queues the cleanup of a connection. It is never dropped: when
// the queue is full a goroutine waits for room until the router is closed.
func (r *Router) Disconnect(connID domain.ConnectionID) {
	cmd := Disconnected{ConnID: connID}
	select {
	case r.commands <- cmd:
		return
	default:
	}
	r.monitoring.IncrDisconnectsDeferred()
	r.log.Warn("Router queue full, deferring disconnect", "connection_id", connID)
	go func() {
		select {
		case r.commands <- cmd:
		case <-r.closed:
			r.log.Debug("Router closed, disconnect abandoned", "connection_id", connID)
		}
	}()
}

// Close releases the goroutines still waiting to queue a disconnect.
func (r *Router) Close() {
	r.closeOnce.Do(func() { close(r.closed) })
}

func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.log.Debug("Context done, stopping router")
			return nil
		case cmd := <-r.commands:
			if err := r.Handle(ctx, cmd); err != nil {
				r.reject(cmd, err)
			}
		}
	}
}

// Handle processes one command synchronously.
func (r *Router) Handle(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case Inbound:
		handler, ok := r.handlers[c.Envelope.Event]
		if !ok {
			return fmt.Errorf("%w: %q", errors.ErrUnknownEvent, c.Envelope.Event)
		}
		return handler(ctx, c.ConnID, c.Envelope.Data)
	case Disconnected:
		r.handleDisconnect(ctx, c.ConnID)
		return nil
	default:
		return fmt.Errorf("%w: %T", errors.ErrUnknownEvent, cmd)
	}
}

func (r *Router) reject(cmd Command, err error) {
	r.monitoring.IncrRejected()
	name := event.Name("")
	if in, ok := cmd.(Inbound); ok {
		name = in.Envelope.Event
	}
	if errors.Is(err, errors.ErrConnectionNotFound) {
		r.log.Debug("Event for unknown connection", "connection_id", cmd.Connection(), "event", name)
		return
	}
	r.log.Warn("Event rejected", "connection_id", cmd.Connection(), "event", name, "error", err)
}

func (r *Router) handleUserJoin(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
	identity, err := event.DecodeIdentity(data)
	if err != nil {
		return err
	}
	attachment, err := r.registry.AttachIdentity(connID, identity)
	if err != nil {
		return err
	}
	if attachment.Replaced != nil && attachment.ReplacedWentOffline {
		r.fanout.Deliver(ctx, event.UserStatus{
			Identity:       *attachment.Replaced,
			Status:         domain.StatusOffline,
			At:             r.now(),
			LastConnection: attachment.ReplacedLastConnection,
		}, attachment.Everyone)
	}
	if attachment.WentOnline {
		r.fanout.Deliver(ctx, event.UserStatus{Identity: identity, Status: domain.StatusOnline, At: r.now()}, attachment.Everyone)
	}
	r.log.Debug("Identity attached", "connection_id", connID, "user_id", identity.UserID)
	return nil
}

func (r *Router) handleRoomJoin(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
	room, err := r.decodeRoom(data)
	if err != nil {
		return err
	}
	membership, err := r.registry.Join(connID, room)
	if err != nil {
		return err
	}
	if membership.Changed {
		r.fanout.Deliver(ctx, event.Joined(membership.Identity, room), membership.Others)
	}
	return nil
}

func (r *Router) handleRoomLeave(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
	room, err := r.decodeRoom(data)
	if err != nil {
		return err
	}
	membership, err := r.registry.Leave(connID, room)
	if err != nil {
		return err
	}
	if membership.Changed {
		r.fanout.Deliver(ctx, event.Left(membership.Identity, room), membership.Others)
	}
	return nil
}

func (r *Router) handleMessageSend(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
	p, err := event.DecodePayload[event.SendPayload](data)
	if err != nil {
		return err
	}
	return r.toRoom(ctx, connID, p.RoomID, true, func(room domain.RoomID) event.DomainEvent {
		return event.NewMessage{Room: room, Message: p.Message}
	})
}

func (r *Router) handleMessageEdit(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
	p, err := event.DecodePayload[event.EditPayload](data)
	if err != nil {
		return err
	}
	return r.toRoom(ctx, connID, p.RoomID, true, func(room domain.RoomID) event.DomainEvent {
		return event.UpdatedMessage{Room: room, MessageID: p.MessageID, Content: p.Content, UpdatedAt: p.UpdatedAt}
	})
}

func (r *Router) handleMessageDelete(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
	p, err := event.DecodePayload[event.DeletePayload](data)
	if err != nil {
		return err
	}
	return r.toRoom(ctx, connID, p.RoomID, true, func(room domain.RoomID) event.DomainEvent {
		return event.DeletedMessage{Room: room, MessageID: p.MessageID}
	})
}

func (r *Router) handleMessageReact(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
	p, err := event.DecodePayload[event.ReactPayload](data)
	if err != nil {
		return err
	}
	return r.toRoom(ctx, connID, p.RoomID, true, func(room domain.RoomID) event.DomainEvent {
		return event.Reaction{Room: room, MessageID: p.MessageID, Reaction: p.Reaction, UserID: p.UserID}
	})
}

func (r *Router) handleTyping(build func(domain.RoomID, event.TypingPayload) event.Typing) handlerFunc {
	return func(ctx context.Context, connID domain.ConnectionID, data json.RawMessage) error {
		p, err := event.DecodePayload[event.TypingPayload](data)
		if err != nil {
			return err
		}
		return r.toRoom(ctx, connID, p.RoomID, false, func(room domain.RoomID) event.DomainEvent {
			return build(room, p)
		})
	}
}

// handleDisconnect reverses everything the connection did: one user:left-room
// per joined room, then user:status offline if it was the user's last connection.
func (r *Router) handleDisconnect(ctx context.Context, connID domain.ConnectionID) {
	departure, ok := r.registry.Remove(connID)
	if !ok {
		r.log.Debug("Disconnect for unknown connection", "connection_id", connID)
		return
	}
	identity := departure.Connection.Identity
	if identity == nil {
		r.log.Debug("Anonymous connection closed", "connection_id", connID)
		return
	}
	for _, room := range departure.Rooms {
		r.fanout.Deliver(ctx, event.Left(*identity, room.Room), room.Others)
	}
	if departure.WentOffline {
		r.fanout.Deliver(ctx, event.UserStatus{
			Identity:       *identity,
			Status:         domain.StatusOffline,
			At:             r.now(),
			LastConnection: departure.LastConnection,
		}, departure.Everyone)
	}
	r.log.Info("Connection closed",
		"connection_id", connID,
		"user_id", identity.UserID,
		"rooms", len(departure.Rooms),
		"went_offline", departure.WentOffline)
}

// toRoom resolves the targets of a room-scoped event and delivers it.
// Senders outside the room are refused when membership is required.
func (r *Router) toRoom(ctx context.Context, connID domain.ConnectionID, rawRoom string,
	includeSender bool, build func(domain.RoomID) event.DomainEvent) error {
	room := domain.NewRoomID(rawRoom)
	if err := event.ValidateRoomID(room, r.opts.MaxRoomIDLength); err != nil {
		return err
	}
	targets, member, err := r.registry.RoomTargets(connID, room, includeSender)
	if err != nil {
		return err
	}
	if !member && r.opts.RequireMembership {
		return fmt.Errorf("%w: %s", errors.ErrNotMember, room)
	}
	r.fanout.Deliver(ctx, build(room), targets)
	return nil
}

func (r *Router) decodeRoom(data json.RawMessage) (domain.RoomID, error) {
	raw, err := event.DecodeRoomRef(data)
	if err != nil {
		return "", err
	}
	room := domain.NewRoomID(raw)
	if err := event.ValidateRoomID(room, r.opts.MaxRoomIDLength); err != nil {
		return "", err
	}
	return room, nil
}
