package runtime

import (
	"collab-realtime/contract"
	"collab-realtime/domain"
	"collab-realtime/errors"
	"collab-realtime/observability"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Set map[domain.ConnectionID]struct{}

// Registry is the single owner of connection records, the room reverse
// index and presence counts. Every mutation happens under mu, so a
// reader never sees a connection half-way through a join or a cleanup.
type Registry struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]*domain.Connection
	sinks       map[domain.ConnectionID]contract.EventSink
	roomMembers map[domain.RoomID]Set
	presence    *Presence
	now         func() time.Time
}

func NewRegistry(perConnectionPresence bool) *Registry {
	return &Registry{
		connections: make(map[domain.ConnectionID]*domain.Connection),
		sinks:       make(map[domain.ConnectionID]contract.EventSink),
		roomMembers: make(map[domain.RoomID]Set),
		presence:    NewPresence(perConnectionPresence),
		now:         time.Now,
	}
}

// Attachment is the outcome of user:join.
// Replaced is set when the connection previously carried another user.
type Attachment struct {
	Identity               domain.Identity
	WentOnline             bool
	Replaced               *domain.Identity
	ReplacedWentOffline    bool
	ReplacedLastConnection bool
	Everyone               []contract.Target
}

// Membership is the outcome of a join or a leave.
// Others never contains the acting connection.
type Membership struct {
	Identity domain.Identity
	Changed  bool
	Others   []contract.Target
}

type RoomDeparture struct {
	Room   domain.RoomID
	Others []contract.Target
}

// Departure is everything the disconnect handler has to announce.
// LastConnection is true when the user holds no connection anymore.
type Departure struct {
	Connection     domain.Connection
	Rooms          []RoomDeparture
	WentOffline    bool
	LastConnection bool
	Everyone       []contract.Target
}

// Connect registers a new identity-less connection.
func (r *Registry) Connect(sink contract.EventSink) domain.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := domain.NewConnectionID()
	r.connections[id] = domain.NewConnection(id, r.now())
	r.sinks[id] = sink
	return id
}

// AttachIdentity sets the identity of a connection, last call wins.
// Presence transitions are computed per user, not per connection.
func (r *Registry) AttachIdentity(id domain.ConnectionID, identity domain.Identity) (Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok {
		return Attachment{}, errors.ErrConnectionNotFound
	}

	attachment := Attachment{Identity: identity}
	switch {
	case conn.Identity == nil:
		attachment.WentOnline = r.presence.Acquire(identity.UserID)
	case conn.Identity.SameUser(identity):
		attachment.WentOnline = r.presence.Reacquire(identity.UserID)
	default:
		previous := *conn.Identity
		attachment.Replaced = &previous
		attachment.ReplacedWentOffline = r.presence.Release(previous.UserID)
		attachment.ReplacedLastConnection = r.presence.Connections(previous.UserID) == 0
		attachment.WentOnline = r.presence.Acquire(identity.UserID)
	}
	attached := identity
	conn.Identity = &attached
	attachment.Everyone = r.everyoneLocked()
	return attachment, nil
}

func (r *Registry) Get(id domain.ConnectionID) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	if !ok {
		return domain.Connection{}, false
	}
	return conn.Snapshot(), true
}

// Join adds the room to the connection and the connection to the room index.
// Joining twice is a no-op reported with Changed false.
func (r *Registry) Join(id domain.ConnectionID, room domain.RoomID) (Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.identifiedLocked(id)
	if err != nil {
		return Membership{}, err
	}
	membership := Membership{Identity: *conn.Identity}
	if !conn.Rooms.Add(room) {
		return membership, nil
	}
	members, ok := r.roomMembers[room]
	if !ok {
		members = make(Set)
		r.roomMembers[room] = members
	}
	members[id] = struct{}{}

	membership.Changed = true
	membership.Others = r.targetsLocked(members, id)
	return membership, nil
}

// Leave removes the room from the connection. Leaving a room never joined
// is a no-op reported with Changed false.
func (r *Registry) Leave(id domain.ConnectionID, room domain.RoomID) (Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, err := r.identifiedLocked(id)
	if err != nil {
		return Membership{}, err
	}
	membership := Membership{Identity: *conn.Identity}
	if !conn.Rooms.Remove(room) {
		return membership, nil
	}
	membership.Changed = true
	membership.Others = r.removeMemberLocked(room, id)
	return membership, nil
}

// RoomTargets resolves the fan-out set of a room-scoped event sent by id.
// member reports whether the sender belongs to the room, enforcing it is the caller's policy.
func (r *Registry) RoomTargets(id domain.ConnectionID, room domain.RoomID, includeSender bool) ([]contract.Target, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, err := r.identifiedLocked(id)
	if err != nil {
		return nil, false, err
	}
	exclude := id
	if includeSender {
		exclude = ""
	}
	return r.targetsLocked(r.roomMembers[room], exclude), conn.Rooms.Contains(room), nil
}

// Remove deletes the connection and reverses all its membership and presence
// side effects in one critical section. The second return is false when the
// connection was already gone.
func (r *Registry) Remove(id domain.ConnectionID) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.connections[id]
	if !ok {
		return Departure{}, false
	}
	delete(r.connections, id)
	delete(r.sinks, id)

	departure := Departure{Connection: conn.Snapshot()}
	for _, room := range conn.Rooms.Sorted() {
		departure.Rooms = append(departure.Rooms, RoomDeparture{
			Room:   room,
			Others: r.removeMemberLocked(room, id),
		})
	}
	if conn.Identity != nil {
		departure.WentOffline = r.presence.Release(conn.Identity.UserID)
		departure.LastConnection = r.presence.Connections(conn.Identity.UserID) == 0
	}
	departure.Everyone = r.everyoneLocked()
	return departure, true
}

// Members lists the connections of a room, nil when the room is empty.
func (r *Registry) Members(room domain.RoomID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	return lo.Keys(members)
}

// Connections returns how many live identified connections the user holds.
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.presence.Connections(userID)
}

func (r *Registry) Stats() observability.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identified := lo.CountBy(lo.Values(r.connections), func(c *domain.Connection) bool {
		return c.HasIdentity()
	})
	return observability.RegistryStats{
		Connections:           len(r.connections),
		IdentifiedConnections: identified,
		Rooms:                 len(r.roomMembers),
		OnlineUsers:           r.presence.OnlineUsers(),
	}
}

func (r *Registry) identifiedLocked(id domain.ConnectionID) (*domain.Connection, error) {
	conn, ok := r.connections[id]
	if !ok {
		return nil, errors.ErrConnectionNotFound
	}
	if !conn.HasIdentity() {
		return nil, errors.ErrIdentityRequired
	}
	return conn, nil
}

// removeMemberLocked drops id from the room index and returns who is left.
// Empty rooms are deleted so the index does not grow forever.
func (r *Registry) removeMemberLocked(room domain.RoomID, id domain.ConnectionID) []contract.Target {
	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.roomMembers, room)
		return nil
	}
	return r.targetsLocked(members, id)
}

func (r *Registry) targetsLocked(members Set, exclude domain.ConnectionID) []contract.Target {
	targets := make([]contract.Target, 0, len(members))
	for connID := range members {
		if connID == exclude {
			continue
		}
		if sink, ok := r.sinks[connID]; ok {
			targets = append(targets, contract.Target{ConnectionID: connID, Sink: sink})
		}
	}
	return targets
}

func (r *Registry) everyoneLocked() []contract.Target {
	targets := make([]contract.Target, 0, len(r.sinks))
	for connID, sink := range r.sinks {
		targets = append(targets, contract.Target{ConnectionID: connID, Sink: sink})
	}
	return targets
}
