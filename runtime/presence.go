package runtime

// Presence counts live identified connections per user.
// It is not safe on its own: the Registry only touches it under its lock.
//
// With perConnection set, every attach reports online and every release
// reports offline, whatever the count. That mirrors clients that still
// expect one status event per tab.
type Presence struct {
	perConnection bool
	online        map[string]int
}

func NewPresence(perConnection bool) *Presence {
	return &Presence{perConnection: perConnection, online: make(map[string]int)}
}

// Acquire records one more connection for the user and reports whether the
// user just went online.
func (p *Presence) Acquire(userID string) bool {
	p.online[userID]++
	return p.perConnection || p.online[userID] == 1
}

// Reacquire is used when a connection attaches the same user again.
func (p *Presence) Reacquire(_ string) bool {
	return p.perConnection
}

// Release drops one connection for the user and reports whether the user
// just went offline.
func (p *Presence) Release(userID string) bool {
	count, ok := p.online[userID]
	if !ok {
		return p.perConnection
	}
	if count <= 1 {
		delete(p.online, userID)
		return true
	}
	p.online[userID] = count - 1
	return p.perConnection
}

func (p *Presence) Connections(userID string) int {
	return p.online[userID]
}

func (p *Presence) OnlineUsers() int {
	return len(p.online)
}
