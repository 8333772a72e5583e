package websocket

import (
	"sort"
	"sync"
)

// Conn is a live transport session as seen by the registry and router.
type Conn interface {
	ID() string
	// Send enqueues payload without blocking; an error means the
	// connection can no longer be written to.
	Send(payload []byte) error
	Close()
}

// MembershipObserver is told when a user gains or loses its registry entry.
type MembershipObserver interface {
	Joined(userID string)
	Left(userID string)
}

type membershipChange struct {
	userID string
	joined bool
}

// Registry maps each user to at most one live connection. A newer
// registration for the same user replaces the older entry without closing
// it. Observers are called outside the map lock, in mutation order.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]Conn
	observers []MembershipObserver
	pending   []membershipChange
	closed    bool

	dispatchMu sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Conn),
	}
}

// Observe adds an observer. Call it while wiring, before connections arrive.
func (r *Registry) Observe(o MembershipObserver) {
	r.mu.Lock()
	r.observers = append(r.observers, o)
	r.mu.Unlock()
}

// Register points userID at conn and returns the connection it superseded,
// if any. After Close, conn is closed instead of registered.
func (r *Registry) Register(userID string, conn Conn) Conn {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return nil
	}
	previous := r.conns[userID]
	r.conns[userID] = conn
	r.pending = append(r.pending, membershipChange{userID: userID, joined: true})
	r.mu.Unlock()

	r.dispatch()
	return previous
}

// Unregister removes userID only while its entry is still conn, so a late
// disconnect of a replaced connection cannot evict its successor. It
// reports whether an entry was removed.
func (r *Registry) Unregister(userID string, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.conns[userID]
	if !ok || current != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, userID)
	r.pending = append(r.pending, membershipChange{userID: userID, joined: false})
	r.mu.Unlock()

	r.dispatch()
	return true
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[userID]
	return conn, ok
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// OnlineUsers returns the registered user ids in sorted order.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// Snapshot copies the current entries so callers can push to them
// without holding the lock.
func (r *Registry) Snapshot() map[string]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]Conn, len(r.conns))
	for userID, conn := range r.conns {
		snapshot[userID] = conn
	}
	return snapshot
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close empties the registry and closes every registered connection.
// No presence changes are emitted for a shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Conn)
	r.pending = nil
	r.closed = true
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// dispatch drains pending membership changes. Only one goroutine drains at
// a time; a caller that loses the race leaves its change to the active
// drainer, which also covers observers that re-enter the registry.
func (r *Registry) dispatch() {
	for {
		if !r.dispatchMu.TryLock() {
			return
		}
		for {
			r.mu.Lock()
			if len(r.pending) == 0 {
				r.pending = nil
				r.mu.Unlock()
				break
			}
			change := r.pending[0]
			r.pending = r.pending[1:]
			observers := r.observers
			r.mu.Unlock()

			for _, o := range observers {
				if change.joined {
					o.Joined(change.userID)
				} else {
					o.Left(change.userID)
				}
			}
		}
		r.dispatchMu.Unlock()

		r.mu.RLock()
		more := len(r.pending) > 0
		r.mu.RUnlock()
		if !more {
			return
		}
	}
}
