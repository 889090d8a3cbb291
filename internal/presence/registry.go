package presence

import "sort"

// ConnID identifies one transport connection. It is minted by the transport
// and is only stored and compared here.
type ConnID string

// Registry is a bidirectional user <-> connection index.
//
// Both directions are updated together so a reader never observes a forward
// entry without its reverse (or vice versa). A user maps to at most one
// connection and a connection maps to at most one user.
type Registry struct {
	byUser map[string]ConnID
	byConn map[ConnID]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]ConnID),
		byConn: make(map[ConnID]string),
	}
}

// Register binds userID to conn, replacing any previous binding for userID.
//
// The superseded connection (if any) is left open and simply becomes
// anonymous. If conn was already bound to a different user, that user is
// unbound and returned as displaced so the caller can clear its presence.
func (r *Registry) Register(userID string, conn ConnID) (displaced string, ok bool) {
	if prev, bound := r.byConn[conn]; bound && prev != userID {
		delete(r.byUser, prev)
		displaced, ok = prev, true
	}
	if old, bound := r.byUser[userID]; bound && old != conn {
		delete(r.byConn, old)
	}
	r.byUser[userID] = conn
	r.byConn[conn] = userID
	return displaced, ok
}

// Lookup returns the connection currently bound to userID.
func (r *Registry) Lookup(userID string) (ConnID, bool) {
	conn, ok := r.byUser[userID]
	return conn, ok
}

// UserFor returns the user currently bound to conn.
func (r *Registry) UserFor(conn ConnID) (string, bool) {
	userID, ok := r.byConn[conn]
	return userID, ok
}

// Remove unbinds userID in both directions. Unknown users are ignored.
func (r *Registry) Remove(userID string) {
	conn, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(r.byUser, userID)
	delete(r.byConn, conn)
}

// Registered reports whether userID has a live binding.
func (r *Registry) Registered(userID string) bool {
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) Len() int { return len(r.byUser) }

// Users returns the bound user ids, sorted.
func (r *Registry) Users() []string {
	out := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}
