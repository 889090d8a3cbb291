package signaling

import "github.com/wilsonzlin/aero/proxy/call-signaling/internal/presence"

// Transport delivers events to connections. Implementations must hand frames
// off without blocking on network I/O; delivery is fire-and-forget.
type Transport interface {
	Send(conn presence.ConnID, ev Event)
	Broadcast(ev Event)
	BroadcastExcept(conn presence.ConnID, ev Event)
}
