package metrics

import "sync"

// Event counters incremented by the signaling transport and hub.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	AuthFailure       = "auth_failure"
	RateLimited       = "rate_limited"
	MessageTooLarge   = "message_too_large"

	MessagesIn        = "messages_in"
	MessagesMalformed = "messages_malformed"
	MessagesUnknown   = "messages_unknown"

	Registrations       = "registrations"
	Unregistrations     = "unregistrations"
	DisconnectCleanups  = "disconnect_cleanups"
	RelayDelivered      = "relay_delivered"
	RelayTargetNotFound = "relay_target_not_found"
	RelayDropped        = "relay_dropped"

	FramesOut        = "frames_out"
	SendQueueDropped = "send_queue_dropped"

	PresenceEventsPublished = "presence_events_published"
	PresenceEventsDropped   = "presence_events_dropped"
)

// Metrics is a small concurrency-safe counter registry. A nil *Metrics is
// valid and discards all updates.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, n uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += n
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
