package signaling

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/presence"
)

// HubConfig wires the hub's collaborators.
type HubConfig struct {
	Transport Transport

	// Observer, if set, receives a presence.Delta after every transition.
	Observer presence.Observer

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// Now is used to timestamp deltas. Defaults to time.Now.
	Now func() time.Time
}

// Hub owns the registry and presence sets and drives every lifecycle
// transition: registration, call-state changes, relays and disconnect
// cleanup.
//
// All state lives behind a single mutex. Each inbound message or disconnect
// is applied, including hand-off of the resulting events to the transport,
// before the next one is looked at.
type Hub struct {
	transport Transport
	observer  presence.Observer
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	registry *presence.Registry
	tracker  *presence.Tracker
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Hub{
		transport: cfg.Transport,
		observer:  cfg.Observer,
		metrics:   cfg.Metrics,
		log:       logger,
		now:       now,
		registry:  presence.NewRegistry(),
		tracker:   presence.NewTracker(),
	}
}

// Connect records a new anonymous connection. It has no registry entry until
// the client sends register.
func (h *Hub) Connect(conn presence.ConnID) {
	h.log.Debug("connection_opened", "conn_id", conn)
}

// Disconnect releases whatever identity conn was bound to. A connection that
// never registered (or was superseded by a newer registration) is a no-op.
func (h *Hub) Disconnect(conn presence.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	userID, ok := h.registry.UserFor(conn)
	if !ok {
		h.log.Debug("connection_closed", "conn_id", conn)
		return
	}
	h.releaseLocked(userID)
	h.metrics.Inc(metrics.DisconnectCleanups)
	h.log.Info("user_disconnected", "user_id", userID, "conn_id", conn)
}

// HandleFrame decodes one raw inbound frame and applies it. Malformed frames
// are counted and dropped.
func (h *Hub) HandleFrame(conn presence.ConnID, data []byte) {
	h.metrics.Inc(metrics.MessagesIn)
	msg, err := ParseMessage(data)
	if err != nil {
		h.metrics.Inc(metrics.MessagesMalformed)
		h.log.Debug("malformed_message", "conn_id", conn, "err", err)
		return
	}
	h.HandleMessage(conn, msg)
}

// HandleMessage applies one decoded message from conn.
func (h *Hub) HandleMessage(conn presence.ConnID, msg Message) {
	if err := msg.requireFields(); err != nil {
		h.metrics.Inc(metrics.MessagesMalformed)
		h.log.Debug("malformed_message", "conn_id", conn, "type", msg.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	b := msg.Body
	switch msg.Type {
	case MessageTypeRegister:
		h.registerLocked(conn, b.UserID)
	case MessageTypeUnregister:
		if userID, ok := h.registry.UserFor(conn); ok {
			h.releaseLocked(userID)
			h.metrics.Inc(metrics.Unregistrations)
			h.log.Info("user_unregistered", "user_id", userID, "conn_id", conn)
		}
	case MessageTypeStartInCall:
		h.markInCallLocked(b.UserID)
	case MessageTypeRemoveInCall:
		h.markLiveLocked(b.UserID)
	case MessageTypeCallEnd:
		h.markLiveLocked(b.From, b.To)
	case MessageTypeInCall:
		h.markBusyLocked(b.From, b.To)
	case MessageTypeAuth:
		// Credentials are consumed by the transport; a late auth is harmless.
	default:
		r, ok := routes[msg.Type]
		if !ok {
			h.metrics.Inc(metrics.MessagesUnknown)
			h.log.Debug("unknown_message_type", "conn_id", conn, "type", msg.Type)
			return
		}
		h.relayLocked(conn, msg.Type, r, b)
	}
}

// Lookup returns the connection currently bound to userID.
func (h *Hub) Lookup(userID string) (presence.ConnID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Lookup(userID)
}

// State returns userID's current call state.
func (h *Hub) State(userID string) presence.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracker.State(userID)
}

// Users returns the currently registered user ids, sorted.
func (h *Hub) Users() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Users()
}

// Snapshot returns copies of the live and call sets.
func (h *Hub) Snapshot() (live, call []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracker.SnapshotLive(), h.tracker.SnapshotCall()
}

// Gauges reports set sizes for the metrics endpoint.
func (h *Hub) Gauges() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	live, call := h.tracker.Len()
	return map[string]int64{
		"registered": int64(h.registry.Len()),
		"live":       int64(live),
		"call":       int64(call),
	}
}

func (h *Hub) registerLocked(conn presence.ConnID, userID string) {
	if displaced, ok := h.registry.Register(userID, conn); ok {
		h.tracker.Clear(displaced)
		h.emitLocked(presence.DeltaUnregistered, displaced)
		h.log.Info("user_displaced", "user_id", displaced, "conn_id", conn)
	}
	h.tracker.MarkLive(userID)
	h.metrics.Inc(metrics.Registrations)
	h.log.Info("user_registered", "user_id", userID, "conn_id", conn)

	h.transport.Send(conn, Event{Type: EventRegistered, Payload: userPayload{UserID: userID}})
	h.broadcastLiveLocked()
	h.broadcastCallLocked()
	h.transport.BroadcastExcept(conn, Event{Type: EventNewLiveUser, Payload: userPayload{UserID: userID}})
	h.emitLocked(presence.DeltaRegistered, userID)
}

// releaseLocked drops userID from the registry and both presence sets and
// broadcasts exactly one snapshot of each set.
func (h *Hub) releaseLocked(userID string) {
	h.registry.Remove(userID)
	h.tracker.Clear(userID)
	h.broadcastLiveLocked()
	h.broadcastCallLocked()
	h.emitLocked(presence.DeltaUnregistered, userID)
}

// markInCallLocked moves the registered users among ids into the call set.
// Unregistered ids are ignored so presence never names an unreachable user.
func (h *Hub) markInCallLocked(ids ...string) {
	changed := h.applyLocked(h.tracker.MarkInCall, ids)
	if len(changed) == 0 {
		return
	}
	h.broadcastCallLocked()
	h.broadcastLiveLocked()
	h.emitLocked(presence.DeltaInCall, changed...)
}

func (h *Hub) markLiveLocked(ids ...string) {
	changed := h.applyLocked(h.tracker.MarkLive, ids)
	if len(changed) == 0 {
		return
	}
	h.broadcastCallLocked()
	h.broadcastLiveLocked()
	h.emitLocked(presence.DeltaLive, changed...)
}

// markBusyLocked takes ids out of the live set without marking them in-call.
func (h *Hub) markBusyLocked(ids ...string) {
	changed := h.applyLocked(h.tracker.MarkBusy, ids)
	if len(changed) == 0 {
		return
	}
	h.broadcastLiveLocked()
	h.emitLocked(presence.DeltaBusy, changed...)
}

func (h *Hub) applyLocked(op func(string) bool, ids []string) []string {
	var changed []string
	for _, id := range ids {
		if !h.registry.Registered(id) {
			continue
		}
		if op(id) {
			changed = append(changed, id)
		}
	}
	return changed
}

func (h *Hub) broadcastLiveLocked() {
	h.transport.Broadcast(Event{Type: EventLiveUsers, Payload: liveUsersPayload{LiveUsers: h.tracker.SnapshotLive()}})
}

func (h *Hub) broadcastCallLocked() {
	h.transport.Broadcast(Event{Type: EventCallUsers, Payload: callUsersPayload{CallUsers: h.tracker.SnapshotCall()}})
}

func (h *Hub) emitLocked(kind presence.DeltaKind, users ...string) {
	if h.observer == nil {
		return
	}
	h.observer.PresenceChanged(presence.Delta{
		Kind:  kind,
		Users: users,
		Live:  h.tracker.SnapshotLive(),
		Call:  h.tracker.SnapshotCall(),
		At:    h.now().UTC(),
	})
}
