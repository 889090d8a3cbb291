package signaling

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/origin"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/presence"
)

const wsWriteWait = 1 * time.Second

type Config struct {
	Authorizer     Authorizer
	AllowedOrigins []string

	// Observer receives presence deltas from the hub (e.g. the NATS feed).
	Observer presence.Observer

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	SignalingAuthTimeout          time.Duration
	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	SendQueueFrames               int
}

// Server is the WebSocket transport in front of a Hub. Every connection gets
// a bounded outbound queue drained by its own writer goroutine, so hub
// emissions never wait on a slow peer.
type Server struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	hub      *Hub
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	conns  map[presence.ConnID]*wsConn
	closed bool
}

func NewServer(cfg Config) *Server {
	if cfg.Authorizer == nil {
		cfg.Authorizer = AllowAllAuthorizer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.SignalingAuthTimeout <= 0 {
		cfg.SignalingAuthTimeout = config.DefaultSignalingAuthTimeout
	}
	if cfg.MaxSignalingMessageBytes <= 0 {
		cfg.MaxSignalingMessageBytes = config.DefaultMaxSignalingMessageBytes
	}
	if cfg.MaxSignalingMessagesPerSecond <= 0 {
		cfg.MaxSignalingMessagesPerSecond = config.DefaultMaxSignalingMessagesPerSecond
	}
	if cfg.SendQueueFrames <= 0 {
		cfg.SendQueueFrames = config.DefaultSendQueueFrames
	}

	s := &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		conns:   make(map[presence.ConnID]*wsConn),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.hub = NewHub(HubConfig{
		Transport: s,
		Observer:  cfg.Observer,
		Metrics:   cfg.Metrics,
		Logger:    cfg.Logger,
	})
	return s
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /socket", s.handleSocket)
}

// Gauges reports presence set sizes plus the number of open sockets.
func (s *Server) Gauges() map[string]int64 {
	out := s.hub.Gauges()
	s.mu.RLock()
	out["connections"] = int64(len(s.conns))
	s.mu.RUnlock()
	return out
}

// Close sends a going-away close frame to every connection and stops
// accepting new ones. Read loops then run their normal disconnect cleanup.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		writeClose(c.ws, websocket.CloseGoingAway, "server shutting down")
		c.close()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if strings.TrimSpace(header) == "" {
		// Non-browser clients don't send Origin.
		return true
	}
	_, ok := origin.Allowed(header, r.Host, s.cfg.AllowedOrigins)
	return ok
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(s.cfg.MaxSignalingMessageBytes)

	authenticated := false
	switch err := s.cfg.Authorizer.Authorize(r, nil); {
	case err == nil:
		authenticated = true
	case IsAuthMissing(err):
		// Wait for an in-band auth message.
	default:
		s.metrics.Inc(metrics.AuthFailure)
		if IsUnauthorized(err) {
			writeClose(ws, websocket.ClosePolicyViolation, "invalid credentials")
		} else {
			s.log.Error("signaling_auth_error", "err", err)
			writeClose(ws, websocket.CloseInternalServerErr, "invalid auth configuration")
		}
		_ = ws.Close()
		return
	}

	c := newWSConn(presence.ConnID(uuid.NewString()), ws, s.cfg.SendQueueFrames)
	if !s.add(c) {
		writeClose(ws, websocket.CloseGoingAway, "server shutting down")
		_ = ws.Close()
		return
	}
	s.metrics.Inc(metrics.ConnectionsOpened)
	s.hub.Connect(c.id)
	go c.writeLoop(s.cfg.SignalingWSPingInterval, s.metrics)
	defer s.drop(c)

	s.readLoop(c, r, authenticated)
}

func (s *Server) readLoop(c *wsConn, r *http.Request, authenticated bool) {
	ws := c.ws
	if authenticated {
		s.extendReadDeadline(ws)
	} else {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.SignalingAuthTimeout))
	}
	ws.SetPongHandler(func(string) error {
		if authenticated {
			s.extendReadDeadline(ws)
		}
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(s.cfg.MaxSignalingMessagesPerSecond), s.cfg.MaxSignalingMessagesPerSecond)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				// gorilla has already sent 1009.
				s.metrics.Inc(metrics.MessageTooLarge)
			case isTimeout(err) && !authenticated:
				s.metrics.Inc(metrics.AuthFailure)
				writeClose(ws, websocket.ClosePolicyViolation, "authentication timeout")
			case isTimeout(err):
				writeClose(ws, websocket.CloseNormalClosure, "idle timeout")
			}
			return
		}

		if !limiter.Allow() {
			s.metrics.Inc(metrics.RateLimited)
			writeClose(ws, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if authenticated {
			s.extendReadDeadline(ws)
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if !authenticated {
			msg, err := ParseMessage(data)
			if err != nil || msg.Type != MessageTypeAuth {
				s.metrics.Inc(metrics.AuthFailure)
				writeClose(ws, websocket.ClosePolicyViolation, "authentication required")
				return
			}
			if err := s.cfg.Authorizer.Authorize(r, &ClientHello{APIKey: msg.Body.APIKey, Token: msg.Body.Token}); err != nil {
				s.metrics.Inc(metrics.AuthFailure)
				writeClose(ws, websocket.ClosePolicyViolation, "invalid credentials")
				return
			}
			authenticated = true
			s.extendReadDeadline(ws)
			continue
		}

		s.hub.HandleFrame(c.id, data)
	}
}

func (s *Server) extendReadDeadline(ws *websocket.Conn) {
	if s.cfg.SignalingWSIdleTimeout > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(s.cfg.SignalingWSIdleTimeout))
	} else {
		_ = ws.SetReadDeadline(time.Time{})
	}
}

func (s *Server) add(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c.id] = c
	return true
}

func (s *Server) drop(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()

	c.close()
	s.hub.Disconnect(c.id)
	s.metrics.Inc(metrics.ConnectionsClosed)
}

// Send implements Transport.
func (s *Server) Send(conn presence.ConnID, ev Event) {
	frame, ok := s.encode(ev)
	if !ok {
		return
	}
	s.mu.RLock()
	c := s.conns[conn]
	s.mu.RUnlock()
	if c != nil {
		s.deliver(c, frame)
	}
}

// Broadcast implements Transport.
func (s *Server) Broadcast(ev Event) {
	s.BroadcastExcept("", ev)
}

// BroadcastExcept implements Transport.
func (s *Server) BroadcastExcept(except presence.ConnID, ev Event) {
	frame, ok := s.encode(ev)
	if !ok {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.conns {
		if id == except {
			continue
		}
		s.deliver(c, frame)
	}
}

func (s *Server) encode(ev Event) ([]byte, bool) {
	frame, err := ev.Encode()
	if err != nil {
		s.log.Error("encode_event_failed", "type", ev.Type, "err", err)
		return nil, false
	}
	return frame, true
}

func (s *Server) deliver(c *wsConn, frame []byte) {
	if c.enqueue(frame) {
		return
	}
	s.metrics.Inc(metrics.SendQueueDropped)
	s.log.Debug("send_queue_dropped", "conn_id", c.id)
}

type wsConn struct {
	id    presence.ConnID
	ws    *websocket.Conn
	queue chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(id presence.ConnID, ws *websocket.Conn, depth int) *wsConn {
	return &wsConn{
		id:    id,
		ws:    ws,
		queue: make(chan []byte, depth),
		done:  make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the queue is full or the
// connection is closing.
func (c *wsConn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

func (c *wsConn) writeLoop(pingInterval time.Duration, m *metrics.Metrics) {
	var ping <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
			m.Inc(metrics.FramesOut)
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
