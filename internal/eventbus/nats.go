// Package eventbus publishes presence transitions to NATS so other services
// (push notifiers, dashboards, audit) can follow who is online without
// holding a signaling socket.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/call-signaling/internal/presence"
)

var ErrClosed = errors.New("eventbus: publisher closed")

const DefaultBuffer = 1024

// Subject returns the subject a delta of the given kind is published on.
func Subject(prefix string, kind presence.DeltaKind) string {
	return fmt.Sprintf("%s.presence.%s", prefix, kind)
}

type Options struct {
	Buffer  int
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NATSPublisher is a presence.Observer. PresenceChanged only enqueues; a
// background goroutine encodes and publishes, so a slow or disconnected NATS
// server never stalls the signaling hub. Deltas that do not fit in the
// buffer are dropped and counted.
type NATSPublisher struct {
	prefix  string
	publish func(subject string, data []byte) error
	finish  func()

	metrics *metrics.Metrics
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan presence.Delta
	done   chan struct{}
}

// Connect dials cfg.URL and starts a publisher on it.
func Connect(cfg config.NATSConfig, opts Options) (*NATSPublisher, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("call-signaling"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats_disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	finish := func() {
		if err := nc.Drain(); err != nil {
			log.Warn("nats_drain_failed", "err", err)
			nc.Close()
		}
	}
	return newPublisher(cfg.SubjectPrefix, nc.Publish, finish, opts), nil
}

func newPublisher(prefix string, publish func(string, []byte) error, finish func(), opts Options) *NATSPublisher {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if finish == nil {
		finish = func() {}
	}
	p := &NATSPublisher{
		prefix:  prefix,
		publish: publish,
		finish:  finish,
		metrics: opts.Metrics,
		log:     opts.Logger,
		queue:   make(chan presence.Delta, opts.Buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *NATSPublisher) PresenceChanged(d presence.Delta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.metrics.Inc(metrics.PresenceEventsDropped)
		return
	}
	select {
	case p.queue <- d:
	default:
		p.metrics.Inc(metrics.PresenceEventsDropped)
	}
}

func (p *NATSPublisher) run() {
	defer close(p.done)
	for d := range p.queue {
		data, err := json.Marshal(d)
		if err != nil {
			p.metrics.Inc(metrics.PresenceEventsDropped)
			p.log.Error("presence_event_encode_failed", "kind", d.Kind, "err", err)
			continue
		}
		subject := Subject(p.prefix, d.Kind)
		if err := p.publish(subject, data); err != nil {
			p.metrics.Inc(metrics.PresenceEventsDropped)
			p.log.Warn("presence_event_publish_failed", "subject", subject, "err", err)
			continue
		}
		p.metrics.Inc(metrics.PresenceEventsPublished)
	}
}

// Close stops accepting deltas, publishes what is already queued and drains
// the connection. It returns ctx.Err() if the queue is not flushed in time,
// and ErrClosed on a second call.
func (p *NATSPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.finish()
	return nil
}
