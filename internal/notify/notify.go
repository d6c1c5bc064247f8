// Package notify broadcasts session lifecycle events over NATS.
//
// Delivery is best effort: a publisher that cannot connect or publish
// logs a warning and stays quiet. A build session never fails because
// its notifications could not be delivered.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/logfields"
	"git.home.luguber.info/inful/buildmon/internal/observability"
)

// Event names a lifecycle transition worth broadcasting.
type Event string

const (
	EventStarted    Event = "started"
	EventCompleted  Event = "completed"
	EventFailed     Event = "failed"
	EventTerminated Event = "terminated"
)

// Message is the JSON payload published for one lifecycle event.
type Message struct {
	SessionID  string    `json:"session_id"`
	Event      Event     `json:"event"`
	Targets    []string  `json:"targets,omitempty"`
	ReturnCode *int      `json:"return_code,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher delivers lifecycle messages. Implementations must never block
// session progress on delivery problems.
type Publisher interface {
	Publish(ctx context.Context, msg Message)
	Close()
}

// NoopPublisher drops every message. Selected when notifications are
// disabled or the broker is unreachable.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Message) {}
func (NoopPublisher) Close()                           {}

// NATSPublisher publishes messages on a core NATS connection, one subject
// per event under a common prefix.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

const (
	defaultSubjectPrefix  = "buildmon.sessions"
	defaultConnectTimeout = 5 * time.Second
)

// Connect dials the configured broker. When notifications are disabled or
// the broker cannot be reached within the connect timeout, the returned
// publisher is a noop; a failed connect is logged, never returned.
func Connect(ctx context.Context, cfg *config.NotifyConfig) Publisher {
	if cfg == nil || !cfg.Enabled {
		return NoopPublisher{}
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	timeout := config.ParseDurationDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	conn, err := nats.Connect(url,
		nats.Name("buildmon"),
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		observability.WarnContext(ctx, "lifecycle notifications disabled",
			logfields.Component("notify"),
			logfields.Error(err))
		return NoopPublisher{}
	}
	return &NATSPublisher{conn: conn, prefix: subjectPrefix(cfg.SubjectPrefix)}
}

// Publish marshals msg and sends it to <prefix>.<event>. Failures are
// logged and dropped.
func (p *NATSPublisher) Publish(ctx context.Context, msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := p.conn.Publish(subjectFor(p.prefix, msg.Event), data); err != nil {
		observability.WarnContext(ctx, "lifecycle publish failed",
			logfields.Component("notify"),
			logfields.SessionID(msg.SessionID),
			logfields.Error(err))
	}
}

// Close flushes buffered messages and drops the connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	_ = p.conn.Flush()
	p.conn.Close()
}

func subjectPrefix(raw string) string {
	if raw == "" {
		return defaultSubjectPrefix
	}
	return raw
}

func subjectFor(prefix string, event Event) string {
	return prefix + "." + string(event)
}
