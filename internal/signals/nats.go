package signals

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Message is the JSON body published for a signal.
type Message struct {
	Kind    string    `json:"kind"`
	Section string    `json:"section"`
	Chars   int       `json:"chars"`
	Page    int       `json:"page,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// NewMessage converts sig.
func NewMessage(sig ttypes.Signal, now time.Time) Message {
	m := Message{
		Kind:    sig.Kind.String(),
		Section: sig.Section,
		Chars:   sig.Chars,
		Page:    sig.Page,
		Time:    now.UTC(),
	}
	if sig.Err != nil {
		m.Error = sig.Err.Error()
	}
	return m
}

// Subject returns the subject a signal kind is published on.
func Subject(prefix string, kind ttypes.SignalKind) string {
	return prefix + "." + kind.String()
}

// NATS publishes signals as JSON on <prefix>.<kind>.
type NATS struct {
	conn   *nats.Conn
	prefix string
	clock  func() time.Time
	logger *log.Logger
}

// ConnectNATS dials url and returns a publisher. Publishing is buffered by
// the client and never blocks the reader.
func ConnectNATS(url, prefix string, logger *log.Logger) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("aloud"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return NewNATS(conn, prefix, logger), nil
}

// NewNATS wraps an open connection.
func NewNATS(conn *nats.Conn, prefix string, logger *log.Logger) *NATS {
	if logger == nil {
		logger = log.Default()
	}
	if prefix == "" {
		prefix = "aloud"
	}
	return &NATS{conn: conn, prefix: prefix, clock: time.Now, logger: logger}
}

// Emit implements ttypes.SignalSink.
func (n *NATS) Emit(sig ttypes.Signal) {
	b, err := json.Marshal(NewMessage(sig, n.clock()))
	if err != nil {
		n.logger.Warn("unable to encode signal", "kind", sig.Kind, "err", err)
		return
	}
	if err := n.conn.Publish(Subject(n.prefix, sig.Kind), b); err != nil {
		n.logger.Warn("unable to publish signal", "kind", sig.Kind, "err", err)
	}
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
