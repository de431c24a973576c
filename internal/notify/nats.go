// Package notify publishes ledger events to NATS so other services can
// follow the game without polling the API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"kingpot/internal/game"
)

const DefaultSubjectPrefix = "kingpot.events"

type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
	SubjectPrefix  string
}

// NATS is a game.EventSink backed by a core NATS connection.
type NATS struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

func Connect(cfg Config, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "kingpot"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 60
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{conn: conn, prefix: normalizePrefix(cfg.SubjectPrefix), log: logger}, nil
}

// Envelope is the message body published for every event.
type Envelope struct {
	Kind  string          `json:"kind"`
	Seq   uint64          `json:"seq"`
	Event json.RawMessage `json:"event"`
}

// Emit publishes ev on <prefix>.<kind>. Publish failures are logged, never
// returned; the ledger has already committed the transition.
func (n *NATS) Emit(ctx context.Context, ev game.Event) {
	if n == nil || n.conn == nil {
		return
	}
	payload, err := encodeEvent(ev)
	if err != nil {
		n.log.ErrorContext(ctx, "nats encode failed", "kind", ev.EventKind(), "err", err)
		return
	}
	subject := Subject(n.prefix, ev.EventKind())
	if err := n.conn.Publish(subject, payload); err != nil {
		n.log.WarnContext(ctx, "nats publish failed", "subject", subject, "seq", ev.EventSeq(), "err", err)
	}
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.log.Warn("nats drain failed", "err", err)
		n.conn.Close()
	}
}

func Subject(prefix, kind string) string {
	return normalizePrefix(prefix) + "." + kind
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), ".")
	if p == "" {
		return DefaultSubjectPrefix
	}
	return p
}

func encodeEvent(ev game.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: ev.EventKind(), Seq: ev.EventSeq(), Event: body})
}
