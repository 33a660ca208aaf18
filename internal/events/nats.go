package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is the part of *nats.Conn the publisher needs.
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher publishes each event on "<prefix>.<type>" (core NATS, no persistence).
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// DialNATS connects with reconnect-forever settings.
func DialNATS(servers []string, prefix string, log *slog.Logger) (*NATSPublisher, error) {
	if len(servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	nc, err := nats.Connect(strings.Join(servers, ","),
		nats.Name("shaadimantra-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	return NewNATSPublisher(nc, prefix), nil
}

func NewNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := e.encode()
	if err != nil {
		return err
	}
	return p.conn.Publish(p.Subject(e.Type), data)
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
