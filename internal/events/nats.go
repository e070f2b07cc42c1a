package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the event kind to form the subject,
// e.g. "dao.fund.deposited".
const DefaultSubjectPrefix = "dao"

// natsConn is the subset of *nats.Conn used for publishing.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return newNATSPublisher(nc, prefix)
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// ConnectNATS dials a NATS server with reconnect enabled.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject an event kind is published on.
func (p *NATSPublisher) Subject(kind Kind) string {
	return p.prefix + "." + string(kind)
}

// Publish implements Publisher. NATS core publish is fire-and-forget, so the
// context is only checked before sending.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.ID, err)
	}
	if err := p.conn.Publish(p.Subject(e.Kind), data); err != nil {
		return fmt.Errorf("publish event %s: %w", e.Kind, err)
	}
	return nil
}
