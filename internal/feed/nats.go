package feed

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures a NATSSource.
type NATSConfig struct {
	URL     string
	Subject string
}

// NATSSource is a Source backed by a NATS subject subscription.
type NATSSource struct {
	conn *nats.Conn
	sub  *nats.Subscription
	subj string
}

// NewNATSSource connects to URL but does not subscribe until Start.
func NewNATSSource(cfg NATSConfig) (*NATSSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("feed: nats url is required")
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("feed: nats subject is required")
	}
	conn, err := nats.Connect(cfg.URL, nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("feed: nats connect: %w", err)
	}
	return &NATSSource{conn: conn, subj: cfg.Subject}, nil
}

// Start subscribes to the configured subject and delivers one Update
// per message until ctx is canceled.
func (n *NATSSource) Start(ctx context.Context, handle Handler) error {
	msgs := make(chan *nats.Msg, 256)
	sub, err := n.conn.ChanSubscribe(n.subj, msgs)
	if err != nil {
		return fmt.Errorf("feed: nats subscribe: %w", err)
	}
	n.sub = sub

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-msgs:
			handle(Update{Subject: m.Subject, Payload: m.Data})
		}
	}
}

// Close unsubscribes and closes the connection.
func (n *NATSSource) Close() error {
	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			return fmt.Errorf("feed: nats unsubscribe: %w", err)
		}
	}
	n.conn.Close()
	return nil
}
