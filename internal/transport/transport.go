// Package transport provides the duplex links to the message relay: a
// WebSocket link and a NATS link. Both decode relay frames into
// protocol.Event values and encode protocol.Command values.
package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mpchat/client/internal/protocol"
)

// Transport kinds accepted by NewLink.
const (
	KindWebSocket = "ws"
	KindNATS      = "nats"
)

// Link is a duplex channel to the relay. Open returns immediately; the
// connection is made in the background and reported through sink as
// protocol.Opened, then relay events, then one protocol.Disconnected when
// the link fails. A link that was closed by Close reports nothing further.
type Link interface {
	Open(ctx context.Context, sink func(protocol.Event)) error
	Send(cmd protocol.Command) error
	Close() error
}

// Config selects and configures a link.
type Config struct {
	Kind         string
	WSURL        string
	NATSURL      string
	UserID       protocol.ID
	ClientName   string
	PingInterval time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the defaults for a local relay.
func DefaultConfig() Config {
	return Config{
		Kind:         KindWebSocket,
		WSURL:        "ws://localhost:5000/ws",
		NATSURL:      "nats://localhost:4222",
		ClientName:   "mpchat",
		PingInterval: 25 * time.Second,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// NewLink builds an unopened link of the configured kind.
func NewLink(cfg Config) (Link, error) {
	switch cfg.Kind {
	case "", KindWebSocket:
		return NewWSLink(cfg), nil
	case KindNATS:
		return NewNATSLink(cfg), nil
	default:
		return nil, errors.Errorf("transport: unknown kind %q", cfg.Kind)
	}
}
