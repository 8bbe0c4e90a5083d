package transport

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/protocol"
)

// NATS subject patterns used by the relay bridge.
const (
	SubjectEvent   = "relay.event"   // + .<user_id>, relay -> client
	SubjectCommand = "relay.command" // + .<user_id>, client -> relay
)

// EventSubject returns the subject a user's events are published on.
func EventSubject(userID protocol.ID) string {
	return SubjectEvent + "." + userID.String()
}

// CommandSubject returns the subject a user's commands are published on.
func CommandSubject(userID protocol.ID) string {
	return SubjectCommand + "." + userID.String()
}

// NATSLink talks to the relay through a NATS bridge. Reconnection is
// disabled: a lost server connection ends the link.
type NATSLink struct {
	cfg Config

	mu     sync.Mutex
	conn   *nats.Conn
	sub    *nats.Subscription
	closed bool
}

// NewNATSLink creates an unopened NATS link.
func NewNATSLink(cfg Config) *NATSLink {
	return &NATSLink{cfg: cfg}
}

// Open connects to NATS in the background.
func (l *NATSLink) Open(ctx context.Context, sink func(protocol.Event)) error {
	if l.cfg.NATSURL == "" {
		return errors.New("transport: empty nats url")
	}
	if l.cfg.UserID == "" {
		return errors.New("transport: nats link needs a user id")
	}
	go l.run(ctx, sink)
	return nil
}

func (l *NATSLink) run(ctx context.Context, sink func(protocol.Event)) {
	var once sync.Once
	lost := func(err error) {
		once.Do(func() {
			if !l.isClosed() {
				sink(protocol.Disconnected{Err: err})
			}
		})
	}

	opts := []nats.Option{
		nats.Name(l.cfg.ClientName),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("component", "nats").Msg("disconnected")
			} else {
				log.Info().Str("component", "nats").Msg("disconnected")
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Str("component", "nats").Msg("connection closed")
			err := nc.LastError()
			if err == nil {
				err = errors.New("nats connection closed")
			}
			lost(errors.Wrap(err, "transport"))
		}),
	}
	if l.cfg.DialTimeout > 0 {
		opts = append(opts, nats.Timeout(l.cfg.DialTimeout))
	}
	if ctx.Err() != nil {
		lost(ctx.Err())
		return
	}

	nc, err := nats.Connect(l.cfg.NATSURL, opts...)
	if err != nil {
		lost(errors.Wrapf(err, "transport: nats connect %s", l.cfg.NATSURL))
		return
	}

	subject := EventSubject(l.cfg.UserID)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := protocol.ParseEvent(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("component", "nats").Msg("skipping relay frame")
			return
		}
		if _, ok := ev.(protocol.Disconnected); ok {
			lost(nil)
			l.Close()
			return
		}
		sink(ev)
	})
	if err != nil {
		nc.Close()
		lost(errors.Wrapf(err, "transport: nats subscribe %s", subject))
		return
	}
	// Make sure the subscription is registered before reporting the link
	// as open, so no event published after authenticate is missed.
	if err := nc.Flush(); err != nil {
		nc.Close()
		lost(errors.Wrap(err, "transport: nats flush"))
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		nc.Close()
		return
	}
	l.conn = nc
	l.sub = sub
	l.mu.Unlock()

	log.Info().Str("component", "nats").Str("url", nc.ConnectedUrl()).Str("subject", subject).Msg("connected")
	sink(protocol.Opened{})
}

// Send publishes cmd on the user's command subject.
func (l *NATSLink) Send(cmd protocol.Command) error {
	data, err := protocol.Encode(cmd)
	if err != nil {
		return err
	}
	l.mu.Lock()
	nc := l.conn
	closed := l.closed
	l.mu.Unlock()
	if nc == nil || closed {
		return errors.Wrap(errs.ErrNotConnected, "transport: nats link not open")
	}
	return errors.Wrap(nc.Publish(CommandSubject(l.cfg.UserID), data), "transport: nats publish")
}

// Close drains the subscription and the connection. It is safe to call
// multiple times.
func (l *NATSLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	nc, sub := l.conn, l.sub
	l.conn, l.sub = nil, nil
	l.mu.Unlock()

	if sub != nil {
		if err := sub.Drain(); err != nil {
			log.Debug().Err(err).Str("component", "nats").Msg("subscription drain")
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Debug().Err(err).Str("component", "nats").Msg("connection drain")
			nc.Close()
		}
	}
	return nil
}

func (l *NATSLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

var _ Link = (*NATSLink)(nil)
