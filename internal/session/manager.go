package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/metrics"
	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/sched"
)

// DefaultAuthTimeout bounds the wait for the authentication reply.
const DefaultAuthTimeout = 10 * time.Second

// Link is a duplex channel to the relay. Open must not block: it starts the
// connection in the background and reports through sink, first Opened, then
// relay events, and finally one Disconnected.
type Link interface {
	Open(ctx context.Context, sink func(protocol.Event)) error
	Send(cmd protocol.Command) error
	Close() error
}

// Notifier posts user-visible notifications.
type Notifier interface {
	Post(text string, sev notify.Severity) notify.Notification
	PostShort(text string, sev notify.Severity) notify.Notification
}

// Config wires a Manager.
type Config struct {
	// Dial returns a fresh, unopened link for each connection attempt.
	Dial func() Link
	// Post runs fn on the goroutine that owns the Manager.
	Post func(fn func())
	// Sched creates the authentication wait timer.
	Sched sched.Scheduler
	// Notify receives connection notifications.
	Notify Notifier
	// AuthTimeout bounds the authentication wait. Zero disables it.
	AuthTimeout time.Duration
}

// Manager owns the connection state machine. All methods must be called on
// the owning goroutine.
type Manager struct {
	cfg Config

	state     State
	localID   protocol.ID
	link      Link
	gen       uint64
	authTimer sched.Timer

	listeners []func(prev, next State)
	onEvent   func(protocol.Event)
}

// NewManager creates a disconnected manager.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// OnStateChange registers a listener for state transitions.
func (m *Manager) OnStateChange(fn func(prev, next State)) {
	m.listeners = append(m.listeners, fn)
}

// OnEvent sets the handler for relay events other than the connection
// lifecycle ones.
func (m *Manager) OnEvent(fn func(protocol.Event)) {
	m.onEvent = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	return m.state
}

// LocalUserID returns the user the connection authenticates as.
func (m *Manager) LocalUserID() protocol.ID {
	return m.localID
}

// Snapshot returns the connection state for the view.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{LocalUserID: m.localID, State: m.state}
}

// Connect opens a new link for localUserID. It is only valid while
// disconnected.
func (m *Manager) Connect(ctx context.Context, localUserID protocol.ID) error {
	if m.state != Disconnected {
		m.cfg.Notify.Post("Already connected", notify.Error)
		return errors.Wrapf(errs.ErrInvalidIntent, "session: connect while %s", m.state)
	}
	if localUserID == "" {
		m.cfg.Notify.Post("A user id is required", notify.Error)
		return errors.Wrap(errs.ErrInvalidIntent, "session: empty user id")
	}

	m.localID = localUserID
	m.gen++
	gen := m.gen
	link := m.cfg.Dial()
	m.link = link
	m.setState(Connecting)

	err := link.Open(ctx, func(ev protocol.Event) {
		m.cfg.Post(func() { m.handle(gen, ev) })
	})
	if err != nil {
		m.dropLink()
		m.setState(Disconnected)
		m.cfg.Notify.Post("Unable to connect to server", notify.Error)
		return errors.Wrap(err, "session: open link")
	}
	return nil
}

// Disconnect tears the link down. Events still in flight from it are
// dropped.
func (m *Manager) Disconnect() {
	if m.state == Disconnected {
		return
	}
	m.dropLink()
	m.setState(Disconnected)
}

// Emit sends cmd when authenticated. Otherwise the command is dropped, the
// user is told, and errs.ErrNotConnected is returned.
func (m *Manager) Emit(cmd protocol.Command) error {
	if m.state != Authenticated || m.link == nil {
		metrics.CommandsRejected.WithLabelValues(cmd.CommandType()).Inc()
		m.cfg.Notify.Post("Not connected to server", notify.Error)
		return errors.Wrapf(errs.ErrNotConnected, "session: %s", cmd.CommandType())
	}
	return m.send(cmd)
}

func (m *Manager) send(cmd protocol.Command) error {
	if err := m.link.Send(cmd); err != nil {
		metrics.CommandsRejected.WithLabelValues(cmd.CommandType()).Inc()
		log.Warn().Err(err).Str("component", "session").Str("command", cmd.CommandType()).Msg("send failed")
		return errors.Wrapf(err, "session: send %s", cmd.CommandType())
	}
	metrics.CommandsSent.WithLabelValues(cmd.CommandType()).Inc()
	return nil
}

func (m *Manager) handle(gen uint64, ev protocol.Event) {
	if gen != m.gen || m.link == nil {
		metrics.StaleEvents.WithLabelValues(ev.EventType()).Inc()
		log.Debug().Str("component", "session").Str("event", ev.EventType()).Msg("dropping event from closed link")
		return
	}
	metrics.EventsReceived.WithLabelValues(ev.EventType()).Inc()

	switch e := ev.(type) {
	case protocol.Opened:
		m.onOpened()
	case protocol.AuthenticationSuccess:
		m.onAuthenticated(e)
	case protocol.AuthenticationFailed:
		if m.state != Authenticating {
			metrics.StaleEvents.WithLabelValues(ev.EventType()).Inc()
			return
		}
		msg := e.Message
		if msg == "" {
			msg = "Authentication failed"
		}
		m.failAuth(msg)
	case protocol.Disconnected:
		m.onTransportLost(e.Err)
	default:
		if m.onEvent != nil {
			m.onEvent(ev)
		}
	}
}

func (m *Manager) onOpened() {
	if m.state != Connecting {
		return
	}
	if err := m.send(protocol.Authenticate{UserID: m.localID}); err != nil {
		m.onTransportLost(err)
		return
	}
	m.setState(Authenticating)

	if m.cfg.AuthTimeout > 0 {
		gen := m.gen
		m.authTimer = m.cfg.Sched.AfterFunc(m.cfg.AuthTimeout, func() {
			m.authTimer = nil
			if gen == m.gen && m.state == Authenticating {
				log.Warn().Str("component", "session").Dur("timeout", m.cfg.AuthTimeout).Msg("no authentication reply")
				m.failAuth("Authentication timed out")
			}
		})
	}
}

func (m *Manager) onAuthenticated(e protocol.AuthenticationSuccess) {
	if m.state != Authenticating {
		metrics.StaleEvents.WithLabelValues(e.EventType()).Inc()
		return
	}
	m.stopAuthTimer()
	m.setState(Authenticated)
	m.cfg.Notify.PostShort("Connected to chat server", notify.Success)
}

func (m *Manager) failAuth(msg string) {
	log.Warn().Str("component", "session").Str("user_id", m.localID.String()).Str("reason", msg).
		Err(errs.ErrAuthenticationFailed).Msg("authentication failed")
	m.cfg.Notify.Post(msg, notify.Error)
	m.dropLink()
	m.setState(Disconnected)
}

func (m *Manager) onTransportLost(cause error) {
	if m.state == Disconnected {
		return
	}
	err := errors.Wrap(errs.ErrTransportLost, "session")
	if cause != nil {
		err = errors.Wrapf(errs.ErrTransportLost, "session: %v", cause)
	}
	log.Warn().Err(err).Str("component", "session").Str("state", m.state.String()).Msg("transport lost")
	text := "Disconnected from server"
	if m.state == Connecting {
		text = "Unable to connect to server"
	}
	m.dropLink()
	m.setState(Disconnected)
	m.cfg.Notify.Post(text, notify.Error)
}

// dropLink closes the current link and invalidates its generation.
func (m *Manager) dropLink() {
	m.stopAuthTimer()
	m.gen++
	if m.link != nil {
		if err := m.link.Close(); err != nil {
			log.Debug().Err(err).Str("component", "session").Msg("link close")
		}
		m.link = nil
	}
}

func (m *Manager) stopAuthTimer() {
	if m.authTimer != nil {
		m.authTimer.Stop()
		m.authTimer = nil
	}
}

func (m *Manager) setState(next State) {
	prev := m.state
	if prev == next {
		return
	}
	m.state = next
	metrics.ConnectionState.Set(float64(next))
	log.Info().Str("component", "session").Str("from", prev.String()).Str("to", next.String()).Msg("connection state")
	for _, fn := range m.listeners {
		fn(prev, next)
	}
}
