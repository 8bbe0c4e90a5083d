// Package call implements the signaling side of voice and video calls:
// offering, answering, and hanging up. Media is out of scope.
package call

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/metrics"
	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/roster"
)

// Phase is the call signaling state.
type Phase int

const (
	Idle Phase = iota
	Outgoing
	Incoming
	Connected
	Ended
)

func (p Phase) String() string {
	switch p {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	default:
		return "idle"
	}
}

// Direction says who placed the call.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// Session is the call in progress.
type Session struct {
	CallID           protocol.ID
	Direction        Direction
	CounterpartyID   protocol.ID
	CounterpartyName string
	Kind             string
	Phase            Phase
}

// Emitter sends commands through the connection gate.
type Emitter interface {
	Emit(cmd protocol.Command) error
}

// Notifier posts user-visible notifications.
type Notifier interface {
	Post(text string, sev notify.Severity) notify.Notification
}

// Machine holds at most one call. It is not safe for concurrent use; the
// coordinator owns it.
type Machine struct {
	out          Emitter
	note         Notifier
	localID      protocol.ID
	current      *Session
	onTransition func(from, to Phase)

	// unassigned counts outgoing calls that ended before the relay sent
	// their id. Their call_initiated arrives first and is answered with
	// end_call.
	unassigned int
}

// New creates an idle machine.
func New(out Emitter, note Notifier) *Machine {
	return &Machine{out: out, note: note}
}

// SetLocalUser sets the id sent with call commands.
func (m *Machine) SetLocalUser(id protocol.ID) {
	m.localID = id
}

// OnTransition registers a callback run after every phase change. A call
// that ends is reported as X -> Ended followed by Ended -> Idle.
func (m *Machine) OnTransition(fn func(from, to Phase)) {
	m.onTransition = fn
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	if m.current == nil {
		return Idle
	}
	return m.current.Phase
}

// Current returns a copy of the call in progress, if any.
func (m *Machine) Current() (Session, bool) {
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// StartOutgoing offers a kind call to peer. It is rejected unless idle.
func (m *Machine) StartOutgoing(kind string, peer roster.Peer) error {
	if kind != protocol.CallTypeVoice && kind != protocol.CallTypeVideo {
		return m.reject("Unknown call type", errors.Errorf("call: unknown call type %q", kind))
	}
	if m.current != nil {
		return m.reject("A call is already in progress", errors.Errorf("call: already %s", m.current.Phase))
	}
	if err := m.out.Emit(protocol.InitiateCall{CallerID: m.localID, ReceiverID: peer.ID, CallType: kind}); err != nil {
		return err
	}
	m.current = &Session{
		Direction:        Outbound,
		CounterpartyID:   peer.ID,
		CounterpartyName: peer.Name(),
		Kind:             kind,
		Phase:            Idle,
	}
	m.transition(Outgoing)
	m.note.Post(fmt.Sprintf("Calling %s…", peer.Name()), notify.Info)
	return nil
}

// OnInitiated records the relay-assigned id of the outgoing call. An id for
// a call that was already hung up is used to end it on the relay.
func (m *Machine) OnInitiated(ev protocol.CallInitiated) error {
	if m.unassigned > 0 && ev.CallID != "" {
		m.unassigned--
		log.Info().Str("component", "call").Str("call_id", ev.CallID.String()).Msg("ending call hung up before it was assigned")
		return m.out.Emit(protocol.EndCall{CallID: ev.CallID, UserID: m.localID})
	}
	if m.current == nil || m.current.Phase != Outgoing || m.current.CallID != "" {
		return m.stale(ev)
	}
	m.current.CallID = ev.CallID
	return nil
}

// OnIncoming applies a call offer. While another call exists the offer is
// declined and the current call is left alone.
func (m *Machine) OnIncoming(ev protocol.IncomingCall) error {
	caller := roster.PeerFromRecord(ev.Caller)
	if m.current != nil {
		log.Info().Str("component", "call").Str("call_id", ev.CallID.String()).Str("caller", caller.Name()).Msg("busy, declining incoming call")
		return m.out.Emit(protocol.CallResponse{CallID: ev.CallID, UserID: m.localID, Accepted: false})
	}
	kind := ev.CallType
	if kind == "" {
		kind = protocol.CallTypeVoice
	}
	m.current = &Session{
		CallID:           ev.CallID,
		Direction:        Inbound,
		CounterpartyID:   caller.ID,
		CounterpartyName: caller.Name(),
		Kind:             kind,
		Phase:            Idle,
	}
	m.transition(Incoming)
	m.note.Post(fmt.Sprintf("Incoming %s call from %s", kind, caller.Name()), notify.Info)
	return nil
}

// Accept answers the incoming call.
func (m *Machine) Accept() error {
	if m.current == nil || m.current.Phase != Incoming {
		return m.reject("No incoming call", errors.Errorf("call: cannot accept while %s", m.Phase()))
	}
	if err := m.out.Emit(protocol.CallResponse{CallID: m.current.CallID, UserID: m.localID, Accepted: true}); err != nil {
		return err
	}
	m.transition(Connected)
	m.note.Post("Call connected", notify.Success)
	return nil
}

// Decline refuses an incoming call or cancels an outgoing one.
func (m *Machine) Decline() error {
	switch m.Phase() {
	case Incoming:
		cmd := protocol.CallResponse{CallID: m.current.CallID, UserID: m.localID, Accepted: false}
		if err := m.out.Emit(cmd); err != nil {
			log.Warn().Err(err).Str("component", "call").Msg("decline not sent, ending locally")
		}
	case Outgoing:
		m.hangUp()
	default:
		return m.reject("No call to decline", errors.Errorf("call: cannot decline while %s", m.Phase()))
	}
	m.finish("Call ended", notify.Info)
	return nil
}

// End hangs up a connected call.
func (m *Machine) End() error {
	if m.current == nil || m.current.Phase != Connected {
		return m.reject("No active call", errors.Errorf("call: cannot end while %s", m.Phase()))
	}
	m.hangUp()
	m.finish("Call ended", notify.Info)
	return nil
}

// OnAccepted applies the receiver picking up an outgoing call.
func (m *Machine) OnAccepted(ev protocol.CallAccepted) error {
	if m.current == nil || m.current.Phase != Outgoing || !m.matches(ev.CallID) {
		return m.stale(ev)
	}
	m.transition(Connected)
	m.note.Post("Call connected", notify.Success)
	return nil
}

// OnRejected applies a refusal from the peer.
func (m *Machine) OnRejected(ev protocol.CallRejected) error {
	if m.current == nil || !m.matches(ev.CallID) {
		return m.stale(ev)
	}
	if p := m.current.Phase; p != Outgoing && p != Incoming {
		return m.stale(ev)
	}
	log.Info().Err(errs.ErrRemoteRejection).Str("component", "call").Str("call_id", m.current.CallID.String()).
		Str("by", ev.RejectedBy.String()).Msg("call rejected")
	m.finish("Call was rejected", notify.Error)
	return nil
}

// OnEnded applies a hang-up from the peer.
func (m *Machine) OnEnded(ev protocol.CallEnded) error {
	if m.current == nil || !m.matches(ev.CallID) {
		return m.stale(ev)
	}
	m.finish("Call ended", notify.Info)
	return nil
}

// Reset drops any call without signaling, as after a transport loss.
func (m *Machine) Reset() {
	m.unassigned = 0
	if m.current == nil {
		return
	}
	m.transition(Ended)
	m.current = nil
	m.report(Ended, Idle)
}

// hangUp sends end_call for the current call. Without a relay id yet, the
// command waits for call_initiated.
func (m *Machine) hangUp() {
	if m.current.CallID == "" {
		if m.current.Direction == Outbound {
			m.unassigned++
		}
		return
	}
	if err := m.out.Emit(protocol.EndCall{CallID: m.current.CallID, UserID: m.localID}); err != nil {
		log.Warn().Err(err).Str("component", "call").Msg("end_call not sent, ending locally")
	}
}

// reject refuses an intent that is invalid in the current phase.
func (m *Machine) reject(text string, cause error) error {
	m.note.Post(text, notify.Error)
	return errors.Wrap(errs.ErrInvalidIntent, cause.Error())
}

func (m *Machine) finish(text string, sev notify.Severity) {
	m.transition(Ended)
	m.current = nil
	m.report(Ended, Idle)
	m.note.Post(text, sev)
}

// matches treats a missing id on either side as a match: the relay may not
// have assigned one yet.
func (m *Machine) matches(id protocol.ID) bool {
	return id == "" || m.current.CallID == "" || id == m.current.CallID
}

func (m *Machine) stale(ev protocol.Event) error {
	log.Debug().Str("component", "call").Str("event", ev.EventType()).Str("phase", m.Phase().String()).Msg("ignoring stray call signal")
	return errors.Wrapf(errs.ErrStaleEvent, "call: %s while %s", ev.EventType(), m.Phase())
}

func (m *Machine) transition(to Phase) {
	from := m.current.Phase
	m.current.Phase = to
	m.report(from, to)
}

func (m *Machine) report(from, to Phase) {
	metrics.CallTransitions.WithLabelValues(from.String(), to.String()).Inc()
	log.Debug().Str("component", "call").Str("from", from.String()).Str("to", to.String()).Msg("call transition")
	if m.onTransition != nil {
		m.onTransition(from, to)
	}
}
