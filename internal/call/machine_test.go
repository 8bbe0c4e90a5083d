package call

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/roster"
)

type recorder struct {
	sent   []protocol.Command
	err    error
	posted []notify.Notification
}

func (r *recorder) Emit(cmd protocol.Command) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, cmd)
	return nil
}

func (r *recorder) Post(text string, sev notify.Severity) notify.Notification {
	n := notify.Notification{Text: text, Severity: sev}
	r.posted = append(r.posted, n)
	return n
}

func (r *recorder) lastPost() notify.Notification {
	return r.posted[len(r.posted)-1]
}

type transition struct{ from, to Phase }

var ann = roster.Peer{ID: "1", Username: "ann", DisplayName: "Ann"}

func newTestMachine() (*Machine, *recorder, *[]transition) {
	rec := &recorder{}
	m := New(rec, rec)
	m.SetLocalUser("42")
	var seen []transition
	m.OnTransition(func(from, to Phase) { seen = append(seen, transition{from, to}) })
	return m, rec, &seen
}

func incoming(callID string) protocol.IncomingCall {
	return protocol.IncomingCall{
		CallID:   protocol.ID(callID),
		Caller:   protocol.UserRecord{ID: "1", Username: "ann", DisplayName: "Ann"},
		CallType: protocol.CallTypeVoice,
	}
}

func TestStartOutgoing_RejectedThenIdle(t *testing.T) {
	m, rec, seen := newTestMachine()

	require.NoError(t, m.StartOutgoing(protocol.CallTypeVideo, ann))
	require.Equal(t, Outgoing, m.Phase())
	require.Equal(t, protocol.InitiateCall{CallerID: "42", ReceiverID: "1", CallType: "video"}, rec.sent[0])
	require.Equal(t, "Calling Ann…", rec.lastPost().Text)

	require.NoError(t, m.OnInitiated(protocol.CallInitiated{CallID: "call-1", Status: "ringing"}))
	cur, _ := m.Current()
	require.Equal(t, protocol.ID("call-1"), cur.CallID)

	require.NoError(t, m.OnRejected(protocol.CallRejected{CallID: "call-1"}))
	require.Equal(t, Idle, m.Phase())
	_, ok := m.Current()
	require.False(t, ok)
	require.Equal(t, notify.Error, rec.lastPost().Severity)
	require.Equal(t, "Call was rejected", rec.lastPost().Text)

	require.Equal(t, []transition{{Idle, Outgoing}, {Outgoing, Ended}, {Ended, Idle}}, *seen)
}

func TestStartOutgoing_RejectedWhileConnected(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.StartOutgoing(protocol.CallTypeVoice, ann))
	require.NoError(t, m.OnAccepted(protocol.CallAccepted{}))
	require.Equal(t, Connected, m.Phase())
	sent := len(rec.sent)

	err := m.StartOutgoing(protocol.CallTypeVideo, roster.Peer{ID: "2"})
	require.True(t, errs.Is(err, errs.ErrInvalidIntent))
	require.Equal(t, Connected, m.Phase())
	require.Len(t, rec.sent, sent)
	require.Equal(t, "A call is already in progress", rec.lastPost().Text)
}

func TestStartOutgoing_Validation(t *testing.T) {
	m, rec, _ := newTestMachine()

	err := m.StartOutgoing("fax", ann)
	require.True(t, errs.Is(err, errs.ErrInvalidIntent))

	rec.err = errs.ErrNotConnected
	err = m.StartOutgoing(protocol.CallTypeVoice, ann)
	require.True(t, errs.Is(err, errs.ErrNotConnected))
	require.Equal(t, Idle, m.Phase())
}

func TestIncoming_Accept(t *testing.T) {
	m, rec, seen := newTestMachine()

	require.NoError(t, m.OnIncoming(incoming("call-9")))
	require.Equal(t, Incoming, m.Phase())
	require.Equal(t, "Incoming voice call from Ann", rec.lastPost().Text)

	require.NoError(t, m.Accept())
	require.Equal(t, Connected, m.Phase())
	require.Equal(t, protocol.CallResponse{CallID: "call-9", UserID: "42", Accepted: true}, rec.sent[0])

	require.NoError(t, m.End())
	require.Equal(t, protocol.EndCall{CallID: "call-9", UserID: "42"}, rec.sent[1])
	require.Equal(t, Idle, m.Phase())
	require.Equal(t, []transition{{Idle, Incoming}, {Incoming, Connected}, {Connected, Ended}, {Ended, Idle}}, *seen)
}

func TestIncoming_Decline(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.OnIncoming(incoming("call-9")))

	require.NoError(t, m.Decline())
	require.Equal(t, protocol.CallResponse{CallID: "call-9", UserID: "42", Accepted: false}, rec.sent[0])
	require.Equal(t, Idle, m.Phase())
}

func TestOutgoing_Cancel(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.StartOutgoing(protocol.CallTypeVoice, ann))
	require.NoError(t, m.OnInitiated(protocol.CallInitiated{CallID: "call-1"}))

	require.NoError(t, m.Decline())
	require.Equal(t, protocol.EndCall{CallID: "call-1", UserID: "42"}, rec.sent[1])
	require.Equal(t, Idle, m.Phase())
}

func TestIncoming_WhileBusyIsDeclined(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.StartOutgoing(protocol.CallTypeVoice, ann))

	require.NoError(t, m.OnIncoming(incoming("call-2")))
	require.Equal(t, Outgoing, m.Phase())
	require.Equal(t, protocol.CallResponse{CallID: "call-2", UserID: "42", Accepted: false}, rec.sent[1])
}

func TestConnected_OnlyViaAcceptPaths(t *testing.T) {
	m, _, _ := newTestMachine()

	// Accept without an offer.
	require.True(t, errs.Is(m.Accept(), errs.ErrInvalidIntent))
	// Remote accept while idle.
	require.True(t, errs.Is(m.OnAccepted(protocol.CallAccepted{CallID: "x"}), errs.ErrStaleEvent))
	require.Equal(t, Idle, m.Phase())

	// Remote accept for an incoming call is not ours to apply.
	require.NoError(t, m.OnIncoming(incoming("call-3")))
	require.True(t, errs.Is(m.OnAccepted(protocol.CallAccepted{CallID: "call-3"}), errs.ErrStaleEvent))
	require.Equal(t, Incoming, m.Phase())

	// End is only for connected calls.
	require.True(t, errs.Is(m.End(), errs.ErrInvalidIntent))
}

func TestStraySignalsIgnored(t *testing.T) {
	m, rec, seen := newTestMachine()

	require.True(t, errs.Is(m.OnEnded(protocol.CallEnded{CallID: "a"}), errs.ErrStaleEvent))
	require.True(t, errs.Is(m.OnRejected(protocol.CallRejected{CallID: "a"}), errs.ErrStaleEvent))
	require.True(t, errs.Is(m.OnInitiated(protocol.CallInitiated{CallID: "a"}), errs.ErrStaleEvent))
	require.Empty(t, *seen)
	require.Empty(t, rec.posted)

	require.NoError(t, m.OnIncoming(incoming("call-4")))
	require.True(t, errs.Is(m.OnEnded(protocol.CallEnded{CallID: "other"}), errs.ErrStaleEvent))
	require.Equal(t, Incoming, m.Phase())

	require.NoError(t, m.OnEnded(protocol.CallEnded{CallID: "call-4"}))
	require.Equal(t, Idle, m.Phase())
	require.Equal(t, "Call ended", rec.lastPost().Text)
}

func TestReset(t *testing.T) {
	m, rec, seen := newTestMachine()
	require.NoError(t, m.OnIncoming(incoming("call-5")))
	posts := len(rec.posted)

	m.Reset()
	require.Equal(t, Idle, m.Phase())
	require.Len(t, rec.posted, posts)
	require.Empty(t, rec.sent)
	require.Equal(t, []transition{{Idle, Incoming}, {Incoming, Ended}, {Ended, Idle}}, *seen)

	m.Reset()
	require.Len(t, *seen, 3)
}

func TestInvalidIntentsNotify(t *testing.T) {
	tests := []struct {
		name string
		do   func(m *Machine) error
		text string
	}{
		{"accept while idle", (*Machine).Accept, "No incoming call"},
		{"decline while idle", (*Machine).Decline, "No call to decline"},
		{"end while idle", (*Machine).End, "No active call"},
		{"unknown kind", func(m *Machine) error { return m.StartOutgoing("fax", ann) }, "Unknown call type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, rec, seen := newTestMachine()

			err := tt.do(m)
			require.True(t, errs.Is(err, errs.ErrInvalidIntent))
			require.Equal(t, Idle, m.Phase())
			require.Empty(t, rec.sent)
			require.Empty(t, *seen)
			require.Len(t, rec.posted, 1)
			require.Equal(t, tt.text, rec.lastPost().Text)
			require.Equal(t, notify.Error, rec.lastPost().Severity)
		})
	}
}

func TestEndWhileIncomingNotifies(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.OnIncoming(incoming("call-6")))

	require.True(t, errs.Is(m.End(), errs.ErrInvalidIntent))
	require.Equal(t, Incoming, m.Phase())
	require.Equal(t, "No active call", rec.lastPost().Text)
}

func TestOutgoing_CancelBeforeInitiated(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.StartOutgoing(protocol.CallTypeVoice, ann))

	require.NoError(t, m.Decline())
	require.Equal(t, Idle, m.Phase())
	require.Len(t, rec.sent, 1, "end_call waits for the relay id")

	require.NoError(t, m.OnInitiated(protocol.CallInitiated{CallID: "call-7", Status: "ringing"}))
	require.Equal(t, protocol.EndCall{CallID: "call-7", UserID: "42"}, rec.sent[1])
	require.Equal(t, Idle, m.Phase())

	// Only once.
	require.True(t, errs.Is(m.OnInitiated(protocol.CallInitiated{CallID: "call-7"}), errs.ErrStaleEvent))
	require.Len(t, rec.sent, 2)
}

func TestOutgoing_CancelledIDGoesToCancelledCall(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.StartOutgoing(protocol.CallTypeVoice, ann))
	require.NoError(t, m.Decline())
	require.NoError(t, m.StartOutgoing(protocol.CallTypeVideo, ann))

	// The relay answers in order: first the cancelled call, then the new one.
	require.NoError(t, m.OnInitiated(protocol.CallInitiated{CallID: "call-a"}))
	require.NoError(t, m.OnInitiated(protocol.CallInitiated{CallID: "call-b"}))

	require.Equal(t, protocol.EndCall{CallID: "call-a", UserID: "42"}, rec.sent[2])
	cur, ok := m.Current()
	require.True(t, ok)
	require.Equal(t, protocol.ID("call-b"), cur.CallID)
	require.Equal(t, Outgoing, cur.Phase)
}

func TestReset_ForgetsUnassignedCalls(t *testing.T) {
	m, rec, _ := newTestMachine()
	require.NoError(t, m.StartOutgoing(protocol.CallTypeVoice, ann))
	require.NoError(t, m.Decline())

	m.Reset()
	require.True(t, errs.Is(m.OnInitiated(protocol.CallInitiated{CallID: "call-8"}), errs.ErrStaleEvent))
	require.Len(t, rec.sent, 1)
}
