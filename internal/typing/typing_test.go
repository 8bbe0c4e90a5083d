package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/sched"
)

type recorder struct {
	sent []protocol.Command
	err  error
}

func (r *recorder) Emit(cmd protocol.Command) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, cmd)
	return nil
}

func (r *recorder) count(cmdType string) int {
	n := 0
	for _, c := range r.sent {
		if c.CommandType() == cmdType {
			n++
		}
	}
	return n
}

func newTestCoordinator() (*Coordinator, *recorder, *sched.Manual) {
	rec := &recorder{}
	clock := sched.NewManual(time.Unix(1700000000, 0))
	c := New(rec, clock, DefaultWindow)
	c.SetLocalUser("42")
	c.Reset("c1", "1")
	return c, rec, clock
}

func TestOnLocalInput_OneStartOneStopPerEpisode(t *testing.T) {
	c, rec, clock := newTestCoordinator()

	for i := 0; i < 10; i++ {
		require.NoError(t, c.OnLocalInput())
		clock.Advance(300 * time.Millisecond)
	}
	require.Equal(t, 1, rec.count(protocol.TypeTypingStart))
	require.Equal(t, 0, rec.count(protocol.TypeTypingStop))
	require.True(t, c.State().LocalActive)

	// The stop goes out exactly one window after the last keystroke.
	clock.Advance(699 * time.Millisecond)
	require.Equal(t, 0, rec.count(protocol.TypeTypingStop))
	clock.Advance(time.Millisecond)
	require.Equal(t, 1, rec.count(protocol.TypeTypingStop))
	require.False(t, c.State().LocalActive)

	require.Equal(t, protocol.TypingStart{ChatID: "c1", UserID: "42"}, rec.sent[0])
	require.Equal(t, protocol.TypingStop{ChatID: "c1", UserID: "42"}, rec.sent[1])

	// A new keystroke opens a new episode.
	require.NoError(t, c.OnLocalInput())
	require.Equal(t, 2, rec.count(protocol.TypeTypingStart))
}

func TestOnLocalInput_NoChat(t *testing.T) {
	c, rec, clock := newTestCoordinator()
	c.Reset("", "")

	require.NoError(t, c.OnLocalInput())
	clock.Advance(2 * time.Second)
	require.Empty(t, rec.sent)
	require.Equal(t, 0, clock.Pending())
}

func TestStopLocal(t *testing.T) {
	c, rec, clock := newTestCoordinator()

	require.NoError(t, c.OnLocalInput())
	c.StopLocal()
	require.Equal(t, 1, rec.count(protocol.TypeTypingStop))
	require.Equal(t, 0, clock.Pending())

	// Idempotent.
	c.StopLocal()
	require.Equal(t, 1, rec.count(protocol.TypeTypingStop))
}

func TestReset_CancelsPendingStop(t *testing.T) {
	c, rec, clock := newTestCoordinator()

	require.NoError(t, c.OnLocalInput())
	require.NoError(t, c.OnRemoteTyping(protocol.UserTyping{UserID: "1", Username: "ann", Typing: true}))
	c.Reset("c2", "2")

	clock.Advance(5 * time.Second)
	require.Equal(t, 0, rec.count(protocol.TypeTypingStop))
	require.Equal(t, State{}, c.State())

	require.NoError(t, c.OnLocalInput())
	require.Equal(t, protocol.TypingStart{ChatID: "c2", UserID: "42"}, rec.sent[len(rec.sent)-1])
}

func TestOnRemoteTyping(t *testing.T) {
	c, _, _ := newTestCoordinator()

	require.NoError(t, c.OnRemoteTyping(protocol.UserTyping{UserID: "1", Username: "ann", Typing: true}))
	require.Equal(t, State{RemoteIsTyping: true, RemoteName: "ann"}, c.State())

	require.NoError(t, c.OnRemoteTyping(protocol.UserTyping{UserID: "1", Username: "ann", Typing: false}))
	require.Equal(t, State{}, c.State())

	err := c.OnRemoteTyping(protocol.UserTyping{UserID: "7", Typing: true})
	require.True(t, errs.Is(err, errs.ErrStaleEvent))
	require.False(t, c.State().RemoteIsTyping)
}

func TestStopLocal_GateRejection(t *testing.T) {
	c, rec, clock := newTestCoordinator()
	require.NoError(t, c.OnLocalInput())

	rec.err = errs.ErrNotConnected
	clock.Advance(DefaultWindow)
	require.False(t, c.State().LocalActive)
	require.Equal(t, 0, rec.count(protocol.TypeTypingStop))

	// The next keystroke starts a fresh episode.
	rec.err = nil
	require.NoError(t, c.OnLocalInput())
	require.Equal(t, 2, rec.count(protocol.TypeTypingStart))
}
