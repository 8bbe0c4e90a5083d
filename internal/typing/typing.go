// Package typing debounces the local typing indicator and tracks the
// counterpart's.
package typing

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/sched"
)

// DefaultWindow is the quiet period after the last keystroke that ends a
// typing episode.
const DefaultWindow = 1000 * time.Millisecond

// State is the presentational typing state.
type State struct {
	RemoteIsTyping bool
	RemoteName     string
	LocalActive    bool
}

// Emitter sends commands through the connection gate.
type Emitter interface {
	Emit(cmd protocol.Command) error
}

// Coordinator owns the typing episode timer for the active chat. It is not
// safe for concurrent use; the coordinator actor owns it.
type Coordinator struct {
	out     Emitter
	sched   sched.Scheduler
	window  time.Duration
	localID protocol.ID

	chatID protocol.ID
	peerID protocol.ID
	state  State
	timer  sched.Timer
}

// New creates a coordinator with no active chat. A non-positive window
// falls back to DefaultWindow.
func New(out Emitter, s sched.Scheduler, window time.Duration) *Coordinator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coordinator{out: out, sched: s, window: window}
}

// SetLocalUser sets the id sent with typing commands.
func (c *Coordinator) SetLocalUser(id protocol.ID) {
	c.localID = id
}

// State returns the current typing state.
func (c *Coordinator) State() State {
	return c.state
}

// Reset binds the coordinator to a new chat (or none) and discards all
// typing state, cancelling the pending stop.
func (c *Coordinator) Reset(chatID, peerID protocol.ID) {
	c.stopTimer()
	c.chatID = chatID
	c.peerID = peerID
	c.state = State{}
}

// OnLocalInput records a keystroke. The first keystroke of an episode sends
// typing_start; every keystroke pushes the typing_stop deadline back.
func (c *Coordinator) OnLocalInput() error {
	if c.chatID == "" {
		return nil
	}
	if !c.state.LocalActive {
		if err := c.out.Emit(protocol.TypingStart{ChatID: c.chatID, UserID: c.localID}); err != nil {
			return err
		}
		c.state.LocalActive = true
	}
	c.stopTimer()
	c.timer = c.sched.AfterFunc(c.window, func() {
		c.timer = nil
		c.endEpisode()
	})
	return nil
}

// StopLocal ends the current episode immediately.
func (c *Coordinator) StopLocal() {
	c.stopTimer()
	c.endEpisode()
}

// OnRemoteTyping applies the counterpart's indicator. Indicators from
// anyone else are stale.
func (c *Coordinator) OnRemoteTyping(ev protocol.UserTyping) error {
	if c.chatID == "" || ev.UserID != c.peerID {
		return errors.Wrapf(errs.ErrStaleEvent, "typing: indicator from %s", ev.UserID)
	}
	c.state.RemoteIsTyping = ev.Typing
	if ev.Typing {
		c.state.RemoteName = ev.Username
	} else {
		c.state.RemoteName = ""
	}
	return nil
}

func (c *Coordinator) endEpisode() {
	if !c.state.LocalActive {
		return
	}
	c.state.LocalActive = false
	if err := c.out.Emit(protocol.TypingStop{ChatID: c.chatID, UserID: c.localID}); err != nil {
		log.Debug().Err(err).Str("component", "typing").Str("chat_id", c.chatID.String()).Msg("typing_stop not sent")
	}
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
