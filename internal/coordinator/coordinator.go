// Package coordinator runs the session coordinator: a single goroutine that
// owns the connection, roster, chat, typing, call and notification state.
// Transport events, timer callbacks, roster results and user intents are all
// queued on one inbox and applied one at a time, so components never see
// concurrent access.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/call"
	"github.com/mpchat/client/internal/chat"
	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/metrics"
	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/roster"
	"github.com/mpchat/client/internal/sched"
	"github.com/mpchat/client/internal/session"
	"github.com/mpchat/client/internal/typing"
)

// ErrStopped is returned by intents issued after Run has returned.
var ErrStopped = errors.New("coordinator: stopped")

// DefaultInboxSize is the inbox capacity.
const DefaultInboxSize = 256

// Options configures a Coordinator.
type Options struct {
	// Dial returns a fresh link for each connection attempt.
	Dial func() session.Link
	// Directory serves LoadRoster. Optional.
	Directory roster.Directory
	// Sched is the time source. Defaults to sched.Real.
	Sched sched.Scheduler

	Notify       notify.Config
	AuthTimeout  time.Duration
	TypingWindow time.Duration
	InboxSize    int
}

// Coordinator is the actor owning all session state.
type Coordinator struct {
	inbox chan func()
	done  chan struct{}
	once  sync.Once

	runCtx context.Context
	sched  sched.Scheduler
	dir    roster.Directory

	conn   *session.Manager
	roster *roster.Tracker
	chat   *chat.Controller
	typing *typing.Coordinator
	call   *call.Machine
	notes  *notify.Queue

	mu      sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
	callObs []func(from, to call.Phase)
}

// New wires a coordinator. Call Run to start it.
func New(opts Options) *Coordinator {
	if opts.Sched == nil {
		opts.Sched = sched.Real{}
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = DefaultInboxSize
	}

	c := &Coordinator{
		inbox:  make(chan func(), opts.InboxSize),
		done:   make(chan struct{}),
		runCtx: context.Background(),
		dir:    opts.Directory,
		subs:   make(map[int]func(Snapshot)),
	}
	c.sched = sched.Serialized(opts.Sched, c.post)

	c.notes = notify.NewQueue(c.sched, opts.Notify)
	c.conn = session.NewManager(session.Config{
		Dial:        opts.Dial,
		Post:        c.post,
		Sched:       c.sched,
		Notify:      c.notes,
		AuthTimeout: opts.AuthTimeout,
	})
	c.roster = roster.NewTracker(c.sched.Now)
	c.chat = chat.NewController(c.conn, c.notes, c.sched.Now)
	c.typing = typing.New(c.conn, c.sched, opts.TypingWindow)
	c.call = call.New(c.conn, c.notes)

	c.conn.OnEvent(c.dispatch)
	c.conn.OnStateChange(c.onStateChange)
	c.call.OnTransition(func(from, to call.Phase) {
		c.mu.Lock()
		obs := append([]func(from, to call.Phase){}, c.callObs...)
		c.mu.Unlock()
		for _, fn := range obs {
			fn(from, to)
		}
	})
	return c
}

// Run processes the inbox until ctx is cancelled. The link is closed on
// the way out.
func (c *Coordinator) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer c.once.Do(func() { close(c.done) })

	for {
		select {
		case <-ctx.Done():
			c.conn.Disconnect()
			return ctx.Err()
		case fn := <-c.inbox:
			fn()
		}
	}
}

// post queues fn on the inbox. Work posted after Run returns is dropped.
func (c *Coordinator) post(fn func()) {
	select {
	case c.inbox <- func() { fn(); c.publish() }:
	case <-c.done:
	}
}

// do runs fn on the actor and waits for its result.
func (c *Coordinator) do(ctx context.Context, publish bool, fn func() error) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	reply := make(chan error, 1)
	task := func() {
		err := fn()
		if publish {
			c.publish()
		}
		reply <- err
	}
	select {
	case c.inbox <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Subscribe registers fn to receive a snapshot after every change. fn runs
// on the actor goroutine and must not block or call back into the
// coordinator synchronously.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// OnCallTransition registers fn for every call phase change, including the
// transient Ended phase that snapshots never show.
func (c *Coordinator) OnCallTransition(fn func(from, to call.Phase)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callObs = append(c.callObs, fn)
}

func (c *Coordinator) publish() {
	c.mu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	snap := c.snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

// dispatch fans a relay event out to the component that owns it.
func (c *Coordinator) dispatch(ev protocol.Event) {
	var err error
	switch e := ev.(type) {
	case protocol.UserStatusChanged:
		err = c.roster.ApplyStatusChange(e.UserID, e.IsOnline)
		if p, ok := c.roster.Get(e.UserID); ok {
			c.chat.UpdateCounterpart(p)
		}
	case protocol.ChatStarted:
		if err = c.chat.OnChatStarted(e); err == nil {
			c.chatChanged()
		}
	case protocol.UserJoined:
		log.Debug().Str("component", "coordinator").Str("chat_id", e.ChatID.String()).Str("user_id", e.UserID.String()).Msg("user joined")
	case protocol.NewMessage:
		err = c.chat.OnNewMessage(e)
	case protocol.UserTyping:
		err = c.typing.OnRemoteTyping(e)
	case protocol.MessageNotification:
		c.notes.Bump()
		c.notes.Post(fmt.Sprintf("New message from %s: %s", c.roster.DisplayName(e.SenderID), e.Content), notify.Info)
	case protocol.IncomingCall:
		err = c.call.OnIncoming(e)
	case protocol.CallAccepted:
		err = c.call.OnAccepted(e)
	case protocol.CallRejected:
		err = c.call.OnRejected(e)
	case protocol.CallEnded:
		err = c.call.OnEnded(e)
	case protocol.CallInitiated:
		err = c.call.OnInitiated(e)
	case protocol.AccountDeleted:
		c.onAccountDeleted(e)
	case protocol.ChatDeleted:
		if c.chat.OnChatDeleted(e.ChatID) {
			c.chatChanged()
		}
	case protocol.ErrorEvent:
		msg := e.Message
		if msg == "" {
			msg = "Server error"
		}
		c.notes.Post(msg, notify.Error)
	default:
		log.Warn().Str("component", "coordinator").Str("event", ev.EventType()).Msg("unhandled event")
	}

	switch {
	case err == nil:
	case errs.Is(err, errs.ErrStaleEvent):
		metrics.StaleEvents.WithLabelValues(ev.EventType()).Inc()
		log.Debug().Err(err).Str("component", "coordinator").Msg("stale event dropped")
	default:
		log.Warn().Err(err).Str("component", "coordinator").Str("event", ev.EventType()).Msg("event handling failed")
	}
}

func (c *Coordinator) onAccountDeleted(e protocol.AccountDeleted) {
	if e.UserID == "" || e.UserID == c.conn.LocalUserID() {
		c.notes.Post("Your account has been deleted by admin", notify.Error)
		c.conn.Disconnect()
		return
	}

	name := c.roster.DisplayName(e.UserID)
	c.roster.Remove(e.UserID)
	if cur, ok := c.call.Current(); ok && cur.CounterpartyID == e.UserID {
		c.call.Reset()
	}
	if c.chat.PeerID() == e.UserID {
		c.chat.Close()
		c.chatChanged()
		c.notes.Post(fmt.Sprintf("%s's account has been deleted", name), notify.Error)
	}
}

func (c *Coordinator) onStateChange(prev, next session.State) {
	if next != session.Disconnected {
		return
	}
	// Everything tied to the connection is ephemeral. The roster stays.
	c.call.Reset()
	c.chat.Close()
	c.chatChanged()
}

// chatChanged rebinds the typing coordinator to the current chat.
func (c *Coordinator) chatChanged() {
	c.typing.Reset(c.chat.ChatID(), c.chat.PeerID())
}

func (c *Coordinator) setLocalUser(id protocol.ID) {
	c.chat.SetLocalUser(id)
	c.typing.SetLocalUser(id)
	c.call.SetLocalUser(id)
}
