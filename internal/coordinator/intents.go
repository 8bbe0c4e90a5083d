package coordinator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/metrics"
	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/roster"
	"github.com/mpchat/client/internal/session"
)

// Connect opens the relay connection for localUserID. It returns once the
// link is being dialed; progress shows up in snapshots.
func (c *Coordinator) Connect(ctx context.Context, localUserID protocol.ID) error {
	return c.do(ctx, true, func() error {
		if c.conn.State() == session.Disconnected {
			c.setLocalUser(localUserID)
		}
		return c.conn.Connect(c.runCtx, localUserID)
	})
}

// Disconnect closes the relay connection.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	return c.do(ctx, true, func() error {
		c.conn.Disconnect()
		return nil
	})
}

// LoadRoster fetches the roster from the directory and replaces the
// tracked one. The fetch runs on the caller's goroutine.
func (c *Coordinator) LoadRoster(ctx context.Context) error {
	if c.dir == nil {
		return errors.New("coordinator: no directory configured")
	}
	start := time.Now()
	records, err := c.dir.FetchRoster(ctx)
	metrics.RosterLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return errors.Wrap(err, "coordinator: load roster")
	}

	peers := make([]roster.Peer, 0, len(records))
	for _, r := range records {
		peers = append(peers, roster.PeerFromRecord(r))
	}
	return c.do(ctx, true, func() error {
		c.roster.Replace(peers)
		if p, ok := c.roster.Get(c.chat.PeerID()); ok {
			c.chat.UpdateCounterpart(p)
		}
		return nil
	})
}

// StartChat requests the conversation with peerID.
func (c *Coordinator) StartChat(ctx context.Context, peerID protocol.ID) error {
	return c.do(ctx, true, func() error {
		return c.chat.StartChat(peerID)
	})
}

// SendMessage sends content into the active chat and ends the local typing
// episode.
func (c *Coordinator) SendMessage(ctx context.Context, content string) error {
	return c.do(ctx, true, func() error {
		if err := c.chat.SendMessage(content); err != nil {
			return err
		}
		c.typing.StopLocal()
		return nil
	})
}

// CloseChat leaves the active chat.
func (c *Coordinator) CloseChat(ctx context.Context) error {
	return c.do(ctx, true, func() error {
		c.chat.Close()
		c.chatChanged()
		return nil
	})
}

// OnLocalInput reports a keystroke in the message composer.
func (c *Coordinator) OnLocalInput(ctx context.Context) error {
	return c.do(ctx, true, func() error {
		return c.typing.OnLocalInput()
	})
}

// StartOutgoingCall calls the counterpart of the active chat.
func (c *Coordinator) StartOutgoingCall(ctx context.Context, kind string) error {
	return c.do(ctx, true, func() error {
		cur, ok := c.chat.Current()
		if !ok {
			c.notes.Post("No active chat", notify.Error)
			return errors.Wrap(errs.ErrInvalidIntent, "coordinator: calls need an active chat")
		}
		peer := cur.Counterpart
		if p, ok := c.roster.Get(cur.PeerID); ok {
			peer = p
		}
		return c.call.StartOutgoing(kind, peer)
	})
}

// AcceptCall answers the incoming call.
func (c *Coordinator) AcceptCall(ctx context.Context) error {
	return c.do(ctx, true, c.call.Accept)
}

// DeclineCall refuses the incoming call or cancels the outgoing one.
func (c *Coordinator) DeclineCall(ctx context.Context) error {
	return c.do(ctx, true, c.call.Decline)
}

// EndCall hangs up the connected call.
func (c *Coordinator) EndCall(ctx context.Context) error {
	return c.do(ctx, true, c.call.End)
}

// DismissNotification clears the notification and the unread badge.
func (c *Coordinator) DismissNotification(ctx context.Context) error {
	return c.do(ctx, true, func() error {
		c.notes.Dismiss()
		return nil
	})
}

// Search filters the roster by name.
func (c *Coordinator) Search(ctx context.Context, query string) ([]roster.Peer, error) {
	var out []roster.Peer
	err := c.do(ctx, false, func() error {
		out = c.roster.Search(query)
		return nil
	})
	return out, err
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.do(ctx, false, func() error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

// Notify posts a notification on behalf of the view, e.g. for results of
// directory calls made outside the coordinator.
func (c *Coordinator) Notify(ctx context.Context, text string, sev notify.Severity) error {
	return c.do(ctx, true, func() error {
		c.notes.Post(text, sev)
		return nil
	})
}
