package coordinator

import (
	"time"

	"github.com/mpchat/client/internal/call"
	"github.com/mpchat/client/internal/chat"
	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/roster"
	"github.com/mpchat/client/internal/session"
	"github.com/mpchat/client/internal/typing"
)

// Snapshot is a deep copy of the coordinator state for rendering.
type Snapshot struct {
	At           time.Time
	Session      session.Snapshot
	Roster       []roster.Peer
	Chat         *chat.Session
	PendingChat  protocol.ID
	Typing       typing.State
	CallPhase    call.Phase
	Call         *call.Session
	Notification *notify.Notification
	Badge        int
	Title        string
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{
		At:          c.sched.Now(),
		Session:     c.conn.Snapshot(),
		Roster:      c.roster.Peers(),
		PendingChat: c.chat.Pending(),
		Typing:      c.typing.State(),
		CallPhase:   c.call.Phase(),
		Badge:       c.notes.Badge(),
		Title:       c.notes.Title(),
	}
	if cur, ok := c.chat.Current(); ok {
		s.Chat = &cur
	}
	if cur, ok := c.call.Current(); ok {
		s.Call = &cur
	}
	if n, ok := c.notes.Current(); ok {
		s.Notification = &n
	}
	return s
}

// Record converts the snapshot to the stored session record.
func (s Snapshot) Record() session.Record {
	rec := session.Record{
		UserID:    s.Session.LocalUserID.String(),
		State:     s.Session.State.String(),
		CallPhase: s.CallPhase.String(),
		Unread:    s.Badge,
	}
	if s.Chat != nil {
		rec.ChatID = s.Chat.ChatID.String()
		rec.PeerID = s.Chat.PeerID.String()
	}
	if s.Call != nil {
		rec.CallID = s.Call.CallID.String()
	}
	if !s.At.IsZero() {
		rec.LastActive = s.At.Unix()
	}
	return rec
}
