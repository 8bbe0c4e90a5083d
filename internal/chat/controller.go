// Package chat owns the single active two-party conversation: opening it,
// its transcript, and sending into it.
package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/notify"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/roster"
)

// Kind distinguishes user messages from locally generated ones.
type Kind int

const (
	Text Kind = iota
	System
)

func (k Kind) String() string {
	if k == System {
		return protocol.MessageTypeSystem
	}
	return protocol.MessageTypeText
}

func kindOf(wire string) Kind {
	if wire == protocol.MessageTypeSystem {
		return System
	}
	return Text
}

// Message is one transcript entry.
type Message struct {
	ID        protocol.ID
	SenderID  protocol.ID
	Content   string
	Kind      Kind
	Timestamp time.Time
}

// Session is the active conversation.
type Session struct {
	ChatID      protocol.ID
	PeerID      protocol.ID
	Counterpart roster.Peer
	Messages    []Message
	Joined      bool
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.Messages = append([]Message(nil), s.Messages...)
	if s.Counterpart.LastSeen != nil {
		ls := *s.Counterpart.LastSeen
		s.Counterpart.LastSeen = &ls
	}
	return s
}

// Emitter sends commands through the connection gate.
type Emitter interface {
	Emit(cmd protocol.Command) error
}

// Notifier posts user-visible notifications.
type Notifier interface {
	Post(text string, sev notify.Severity) notify.Notification
}

// Controller manages the current chat session. It is not safe for
// concurrent use; the coordinator owns it.
type Controller struct {
	out     Emitter
	note    Notifier
	now     func() time.Time
	localID protocol.ID

	current *Session
	pending protocol.ID
}

// NewController creates a controller with no active session.
func NewController(out Emitter, note Notifier, now func() time.Time) *Controller {
	return &Controller{out: out, note: note, now: now}
}

// SetLocalUser sets the id used as sender and requester.
func (c *Controller) SetLocalUser(id protocol.ID) {
	c.localID = id
}

// Current returns the active session, if any. The returned value shares
// nothing with the controller.
func (c *Controller) Current() (Session, bool) {
	if c.current == nil {
		return Session{}, false
	}
	return c.current.Clone(), true
}

// ChatID returns the active chat id, or "" when there is none.
func (c *Controller) ChatID() protocol.ID {
	if c.current == nil {
		return ""
	}
	return c.current.ChatID
}

// PeerID returns the active counterpart id, or "" when there is none.
func (c *Controller) PeerID() protocol.ID {
	if c.current == nil {
		return ""
	}
	return c.current.PeerID
}

// Pending returns the target of the outstanding start_chat request.
func (c *Controller) Pending() protocol.ID {
	return c.pending
}

// StartChat asks the relay to open the chat with target. Only the latest
// request can be acknowledged.
func (c *Controller) StartChat(target protocol.ID) error {
	if target == "" {
		c.note.Post("No user selected", notify.Error)
		return errors.Wrap(errs.ErrInvalidIntent, "chat: empty target")
	}
	if err := c.out.Emit(protocol.StartChat{CurrentUserID: c.localID, TargetUserID: target}); err != nil {
		return err
	}
	c.pending = target
	return nil
}

// OnChatStarted applies a start_chat acknowledgment. Acks for anything but
// the latest pending target are stale.
func (c *Controller) OnChatStarted(ev protocol.ChatStarted) error {
	if c.pending == "" || ev.OtherUser.ID != c.pending {
		return errors.Wrapf(errs.ErrStaleEvent, "chat: ack for %s, pending %q", ev.OtherUser.ID, c.pending)
	}
	c.pending = ""

	peer := roster.PeerFromRecord(ev.OtherUser)
	s := &Session{
		ChatID:      ev.ChatID,
		PeerID:      peer.ID,
		Counterpart: peer,
	}
	c.current = s

	if err := c.out.Emit(protocol.JoinChat{ChatID: ev.ChatID, UserID: c.localID}); err != nil {
		log.Warn().Err(err).Str("component", "chat").Str("chat_id", ev.ChatID.String()).Msg("join_chat not sent")
	} else {
		s.Joined = true
	}

	s.Messages = append(s.Messages, Message{
		ID:        protocol.ID(uuid.NewString()),
		Content:   fmt.Sprintf("You started a conversation with %s. Say hello! 👋", peer.Name()),
		Kind:      System,
		Timestamp: c.now(),
	})
	log.Info().Str("component", "chat").Str("chat_id", ev.ChatID.String()).Str("peer", peer.Name()).Msg("chat started")
	return nil
}

// SendMessage sends content into the active chat. Blank content is ignored.
// Nothing is appended locally; the relay echoes the message back.
func (c *Controller) SendMessage(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if c.current == nil {
		return errors.Wrap(errs.ErrInvalidIntent, "chat: no active chat")
	}
	if err := ValidateMessage(content); err != nil {
		c.note.Post(err.Error(), notify.Error)
		return err
	}
	return c.out.Emit(protocol.SendMessage{
		ChatID:   c.current.ChatID,
		SenderID: c.localID,
		Content:  content,
		Type:     protocol.MessageTypeText,
	})
}

// OnNewMessage appends a relayed message to the transcript when it belongs
// to the active chat.
func (c *Controller) OnNewMessage(ev protocol.NewMessage) error {
	if c.current == nil || ev.ChatID != c.current.ChatID {
		return errors.Wrapf(errs.ErrStaleEvent, "chat: message for %s", ev.ChatID)
	}
	ts := ev.Timestamp.Time
	if ts.IsZero() {
		ts = c.now()
	}
	c.current.Messages = append(c.current.Messages, Message{
		ID:        ev.ID,
		SenderID:  ev.SenderID,
		Content:   ev.Content,
		Kind:      kindOf(ev.Type),
		Timestamp: ts,
	})
	return nil
}

// UpdateCounterpart refreshes the cached counterpart after a roster change.
func (c *Controller) UpdateCounterpart(p roster.Peer) {
	if c.current != nil && c.current.PeerID == p.ID {
		c.current.Counterpart = p
	}
}

// Close discards the active session and any pending request.
func (c *Controller) Close() {
	c.current = nil
	c.pending = ""
}

// OnChatDeleted tears down the active session when it matches chatID. It
// reports whether anything changed.
func (c *Controller) OnChatDeleted(chatID protocol.ID) bool {
	if c.current == nil || c.current.ChatID != chatID {
		return false
	}
	c.Close()
	c.note.Post("This chat has been deleted by admin", notify.Error)
	return true
}
