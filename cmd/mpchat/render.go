package main

import (
	"fmt"
	"io"

	"github.com/mpchat/client/internal/call"
	"github.com/mpchat/client/internal/coordinator"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/session"
)

// renderer prints what changed between consecutive snapshots. It runs on
// the coordinator goroutine.
type renderer struct {
	out io.Writer

	state  session.State
	chatID protocol.ID
	head   protocol.ID
	seen   int
	noteID string
	phase  call.Phase
	typing bool
	title  string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) render(s coordinator.Snapshot) {
	if s.Session.State != r.state {
		r.state = s.Session.State
		fmt.Fprintf(r.out, "* connection %s\n", r.state)
	}

	// The relay reuses chat ids, so a reopened chat is told apart by its
	// first message.
	var chatID, head protocol.ID
	if s.Chat != nil {
		chatID = s.Chat.ChatID
		if len(s.Chat.Messages) > 0 {
			head = s.Chat.Messages[0].ID
		}
	}
	if chatID != r.chatID || head != r.head || (s.Chat != nil && len(s.Chat.Messages) < r.seen) {
		r.chatID = chatID
		r.head = head
		r.seen = 0
		if s.Chat == nil {
			fmt.Fprintln(r.out, "* chat closed")
		} else {
			fmt.Fprintf(r.out, "* chat with %s\n", s.Chat.Counterpart.Name())
		}
	}
	if s.Chat != nil {
		for _, m := range s.Chat.Messages[r.seen:] {
			switch {
			case m.SenderID == "":
				fmt.Fprintf(r.out, "  -- %s\n", m.Content)
			case m.SenderID == s.Session.LocalUserID:
				fmt.Fprintf(r.out, "  [%s] me: %s\n", m.Timestamp.Local().Format("15:04"), m.Content)
			default:
				fmt.Fprintf(r.out, "  [%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), s.Chat.Counterpart.Name(), m.Content)
			}
		}
		r.seen = len(s.Chat.Messages)
	}

	if s.Typing.RemoteIsTyping != r.typing {
		r.typing = s.Typing.RemoteIsTyping
		if r.typing && s.Chat != nil {
			fmt.Fprintf(r.out, "  %s is typing...\n", s.Chat.Counterpart.Name())
		}
	}

	if s.CallPhase != r.phase {
		r.phase = s.CallPhase
		fmt.Fprintf(r.out, "* call %s\n", r.phase)
	}

	if s.Notification != nil && s.Notification.ID != r.noteID {
		r.noteID = s.Notification.ID
		fmt.Fprintf(r.out, "! [%s] %s\n", s.Notification.Severity, s.Notification.Text)
	}
	if s.Notification == nil {
		r.noteID = ""
	}

	if s.Title != r.title {
		r.title = s.Title
		// xterm window title
		fmt.Fprintf(r.out, "\x1b]0;%s\x07", r.title)
	}
}
