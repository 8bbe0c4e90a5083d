package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/mpchat/client/internal/coordinator"
	"github.com/mpchat/client/internal/directory"
	"github.com/mpchat/client/internal/protocol"
	"github.com/mpchat/client/internal/roster"
)

const helpText = `commands:
  /roster               list users
  /search <name>        filter users by name
  /chat <id|name>       open a chat
  /close                leave the chat
  /call voice|video     call the chat counterpart
  /accept /decline      answer an incoming call
  /hangup               end the call
  /dismiss              clear the notification
  /admin users          list all users (admin)
  /admin delete <id>    delete a user (admin)
  /quit                 exit
anything else is sent to the open chat`

var errQuit = errors.New("quit")

// shell reads user input and turns it into coordinator intents.
type shell struct {
	c   *coordinator.Coordinator
	dir *directory.Client
	out io.Writer
}

func (sh *shell) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(sh.out, helpText)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := sh.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(sh.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}

// parseLine splits a slash command into name and arguments. Plain text
// yields an empty name.
func parseLine(line string) (name string, args []string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", nil
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func (sh *shell) exec(ctx context.Context, line string) error {
	name, args := parseLine(line)
	if name == "" {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		if err := sh.c.OnLocalInput(ctx); err != nil {
			return err
		}
		return sh.c.SendMessage(ctx, line)
	}

	switch name {
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(sh.out, helpText)
		return nil
	case "roster":
		snap, err := sh.c.Snapshot(ctx)
		if err != nil {
			return err
		}
		sh.printPeers(snap.Roster, snap)
		return nil
	case "search":
		peers, err := sh.c.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		snap, err := sh.c.Snapshot(ctx)
		if err != nil {
			return err
		}
		sh.printPeers(peers, snap)
		return nil
	case "chat":
		if len(args) == 0 {
			return errors.New("usage: /chat <id|name>")
		}
		id, err := sh.resolve(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		return sh.c.StartChat(ctx, id)
	case "close":
		return sh.c.CloseChat(ctx)
	case "call":
		kind := protocol.CallTypeVoice
		if len(args) > 0 {
			kind = strings.ToLower(args[0])
		}
		return sh.c.StartOutgoingCall(ctx, kind)
	case "accept":
		return sh.c.AcceptCall(ctx)
	case "decline":
		return sh.c.DeclineCall(ctx)
	case "hangup", "end":
		return sh.c.EndCall(ctx)
	case "dismiss":
		return sh.c.DismissNotification(ctx)
	case "admin":
		return sh.admin(ctx, args)
	default:
		return errors.Errorf("unknown command /%s", name)
	}
}

// resolve maps a user id or name to a roster id. Unknown ids are passed
// through; the relay decides whether they exist.
func (sh *shell) resolve(ctx context.Context, query string) (protocol.ID, error) {
	snap, err := sh.c.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range snap.Roster {
		if p.ID.String() == query {
			return p.ID, nil
		}
	}
	peers, err := sh.c.Search(ctx, query)
	if err != nil {
		return "", err
	}
	switch len(peers) {
	case 0:
		return protocol.ID(query), nil
	case 1:
		return peers[0].ID, nil
	default:
		return "", errors.Errorf("%q matches %d users", query, len(peers))
	}
}

func (sh *shell) printPeers(peers []roster.Peer, snap coordinator.Snapshot) {
	if len(peers) == 0 {
		fmt.Fprintln(sh.out, "  (no users)")
		return
	}
	for _, p := range peers {
		fmt.Fprintf(sh.out, "  %-6s %-20s %s\n", p.ID, p.Name(), roster.StatusText(p, snap.At))
	}
}

func (sh *shell) admin(ctx context.Context, args []string) error {
	if sh.dir == nil {
		return errors.New("no directory service configured")
	}
	if len(args) == 0 {
		return errors.New("usage: /admin users | /admin delete <id>")
	}
	switch args[0] {
	case "users":
		users, err := sh.dir.AdminUsers(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			p := roster.PeerFromRecord(u)
			admin := ""
			if p.IsAdmin {
				admin = " (admin)"
			}
			fmt.Fprintf(sh.out, "  %-6s %s%s\n", p.ID, p.Name(), admin)
		}
		return nil
	case "delete":
		if len(args) < 2 {
			return errors.New("usage: /admin delete <id>")
		}
		if err := sh.dir.DeleteUser(ctx, protocol.ID(args[1])); err != nil {
			return err
		}
		return sh.c.LoadRoster(ctx)
	default:
		return errors.Errorf("unknown admin command %q", args[0])
	}
}
