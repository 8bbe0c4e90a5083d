// Package roster tracks the known peers and their presence.
package roster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mpchat/client/internal/errs"
	"github.com/mpchat/client/internal/protocol"
)

// UnknownName is shown for a peer that is not in the roster.
const UnknownName = "Unknown User"

// Peer is another user as seen by the local client.
type Peer struct {
	ID          protocol.ID
	Username    string
	DisplayName string
	IsOnline    bool
	LastSeen    *time.Time
	IsAdmin     bool
}

// Name returns the name to display for the peer.
func (p Peer) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Username != "" {
		return p.Username
	}
	return UnknownName
}

// PeerFromRecord converts a relay or directory user record.
func PeerFromRecord(r protocol.UserRecord) Peer {
	p := Peer{
		ID:          r.ID,
		Username:    r.Username,
		DisplayName: r.DisplayName,
		IsOnline:    r.IsOnline,
		IsAdmin:     r.IsAdmin,
	}
	if r.LastSeen != nil && !r.LastSeen.IsZero() {
		t := r.LastSeen.Time
		p.LastSeen = &t
	}
	return p
}

// Directory fetches the roster from the directory service.
type Directory interface {
	FetchRoster(ctx context.Context) ([]protocol.UserRecord, error)
}

// Tracker holds the roster. It is not safe for concurrent use; the
// coordinator owns it.
type Tracker struct {
	now   func() time.Time
	peers map[protocol.ID]*Peer
	order []protocol.ID
}

// NewTracker creates an empty tracker. now stamps last-seen times.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now, peers: make(map[protocol.ID]*Peer)}
}

// Replace swaps the whole roster for peers, keeping their order.
func (t *Tracker) Replace(peers []Peer) {
	t.peers = make(map[protocol.ID]*Peer, len(peers))
	t.order = t.order[:0]
	for i := range peers {
		p := peers[i]
		if _, dup := t.peers[p.ID]; dup {
			continue
		}
		t.peers[p.ID] = &p
		t.order = append(t.order, p.ID)
	}
}

// ApplyStatusChange records a presence change for a known peer. Going
// offline stamps LastSeen. Unknown peers yield errs.ErrStaleEvent.
func (t *Tracker) ApplyStatusChange(id protocol.ID, isOnline bool) error {
	p, ok := t.peers[id]
	if !ok {
		return errors.Wrapf(errs.ErrStaleEvent, "roster: unknown peer %s", id)
	}
	if p.IsOnline && !isOnline {
		now := t.now()
		p.LastSeen = &now
	}
	p.IsOnline = isOnline
	return nil
}

// Remove drops a peer. It reports whether the peer was present.
func (t *Tracker) Remove(id protocol.ID) bool {
	if _, ok := t.peers[id]; !ok {
		return false
	}
	delete(t.peers, id)
	for i, pid := range t.order {
		if pid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the peer with the given id.
func (t *Tracker) Get(id protocol.ID) (Peer, bool) {
	p, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return clonePeer(*p), true
}

// Peers returns a copy of the roster in load order.
func (t *Tracker) Peers() []Peer {
	out := make([]Peer, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, clonePeer(*t.peers[id]))
	}
	return out
}

// Search returns the peers whose name contains query, ignoring case. An
// empty query returns the whole roster.
func (t *Tracker) Search(query string) []Peer {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return t.Peers()
	}
	var out []Peer
	for _, id := range t.order {
		p := t.peers[id]
		if strings.Contains(strings.ToLower(p.Name()), q) {
			out = append(out, clonePeer(*p))
		}
	}
	return out
}

// DisplayName returns the name for id, or UnknownName.
func (t *Tracker) DisplayName(id protocol.ID) string {
	if p, ok := t.peers[id]; ok {
		return p.Name()
	}
	return UnknownName
}

// StatusText renders the presence line for a peer.
func StatusText(p Peer, now time.Time) string {
	if p.IsOnline {
		return "Online"
	}
	if p.LastSeen == nil {
		return "Last seen Never"
	}
	return "Last seen " + FormatLastSeen(now, *p.LastSeen)
}

// FormatLastSeen renders how long ago t was relative to now.
func FormatLastSeen(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	default:
		return t.Local().Format("2006-01-02")
	}
}

func clonePeer(p Peer) Peer {
	if p.LastSeen != nil {
		ls := *p.LastSeen
		p.LastSeen = &ls
	}
	return p
}
