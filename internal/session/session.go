// Package session manages the connection to the message relay: the link
// lifecycle, the authentication handshake and the gate every outbound
// command passes through. It also records the running client session in
// Redis for out-of-process inspection.
package session

import "github.com/mpchat/client/internal/protocol"

// State is the connection state. It only moves forward, except that any
// state may fall back to Disconnected.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Snapshot is the externally visible connection state.
type Snapshot struct {
	LocalUserID protocol.ID
	State       State
}
