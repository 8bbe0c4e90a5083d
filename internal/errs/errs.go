// Package errs defines the failure taxonomy shared by the session
// coordinator components. None of these errors is fatal: every failure
// degrades to an Idle or Disconnected baseline from which the user can retry.
package errs

import "github.com/pkg/errors"

var (
	// ErrNotConnected is returned when a command is issued while the
	// connection is not Authenticated. The command is dropped.
	ErrNotConnected = errors.New("not connected")

	// ErrAuthenticationFailed is reported by the relay (or by the local
	// authentication wait expiring). The connection stays Disconnected.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrTransportLost marks an abrupt loss of the transport link.
	ErrTransportLost = errors.New("transport lost")

	// ErrStaleEvent marks an inbound event that references a chat, call or
	// peer that no longer matches current state. It is dropped silently.
	ErrStaleEvent = errors.New("stale event")

	// ErrInvalidIntent is returned for a user intent that is not valid in
	// the current state (e.g. a second call while one is active).
	ErrInvalidIntent = errors.New("invalid intent")

	// ErrRemoteRejection marks a call declined by the peer.
	ErrRemoteRejection = errors.New("remote rejection")
)

// Is reports whether err matches target. It is a thin alias so callers do
// not need to import both errs and pkg/errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
