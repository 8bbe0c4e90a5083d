package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ---------------------------------------------------------------------------
// Envelope: initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope is the frame layout on the wire: the event or command name and
// its payload object. Payloads keep their own fields (including a "type"
// field on messages) untouched.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseEvent decodes a relay frame into one of the Event types. Unknown
// types are reported as errors so the caller can log and skip them.
func ParseEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "protocol: failed to parse event")
	}
	if env.Type == "" {
		return nil, errors.New("protocol: missing or empty \"type\" field")
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		env.Payload = json.RawMessage("{}")
	}

	var (
		ev  Event
		err error
	)
	switch env.Type {
	case TypeAuthenticationSuccess:
		ev, err = decode[AuthenticationSuccess](env.Payload)
	case TypeAuthenticationFailed:
		ev, err = decode[AuthenticationFailed](env.Payload)
	case TypeUserStatusChanged:
		ev, err = decode[UserStatusChanged](env.Payload)
	case TypeChatStarted:
		ev, err = decode[ChatStarted](env.Payload)
	case TypeUserJoined:
		ev, err = decode[UserJoined](env.Payload)
	case TypeNewMessage:
		ev, err = decode[NewMessage](env.Payload)
	case TypeUserTyping:
		ev, err = decode[UserTyping](env.Payload)
	case TypeMessageNotification:
		ev, err = decode[MessageNotification](env.Payload)
	case TypeIncomingCall:
		ev, err = decode[IncomingCall](env.Payload)
	case TypeCallAccepted:
		ev, err = decode[CallAccepted](env.Payload)
	case TypeCallRejected:
		ev, err = decode[CallRejected](env.Payload)
	case TypeCallEnded:
		ev, err = decode[CallEnded](env.Payload)
	case TypeCallInitiated:
		ev, err = decode[CallInitiated](env.Payload)
	case TypeAccountDeleted:
		ev, err = decode[AccountDeleted](env.Payload)
	case TypeChatDeleted:
		ev, err = decode[ChatDeleted](env.Payload)
	case TypeError:
		ev, err = decode[ErrorEvent](env.Payload)
	case TypeDisconnect:
		return Disconnected{}, nil
	default:
		return nil, errors.Errorf("protocol: unknown event type: %q", env.Type)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "protocol: failed to decode %q payload", env.Type)
	}
	return ev, nil
}

func decode[T Event](raw json.RawMessage) (Event, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Encode serializes a command into a frame.
func Encode(cmd Command) ([]byte, error) {
	return encodeFrame(cmd.CommandType(), cmd)
}

// EncodeEvent serializes an inbound event the way the relay does. It is used
// by relays built on this package and by tests.
func EncodeEvent(ev Event) ([]byte, error) {
	return encodeFrame(ev.EventType(), ev)
}

func encodeFrame(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "protocol: failed to marshal %q payload", msgType)
	}
	out, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, errors.Wrap(err, "protocol: failed to marshal frame")
	}
	return out, nil
}
