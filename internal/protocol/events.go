// Package protocol defines the events and commands exchanged with the
// message relay. Every frame is a JSON object with a "type" discriminator
// and a "payload" object:
//
//	{"type":"new_message","payload":{"chat_id":"c1","content":"hi",...}}
//
// Inbound events form a closed set: Event has an unexported marker method,
// so only the types declared here satisfy it and consumers can switch over
// them exhaustively.
package protocol

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

// Relay -> client event types.
const (
	TypeAuthenticationSuccess = "authentication_success"
	TypeAuthenticationFailed  = "authentication_failed"
	TypeUserStatusChanged     = "user_status_changed"
	TypeChatStarted           = "chat_started"
	TypeUserJoined            = "user_joined"
	TypeNewMessage            = "new_message"
	TypeUserTyping            = "user_typing"
	TypeMessageNotification   = "message_notification"
	TypeIncomingCall          = "incoming_call"
	TypeCallAccepted          = "call_accepted"
	TypeCallRejected          = "call_rejected"
	TypeCallEnded             = "call_ended"
	TypeCallInitiated         = "call_initiated"
	TypeAccountDeleted        = "account_deleted"
	TypeChatDeleted           = "chat_deleted"
	TypeError                 = "error"
	TypeDisconnect            = "disconnect"
)

// TypeOpened is synthesized by the transport when the link is up. It never
// appears on the wire.
const TypeOpened = "open"

// Event is an inbound event delivered by the transport link.
type Event interface {
	EventType() string
	isEvent()
}

// Opened reports that the transport link is established.
type Opened struct{}

// Disconnected reports that the transport link is gone, either because the
// relay said so or because reading failed. Err is nil for a clean close.
type Disconnected struct {
	Err error `json:"-"`
}

// AuthenticationSuccess confirms the authenticate command.
type AuthenticationSuccess struct {
	Message string     `json:"message"`
	User    UserRecord `json:"user"`
}

// AuthenticationFailed rejects the authenticate command.
type AuthenticationFailed struct {
	Message string `json:"message"`
}

// UserStatusChanged announces a peer going online or offline.
type UserStatusChanged struct {
	UserID   ID     `json:"user_id"`
	IsOnline bool   `json:"is_online"`
	Username string `json:"username"`
}

// ChatStarted acknowledges start_chat. Messages carries the relay's stored
// history, which this client does not display.
type ChatStarted struct {
	ChatID    ID              `json:"chat_id"`
	OtherUser UserRecord      `json:"other_user"`
	Messages  []MessageRecord `json:"messages"`
}

// UserJoined is broadcast to a chat room after join_chat.
type UserJoined struct {
	UserID ID `json:"user_id"`
	ChatID ID `json:"chat_id"`
}

// NewMessage is the relay's echo of a message sent in a chat, including the
// local user's own messages.
type NewMessage struct {
	MessageRecord
}

// UserTyping relays the counterpart's typing indicator.
type UserTyping struct {
	UserID   ID     `json:"user_id"`
	Username string `json:"username"`
	Typing   bool   `json:"typing"`
}

// MessageNotification announces a message in a chat the user has not joined.
type MessageNotification struct {
	ChatID    ID        `json:"chat_id"`
	SenderID  ID        `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// IncomingCall is a call offer from a peer.
type IncomingCall struct {
	CallID   ID         `json:"call_id"`
	Caller   UserRecord `json:"caller"`
	CallType string     `json:"call_type"`
}

// CallAccepted tells the caller the receiver picked up.
type CallAccepted struct {
	CallID     ID `json:"call_id"`
	AcceptedBy ID `json:"accepted_by"`
}

// CallRejected tells the caller the receiver declined.
type CallRejected struct {
	CallID     ID `json:"call_id"`
	RejectedBy ID `json:"rejected_by"`
}

// CallEnded tells one side the other hung up.
type CallEnded struct {
	CallID  ID `json:"call_id"`
	EndedBy ID `json:"ended_by"`
}

// CallInitiated confirms initiate_call and carries the relay's call id.
type CallInitiated struct {
	CallID ID     `json:"call_id"`
	Status string `json:"status"`
}

// AccountDeleted reports a deleted account. An empty UserID refers to the
// local user.
type AccountDeleted struct {
	UserID  ID     `json:"user_id"`
	Message string `json:"message"`
}

// ChatDeleted reports that an administrator removed a chat.
type ChatDeleted struct {
	ChatID ID `json:"chat_id"`
}

// ErrorEvent is a generic error reported by the relay.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (Opened) EventType() string                { return TypeOpened }
func (Disconnected) EventType() string          { return TypeDisconnect }
func (AuthenticationSuccess) EventType() string { return TypeAuthenticationSuccess }
func (AuthenticationFailed) EventType() string  { return TypeAuthenticationFailed }
func (UserStatusChanged) EventType() string     { return TypeUserStatusChanged }
func (ChatStarted) EventType() string           { return TypeChatStarted }
func (UserJoined) EventType() string            { return TypeUserJoined }
func (NewMessage) EventType() string            { return TypeNewMessage }
func (UserTyping) EventType() string            { return TypeUserTyping }
func (MessageNotification) EventType() string   { return TypeMessageNotification }
func (IncomingCall) EventType() string          { return TypeIncomingCall }
func (CallAccepted) EventType() string          { return TypeCallAccepted }
func (CallRejected) EventType() string          { return TypeCallRejected }
func (CallEnded) EventType() string             { return TypeCallEnded }
func (CallInitiated) EventType() string         { return TypeCallInitiated }
func (AccountDeleted) EventType() string        { return TypeAccountDeleted }
func (ChatDeleted) EventType() string           { return TypeChatDeleted }
func (ErrorEvent) EventType() string            { return TypeError }

func (Opened) isEvent()                {}
func (Disconnected) isEvent()          {}
func (AuthenticationSuccess) isEvent() {}
func (AuthenticationFailed) isEvent()  {}
func (UserStatusChanged) isEvent()     {}
func (ChatStarted) isEvent()           {}
func (UserJoined) isEvent()            {}
func (NewMessage) isEvent()            {}
func (UserTyping) isEvent()            {}
func (MessageNotification) isEvent()   {}
func (IncomingCall) isEvent()          {}
func (CallAccepted) isEvent()          {}
func (CallRejected) isEvent()          {}
func (CallEnded) isEvent()             {}
func (CallInitiated) isEvent()         {}
func (AccountDeleted) isEvent()        {}
func (ChatDeleted) isEvent()           {}
func (ErrorEvent) isEvent()            {}
