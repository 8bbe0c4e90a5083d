package protocol

// Client -> relay command types.
const (
	TypeAuthenticate = "authenticate"
	TypeStartChat    = "start_chat"
	TypeJoinChat     = "join_chat"
	TypeSendMessage  = "send_message"
	TypeTypingStart  = "typing_start"
	TypeTypingStop   = "typing_stop"
	TypeInitiateCall = "initiate_call"
	TypeCallResponse = "call_response"
	TypeEndCall      = "end_call"
)

// Message kinds carried by send_message and new_message.
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// Call kinds carried by initiate_call and incoming_call.
const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

// Command is an outbound command. Encode wraps it in a typed frame.
type Command interface {
	CommandType() string
}

// Authenticate binds the link to a user.
type Authenticate struct {
	UserID ID `json:"user_id"`
}

// StartChat asks the relay for the chat between two users.
type StartChat struct {
	CurrentUserID ID `json:"current_user_id"`
	TargetUserID  ID `json:"target_user_id"`
}

// JoinChat subscribes the link to a chat room.
type JoinChat struct {
	ChatID ID `json:"chat_id"`
	UserID ID `json:"user_id"`
}

// SendMessage posts a message. The relay assigns its identity.
type SendMessage struct {
	ChatID   ID     `json:"chat_id"`
	SenderID ID     `json:"sender_id"`
	Content  string `json:"content"`
	Type     string `json:"type"`
}

// TypingStart marks the beginning of a local typing episode.
type TypingStart struct {
	ChatID ID `json:"chat_id"`
	UserID ID `json:"user_id"`
}

// TypingStop marks the end of a local typing episode.
type TypingStop struct {
	ChatID ID `json:"chat_id"`
	UserID ID `json:"user_id"`
}

// InitiateCall offers a call to a peer.
type InitiateCall struct {
	CallerID   ID     `json:"caller_id"`
	ReceiverID ID     `json:"receiver_id"`
	CallType   string `json:"call_type"`
}

// CallResponse accepts or declines an incoming call.
type CallResponse struct {
	CallID   ID   `json:"call_id"`
	UserID   ID   `json:"user_id"`
	Accepted bool `json:"accepted"`
}

// EndCall hangs up (or cancels) a call.
type EndCall struct {
	CallID ID `json:"call_id"`
	UserID ID `json:"user_id"`
}

func (Authenticate) CommandType() string { return TypeAuthenticate }
func (StartChat) CommandType() string    { return TypeStartChat }
func (JoinChat) CommandType() string     { return TypeJoinChat }
func (SendMessage) CommandType() string  { return TypeSendMessage }
func (TypingStart) CommandType() string  { return TypeTypingStart }
func (TypingStop) CommandType() string   { return TypeTypingStop }
func (InitiateCall) CommandType() string { return TypeInitiateCall }
func (CallResponse) CommandType() string { return TypeCallResponse }
func (EndCall) CommandType() string      { return TypeEndCall }
