package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseEvent_ChatStarted(t *testing.T) {
	input := []byte(`{"type":"chat_started","payload":{"chat_id":"c1","other_user":{"id":1,"username":"ann","display_name":"Ann","is_online":true},"messages":[]}}`)

	ev, err := ParseEvent(input)
	require.NoError(t, err)

	cs, ok := ev.(ChatStarted)
	require.True(t, ok, "expected ChatStarted, got %T", ev)
	require.Equal(t, ID("c1"), cs.ChatID)
	require.Equal(t, ID("1"), cs.OtherUser.ID)
	require.Equal(t, "Ann", cs.OtherUser.DisplayName)
	require.True(t, cs.OtherUser.IsOnline)
}

func TestParseEvent_NewMessageNaiveTimestamp(t *testing.T) {
	input := []byte(`{"type":"new_message","payload":{"id":"m1","chat_id":"c1","sender_id":"42","content":"hi","type":"text","timestamp":"2024-03-01T10:15:30.123456"}}`)

	ev, err := ParseEvent(input)
	require.NoError(t, err)

	nm, ok := ev.(NewMessage)
	require.True(t, ok)
	require.Equal(t, ID("c1"), nm.ChatID)
	require.Equal(t, "hi", nm.Content)
	require.Equal(t, MessageTypeText, nm.Type)
	want := time.Date(2024, 3, 1, 10, 15, 30, 123456000, time.UTC)
	require.True(t, nm.Timestamp.Equal(want), "got %s", nm.Timestamp)
}

func TestParseEvent_UserStatusChanged(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"user_status_changed","payload":{"user_id":"7","is_online":false,"username":"bob"}}`))
	require.NoError(t, err)
	require.Equal(t, UserStatusChanged{UserID: "7", IsOnline: false, Username: "bob"}, ev)
}

func TestParseEvent_EmptyPayload(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"call_accepted"}`))
	require.NoError(t, err)
	require.Equal(t, CallAccepted{}, ev)
}

func TestParseEvent_Disconnect(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"disconnect"}`))
	require.NoError(t, err)
	require.IsType(t, Disconnected{}, ev)
}

func TestParseEvent_UnknownType(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":"unknown_type","payload":{"data":"something"}}`))
	require.Error(t, err)
}

func TestParseEvent_MissingType(t *testing.T) {
	_, err := ParseEvent([]byte(`{"payload":{"chat_id":"c1"}}`))
	require.Error(t, err)
}

func TestParseEvent_BadPayload(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type":"chat_deleted","payload":{"chat_id":{"nested":true}}}`))
	require.Error(t, err)
}

func TestEncode_InjectsType(t *testing.T) {
	data, err := Encode(InitiateCall{CallerID: "42", ReceiverID: "1", CallType: CallTypeVideo})
	require.NoError(t, err)

	var frame struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &frame))
	require.Equal(t, TypeInitiateCall, frame.Type)
	require.Equal(t, "42", frame.Payload["caller_id"])
	require.Equal(t, "1", frame.Payload["receiver_id"])
	require.Equal(t, "video", frame.Payload["call_type"])
}

func TestEncode_KeepsMessageKind(t *testing.T) {
	data, err := Encode(SendMessage{ChatID: "c1", SenderID: "42", Content: "hello", Type: MessageTypeText})
	require.NoError(t, err)
	require.JSONEq(t,
		`{"type":"send_message","payload":{"chat_id":"c1","sender_id":"42","content":"hello","type":"text"}}`,
		string(data))
}

func TestEncodeEventParsesBack(t *testing.T) {
	data, err := EncodeEvent(ChatDeleted{ChatID: "c9"})
	require.NoError(t, err)

	ev, err := ParseEvent(data)
	require.NoError(t, err)
	require.Equal(t, ChatDeleted{ChatID: "c9"}, ev)
}

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	cases := []struct {
		in   string
		want ID
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`null`, ""},
	}
	for _, tc := range cases {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(tc.in), &id), tc.in)
		require.Equal(t, tc.want, id)
	}

	var id ID
	require.Error(t, json.Unmarshal([]byte(`true`), &id))
}

func TestTimestampFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{`"2024-01-02T03:04:05Z"`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{`"2024-01-02T03:04:05"`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{`1704164645`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}
	for _, tc := range cases {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(tc.in), &ts), tc.in)
		require.True(t, ts.Equal(tc.want), "%s decoded to %s", tc.in, ts.Time)
	}

	var ts Timestamp
	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}
