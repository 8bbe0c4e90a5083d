package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ID is a relay identifier (user, chat, call or message id). The relay is
// not consistent about its JSON type, so ID accepts both strings and
// numbers and always marshals as a string.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "protocol: decode id")
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.Wrapf(err, "protocol: id must be a string or number, got %s", data)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// naiveISO is the timestamp layout the relay uses when it serializes
// timezone-less datetimes. Such values are UTC.
const naiveISO = "2006-01-02T15:04:05.999999999"

// Timestamp is a point in time decoded from either RFC 3339 or a naive
// ISO 8601 string, or from unix seconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	if len(data) > 0 && data[0] != '"' {
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return errors.Wrapf(err, "protocol: invalid timestamp %s", data)
		}
		ts.Time = time.Unix(0, int64(secs*float64(time.Second))).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "protocol: decode timestamp")
	}
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t
		return nil
	}
	t, err := time.ParseInLocation(naiveISO, s, time.UTC)
	if err != nil {
		return errors.Errorf("protocol: unrecognized timestamp %q", s)
	}
	ts.Time = t
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

// UserRecord is a peer as described by the relay and the directory service.
type UserRecord struct {
	ID          ID         `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	IsOnline    bool       `json:"is_online"`
	LastSeen    *Timestamp `json:"last_seen,omitempty"`
	IsAdmin     bool       `json:"is_admin"`
}

// MessageRecord is a chat message as serialized by the relay.
type MessageRecord struct {
	ID        ID        `json:"id"`
	ChatID    ID        `json:"chat_id"`
	SenderID  ID        `json:"sender_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Timestamp Timestamp `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}
