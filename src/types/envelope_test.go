package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeChat(t *testing.T) {
	msg := StoredMessage{ID: 7, UserID: 3, Username: "alice", Message: "hello", Timestamp: "2024-05-01 10:11:12"}

	env, err := Encode(Chat{Message: msg})
	require.NoError(t, err)
	assert.Equal(t, KindChat, env.Kind)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.Payload), &decoded))
	assert.Equal(t, float64(7), decoded["id"])
	assert.Equal(t, float64(3), decoded["userId"])
	assert.Equal(t, "alice", decoded["username"])
	assert.Equal(t, "hello", decoded["message"])
	assert.Equal(t, "2024-05-01 10:11:12", decoded["timestamp"])
}

func TestEncodeHistoryKeepsOrder(t *testing.T) {
	msgs := []StoredMessage{
		{ID: 1, Message: "first"},
		{ID: 2, Message: "second"},
		{ID: 3, Message: "third"},
	}

	env, err := Encode(History{Messages: msgs})
	require.NoError(t, err)
	assert.Equal(t, KindHistory, env.Kind)

	var decoded []StoredMessage
	require.NoError(t, json.Unmarshal([]byte(env.Payload), &decoded))
	assert.Equal(t, msgs, decoded)
}

func TestEncodeEmptyHistoryIsArray(t *testing.T) {
	env, err := Encode(History{})
	require.NoError(t, err)
	assert.Equal(t, "[]", env.Payload)
}

func TestEncodeAnnouncements(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		kind    Kind
		payload string
	}{
		{"join", Join{Username: "bob"}, KindJoin, "bob joined the chat"},
		{"leave", Leave{Username: "bob"}, KindLeave, "bob left the chat"},
		{"notification", Notification{Text: "maintenance at noon"}, KindNotification, "maintenance at noon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Encode(tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, env.Kind)
			assert.Equal(t, tt.payload, env.Payload)
		})
	}
}

func TestMarshalWireShape(t *testing.T) {
	data, err := Marshal(Join{Username: "carol"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"join","payload":"carol joined the chat"}`, string(data))
}

func TestEncodeNilEvent(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2024, 1, 2, 6, 4, 5, 999, loc)
	assert.Equal(t, "2024-01-02 03:04:05", FormatTimestamp(ts))
}
