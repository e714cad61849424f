package types

import (
	"encoding/json"
	"fmt"
)

// Kind tags the payload of an Envelope.
type Kind string

const (
	KindChat         Kind = "chat"
	KindNotification Kind = "notification"
	KindHistory      Kind = "history"
	KindJoin         Kind = "join"
	KindLeave        Kind = "leave"
)

// Envelope is the unit sent to clients, one per text frame.
type Envelope struct {
	Kind    Kind   `json:"kind"`
	Payload string `json:"payload"`
}

// Event is an outbound chat event. The set of implementations is closed;
// Encode is the only place that maps an event to its wire form.
type Event interface {
	event()
}

// Chat carries one freshly persisted message.
type Chat struct {
	Message StoredMessage
}

// History carries the recent-history window, oldest first.
type History struct {
	Messages []StoredMessage
}

// Join announces a user entering the chat.
type Join struct {
	Username string
}

// Leave announces a user leaving the chat.
type Leave struct {
	Username string
}

// Notification is a free-form server announcement.
type Notification struct {
	Text string
}

func (Chat) event()         {}
func (History) event()      {}
func (Join) event()         {}
func (Leave) event()        {}
func (Notification) event() {}

// Encode builds the envelope for ev.
func Encode(ev Event) (Envelope, error) {
	switch e := ev.(type) {
	case Chat:
		payload, err := json.Marshal(e.Message)
		if err != nil {
			return Envelope{}, fmt.Errorf("encoding chat payload: %w", err)
		}
		return Envelope{Kind: KindChat, Payload: string(payload)}, nil
	case History:
		msgs := e.Messages
		if msgs == nil {
			msgs = []StoredMessage{}
		}
		payload, err := json.Marshal(msgs)
		if err != nil {
			return Envelope{}, fmt.Errorf("encoding history payload: %w", err)
		}
		return Envelope{Kind: KindHistory, Payload: string(payload)}, nil
	case Join:
		return Envelope{Kind: KindJoin, Payload: e.Username + " joined the chat"}, nil
	case Leave:
		return Envelope{Kind: KindLeave, Payload: e.Username + " left the chat"}, nil
	case Notification:
		return Envelope{Kind: KindNotification, Payload: e.Text}, nil
	default:
		return Envelope{}, fmt.Errorf("unknown event %T", ev)
	}
}

// Marshal encodes ev straight to frame bytes.
func Marshal(ev Event) ([]byte, error) {
	env, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
