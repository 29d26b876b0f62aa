// Package protocol defines the websocket frame and the payloads carried by
// each chat event.
package protocol

import (
	"bytes"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

type Event string

// Client events.
const (
	EventJoin          Event = "join"
	EventMessage       Event = "message"
	EventMessageDelete Event = "message:delete"
	EventMessagesRead  Event = "messages:read"
	EventTypingStart   Event = "typing:start"
	EventTypingStop    Event = "typing:stop"
	EventHeartbeat     Event = "heartbeat"
	EventPresenceCheck Event = "presence:check"
	EventChatStats     Event = "chat-stats"
)

// Server events. EventMessage, EventMessagesRead, the typing events and
// EventChatStats are also emitted by the server.
const (
	EventMessageDeleted     Event = "message:deleted"
	EventMessageDeleteError Event = "message:delete:error"
	EventPresenceOnline     Event = "presence:online"
	EventPresenceOffline    Event = "presence:offline"
	EventPresenceStatus     Event = "presence:status"
	EventUnreadUpdate       Event = "unread:update"
	EventError              Event = "error"
)

var clientEvents = map[Event]struct{}{
	EventJoin: {}, EventMessage: {}, EventMessageDelete: {}, EventMessagesRead: {},
	EventTypingStart: {}, EventTypingStop: {}, EventHeartbeat: {}, EventPresenceCheck: {},
	EventChatStats: {},
}

// IsClientEvent reports whether clients may send e.
func IsClientEvent(e Event) bool {
	_, ok := clientEvents[e]
	return ok
}

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingRoom    = errors.New("missing conversation id")
)

// Frame is the unit exchanged over the socket: {"event": ..., "data": ...}.
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event Event `json:"event"`
	Data  any   `json:"data"`
}

// Encode marshals an outbound frame.
func Encode(event Event, payload any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: payload})
}

// Decode parses an inbound frame.
func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, ErrMalformedFrame
	}
	if f.Event == "" {
		return Frame{}, ErrMalformedFrame
	}
	return f, nil
}

// Bind decodes the frame data into v.
func (f Frame) Bind(v any) error {
	if len(f.Data) == 0 {
		return ErrMalformedFrame
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return ErrMalformedFrame
	}
	return nil
}

// RoomID extracts a conversation id from data sent either as a bare string
// or as an object carrying conversationId or chatId.
func (f Frame) RoomID() (string, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return "", ErrMalformedFrame
		}
		if id == "" {
			return "", ErrMissingRoom
		}
		return id, nil
	}
	var ref struct {
		ConversationID string `json:"conversationId"`
		ChatID         string `json:"chatId"`
	}
	if err := f.Bind(&ref); err != nil {
		return "", err
	}
	return pick(ref.ConversationID, ref.ChatID)
}

func pick(conversationID, chatID string) (string, error) {
	if conversationID != "" {
		return conversationID, nil
	}
	if chatID != "" {
		return chatID, nil
	}
	return "", ErrMissingRoom
}

// ISOTime renders t as a UTC millisecond timestamp.
func ISOTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ISOTimePtr is ISOTime for nullable columns.
func ISOTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := ISOTime(*t)
	return &s
}
