// Package notify relays unread-count changes published by the database
// trigger to the affected users' identity rooms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"chat-realtime/internal/logging"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/protocol"
)

const (
	DefaultChannel = "conversation_unread_changed"

	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

var (
	errMissingIDs  = errors.New("payload missing conversation or user ids")
	errInvalidUTF8 = errors.New("payload is not valid utf-8")
)

// Emitter delivers an event to a room.
type Emitter interface {
	Emit(room string, event protocol.Event, payload any, exceptConnID string) int
}

// UnreadChange is the JSON document the trigger sends.
type UnreadChange struct {
	ConversationID   string `json:"conversationId"`
	UserID1          string `json:"userId1"`
	UserID2          string `json:"userId2"`
	UnreadCountUser1 int    `json:"unreadCountUser1"`
	UnreadCountUser2 int    `json:"unreadCountUser2"`
	UpdatedAt        string `json:"updatedAt"`
}

type Bridge struct {
	dsn     string
	channel string
	hub     Emitter
}

func NewBridge(dsn, channel string, hub Emitter) *Bridge {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bridge{dsn: dsn, channel: channel, hub: hub}
}

func (b *Bridge) String() string { return "notify-bridge(" + b.channel + ")" }

// Serve listens until ctx is cancelled. It is meant to run under a
// supervisor, which restarts it when the listener cannot be established.
func (b *Bridge) Serve(ctx context.Context) error {
	listener := pq.NewListener(b.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logging.Warn().Err(err).Int("event", int(ev)).Msg("change feed listener event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(b.channel); err != nil {
		return fmt.Errorf("listen %s: %w", b.channel, err)
	}
	logging.Info().Str("channel", b.channel).Msg("change feed listening")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-listener.Notify:
			if !ok {
				return errors.New("listener closed")
			}
			// nil after a reconnect; notifications may have been missed.
			if n == nil {
				logging.Info().Msg("change feed reconnected")
				continue
			}
			b.Handle([]byte(n.Extra))
		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				logging.Warn().Err(err).Msg("change feed ping failed")
			}
		}
	}
}

// Handle pushes each participant their own unread count. Malformed payloads
// are logged and dropped.
func (b *Bridge) Handle(payload []byte) {
	change, err := decode(payload)
	if err != nil {
		logging.Warn().Err(err).Str("payload", truncate(payload, 256)).Msg("drop change notification")
		observability.IncChangeFeed("malformed")
		return
	}

	b.hub.Emit(change.UserID1, protocol.EventUnreadUpdate, protocol.UnreadPayload{
		ConversationID: change.ConversationID,
		UnreadCount:    change.UnreadCountUser1,
	}, "")
	b.hub.Emit(change.UserID2, protocol.EventUnreadUpdate, protocol.UnreadPayload{
		ConversationID: change.ConversationID,
		UnreadCount:    change.UnreadCountUser2,
	}, "")
	observability.IncChangeFeed("relayed")
}

func decode(payload []byte) (UnreadChange, error) {
	// The decoder would replace bad bytes with U+FFFD and keep going.
	if !utf8.Valid(payload) {
		return UnreadChange{}, errInvalidUTF8
	}
	var change UnreadChange
	if err := json.Unmarshal(payload, &change); err != nil {
		return UnreadChange{}, err
	}
	if change.ConversationID == "" || change.UserID1 == "" || change.UserID2 == "" {
		return UnreadChange{}, errMissingIDs
	}
	return change, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
