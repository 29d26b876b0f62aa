package ws

import (
	"context"
	"errors"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/chat"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/protocol"
)

// Service is the part of chat.Service the socket layer drives.
type Service interface {
	Connect(ctx context.Context, sess chat.Session, open int)
	Disconnect(ctx context.Context, sess chat.Session, remaining int)
	Heartbeat(ctx context.Context, sess chat.Session)
	Join(ctx context.Context, sess chat.Session, conversationID string) error
	SendMessage(ctx context.Context, sess chat.Session, req protocol.SendRequest) (protocol.MessagePayload, error)
	DeleteMessage(ctx context.Context, sess chat.Session, req protocol.DeleteRequest) error
	MarkRead(ctx context.Context, sess chat.Session, req protocol.ReadRequest) error
	Typing(sess chat.Session, conversationID string, start bool)
	CheckPresence(ctx context.Context, sess chat.Session, userID string) bool
	UpdateConversation(ctx context.Context, sess chat.Session, req protocol.StatsRequest) (models.Conversation, error)
}

type handlerFunc func(ctx context.Context, sess chat.Session, f protocol.Frame) error

var errNotJoined = apperr.Unauthorized("join the conversation first")

// Dispatcher routes inbound frames to the chat service.
type Dispatcher struct {
	hub      *Hub
	service  Service
	handlers map[protocol.Event]handlerFunc
}

func NewDispatcher(hub *Hub, service Service) *Dispatcher {
	d := &Dispatcher{hub: hub, service: service}
	d.handlers = map[protocol.Event]handlerFunc{
		protocol.EventJoin:          d.join,
		protocol.EventMessage:       d.message,
		protocol.EventMessageDelete: d.deleteMessage,
		protocol.EventMessagesRead:  d.markRead,
		protocol.EventTypingStart:   d.typing(true),
		protocol.EventTypingStop:    d.typing(false),
		protocol.EventHeartbeat:     d.heartbeat,
		protocol.EventPresenceCheck: d.presenceCheck,
		protocol.EventChatStats:     d.chatStats,
	}
	return d
}

// Dispatch handles one frame. It runs on the connection's read goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, f protocol.Frame) {
	observability.IncWSEvent("in", string(f.Event))
	h, ok := d.handlers[f.Event]
	if !ok {
		d.fail(c, f.Event, apperr.InvalidArg("unknown event"))
		return
	}
	sess := chat.Session{UserID: c.UserID(), ConnID: c.ID()}
	if err := h(ctx, sess, f); err != nil {
		d.fail(c, f.Event, err)
	}
}

func (d *Dispatcher) fail(c *Client, event protocol.Event, err error) {
	logging.Warn().Err(err).
		Str("conn_id", c.ID()).
		Str("user_id", c.UserID()).
		Str("event", string(event)).
		Msg("ws event rejected")
	d.hub.EmitToConn(c.ID(), protocol.EventError, errorPayload(event, err))
}

func (d *Dispatcher) requireJoined(sess chat.Session, room string) error {
	if !d.hub.InRoom(sess.ConnID, room) {
		return errNotJoined
	}
	return nil
}

func invalid(err error) error {
	if errors.Is(err, protocol.ErrMissingRoom) {
		return apperr.InvalidArg("conversation id required")
	}
	return apperr.InvalidArg(err.Error())
}

func (d *Dispatcher) join(ctx context.Context, sess chat.Session, f protocol.Frame) error {
	room, err := f.RoomID()
	if err != nil {
		return invalid(err)
	}
	if d.hub.InRoom(sess.ConnID, room) {
		return nil
	}
	return d.service.Join(ctx, sess, room)
}

func (d *Dispatcher) message(ctx context.Context, sess chat.Session, f protocol.Frame) error {
	var req protocol.SendRequest
	if err := f.Bind(&req); err != nil {
		return invalid(err)
	}
	room, err := req.Room()
	if err != nil {
		return invalid(err)
	}
	if err := d.requireJoined(sess, room); err != nil {
		return err
	}
	_, err = d.service.SendMessage(ctx, sess, req)
	return err
}

// deleteMessage reports failures as message:delete:error to the caller only.
func (d *Dispatcher) deleteMessage(ctx context.Context, sess chat.Session, f protocol.Frame) error {
	var req protocol.DeleteRequest
	if err := f.Bind(&req); err != nil {
		return invalid(err)
	}
	err := d.service.DeleteMessage(ctx, sess, req)
	if err == nil {
		return nil
	}
	logging.Warn().Err(err).Str("message_id", req.MessageID).Str("user_id", sess.UserID).Msg("delete failed")
	msg := err.Error()
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	d.hub.EmitToConn(sess.ConnID, protocol.EventMessageDeleteError, protocol.DeleteErrorPayload{
		MessageID: req.MessageID,
		Error:     msg,
	})
	return nil
}

func (d *Dispatcher) markRead(ctx context.Context, sess chat.Session, f protocol.Frame) error {
	var req protocol.ReadRequest
	if err := f.Bind(&req); err != nil {
		return invalid(err)
	}
	room, err := req.Room()
	if err != nil {
		return invalid(err)
	}
	if err := d.requireJoined(sess, room); err != nil {
		return err
	}
	return d.service.MarkRead(ctx, sess, req)
}

func (d *Dispatcher) typing(start bool) handlerFunc {
	return func(_ context.Context, sess chat.Session, f protocol.Frame) error {
		room, err := f.RoomID()
		if err != nil {
			return invalid(err)
		}
		if err := d.requireJoined(sess, room); err != nil {
			return err
		}
		d.service.Typing(sess, room, start)
		return nil
	}
}

func (d *Dispatcher) heartbeat(ctx context.Context, sess chat.Session, _ protocol.Frame) error {
	d.service.Heartbeat(ctx, sess)
	return nil
}

func (d *Dispatcher) presenceCheck(ctx context.Context, sess chat.Session, f protocol.Frame) error {
	var req protocol.PresenceCheckRequest
	if err := f.Bind(&req); err != nil {
		return invalid(err)
	}
	if req.UserID == "" {
		return apperr.InvalidArg("user id required")
	}
	d.service.CheckPresence(ctx, sess, req.UserID)
	return nil
}

func (d *Dispatcher) chatStats(ctx context.Context, sess chat.Session, f protocol.Frame) error {
	var req protocol.StatsRequest
	if err := f.Bind(&req); err != nil {
		return invalid(err)
	}
	room, err := req.Room()
	if err != nil {
		return invalid(err)
	}
	if err := d.requireJoined(sess, room); err != nil {
		return err
	}
	_, err = d.service.UpdateConversation(ctx, sess, req)
	return err
}
