package chat

import (
	"context"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/models"
	"chat-realtime/internal/protocol"
)

// Typing relays a typing signal to everyone else in the room.
func (s *Service) Typing(sess Session, conversationID string, start bool) {
	event := protocol.EventTypingStop
	if start {
		event = protocol.EventTypingStart
	}
	s.hub.Emit(conversationID, event, protocol.UserPayload{UserID: sess.UserID}, sess.ConnID)
}

// MarkRead stamps the given messages as read by the session's user and
// announces it to the room. An empty id list does nothing.
func (s *Service) MarkRead(ctx context.Context, sess Session, req protocol.ReadRequest) error {
	room, err := req.Room()
	if err != nil {
		return apperr.InvalidArg(err.Error())
	}
	if len(req.MessageIDs) == 0 {
		return nil
	}

	at := s.now().UTC()
	if _, err := s.messages.MarkRead(ctx, room, sess.UserID, req.MessageIDs, at); err != nil {
		return repoError("mark read", err)
	}

	s.hub.Emit(room, protocol.EventMessagesRead, protocol.ReadPayload{
		MessageIDs: req.MessageIDs,
		ReadBy:     sess.UserID,
		ReadAt:     protocol.ISOTime(at),
	}, "")
	return nil
}

// UpdateConversation applies an archive, mute or block change to the
// caller's side. Block changes are shown to both parties; the rest only
// echo back to the calling connection.
func (s *Service) UpdateConversation(ctx context.Context, sess Session, req protocol.StatsRequest) (models.Conversation, error) {
	room, err := req.Room()
	if err != nil {
		return models.Conversation{}, apperr.InvalidArg(err.Error())
	}
	action := models.ConversationAction(req.Action)
	if _, _, ok := action.Column(); !ok {
		return models.Conversation{}, apperr.InvalidArg("unknown action " + req.Action)
	}

	conv, err := s.conversations.UpdateFlags(ctx, room, sess.UserID, action)
	if err != nil {
		return models.Conversation{}, repoError("update conversation", err)
	}

	if action.Broadcast() {
		s.hub.Emit(room, protocol.EventChatStats, conv, "")
	} else if sess.ConnID != "" {
		s.hub.EmitToConn(sess.ConnID, protocol.EventChatStats, conv)
	}
	return conv, nil
}
