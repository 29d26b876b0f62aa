package chat

import (
	"context"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/models"
	"chat-realtime/internal/observability"
	"chat-realtime/internal/protocol"
	"chat-realtime/internal/telemetry"
)

// SendMessage encrypts, broadcasts and persists a message.
//
// Without a reply target the event goes out immediately and the row is
// written in the background: a crash in between loses the message. With a
// reply target the row is written first so the event can carry the reply
// snapshot; if that write fails the event still goes out in its
// pre-persistence shape. The returned error is non-nil only when nothing was
// broadcast.
func (s *Service) SendMessage(ctx context.Context, sess Session, req protocol.SendRequest) (protocol.MessagePayload, error) {
	room, err := req.Room()
	if err != nil {
		return protocol.MessagePayload{}, apperr.InvalidArg(err.Error())
	}
	if req.Message == "" && req.MediaURL == "" {
		return protocol.MessagePayload{}, apperr.InvalidArg("message or mediaUrl required")
	}

	now := s.now().UTC()
	msg := models.Message{
		ID:             s.newID(),
		SenderID:       sess.UserID,
		ConversationID: room,
		DeliveredAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.MediaURL != "" {
		mediaURL := req.MediaURL
		msg.MediaURL = &mediaURL
	}
	if req.ReplyTo != "" {
		replyTo := req.ReplyTo
		msg.RepliedToID = &replyTo
	}

	var plaintext *string
	if req.Message != "" {
		sealed, err := s.codec.Encrypt(req.Message)
		if err != nil {
			return protocol.MessagePayload{}, err
		}
		msg.Type = models.MessageTypeText
		msg.Ciphertext, msg.IV, msg.AuthTag = &sealed.Ciphertext, &sealed.IV, &sealed.AuthTag
		text := req.Message
		plaintext = &text
	} else {
		msg.Type = models.MessageTypeMedia
	}

	if msg.RepliedToID == nil {
		out := messagePayload(msg, plaintext)
		s.hub.Emit(room, protocol.EventMessage, out, "")
		observability.IncMessage("broadcast")
		s.persistAsync(msg)
		return out, nil
	}

	persistCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	saved, err := s.messages.CreateMessage(persistCtx, msg)
	cancel()
	if err != nil {
		logging.Error().Err(err).
			Str("message_id", msg.ID).
			Str("conversation_id", room).
			Msg("persist reply failed, broadcasting unsaved message")
		observability.IncMessage("persist_failed")
		out := messagePayload(msg, plaintext)
		s.hub.Emit(room, protocol.EventMessage, out, "")
		return out, nil
	}
	observability.IncMessage("persisted")

	out := messagePayload(saved, plaintext)
	out.Reply = s.replySnapshot(ctx, room, req.ReplyTo)
	s.hub.Emit(room, protocol.EventMessage, out, "")
	observability.IncMessage("broadcast")
	return out, nil
}

func (s *Service) persistAsync(msg models.Message) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		defer cancel()
		if _, err := s.messages.CreateMessage(ctx, msg); err != nil {
			logging.Error().Err(err).
				Str("message_id", msg.ID).
				Str("conversation_id", msg.ConversationID).
				Msg("background persist failed")
			observability.IncMessage("persist_failed")
			return
		}
		observability.IncMessage("persisted")
	}()
}

// replySnapshot loads and decrypts the replied-to message. Any failure
// yields nil so the send degrades to an event without a snapshot.
func (s *Service) replySnapshot(ctx context.Context, room, replyTo string) *protocol.ReplyPayload {
	lookupCtx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	row, err := s.messages.GetReplySnapshot(lookupCtx, replyTo)
	if err != nil {
		logging.Warn().Err(err).Str("reply_to", replyTo).Msg("reply lookup failed")
		return nil
	}
	if row.ConversationID != room {
		logging.Warn().Str("reply_to", replyTo).Str("conversation_id", room).Msg("reply target belongs to another conversation")
		return nil
	}

	reply, err := s.replyPayload(row)
	if err != nil {
		logging.Warn().Err(err).Str("reply_to", replyTo).Msg("reply decrypt failed")
		return nil
	}
	return reply
}

func (s *Service) replyPayload(row models.ReplyRow) (*protocol.ReplyPayload, error) {
	var text *string
	if row.Type == models.MessageTypeText {
		plain, err := s.codec.DecryptPtr(row.Ciphertext, row.IV, row.AuthTag)
		if err != nil {
			return nil, err
		}
		text = &plain
	}
	return &protocol.ReplyPayload{
		ID:              row.ID,
		SenderID:        row.SenderID,
		ConversationID:  row.ConversationID,
		Message:         text,
		ChatMessageType: string(row.Type),
		MediaURL:        row.MediaURL,
		CreatedAt:       protocol.ISOTime(row.CreatedAt),
		Sender: protocol.ReplySender{
			ID:        row.SenderID,
			FirstName: row.SenderFirstName,
			LastName:  row.SenderLastName,
		},
	}, nil
}

func messagePayload(m models.Message, plaintext *string) protocol.MessagePayload {
	return protocol.MessagePayload{
		ID:                  m.ID,
		SenderID:            m.SenderID,
		ConversationID:      m.ConversationID,
		Message:             plaintext,
		IV:                  m.IV,
		AuthTag:             m.AuthTag,
		ChatMessageType:     string(m.Type),
		MediaURL:            m.MediaURL,
		DeliveredAt:         protocol.ISOTimePtr(m.DeliveredAt),
		ReadAt:              protocol.ISOTimePtr(m.ReadAt),
		IsDeleted:           m.IsDeleted(),
		IsDeletedBySender:   m.IsDeletedBySender,
		IsDeletedByReceiver: m.IsDeletedByReceiver,
		RepliedTo:           m.RepliedToID,
		CreatedAt:           protocol.ISOTime(m.CreatedAt),
		UpdatedAt:           protocol.ISOTime(m.UpdatedAt),
	}
}

// DeleteMessage hides a message for whichever party asks. The claimed
// deleter must be the session's user, the message must live in the named
// conversation and the claimed sender must match the stored one.
func (s *Service) DeleteMessage(ctx context.Context, sess Session, req protocol.DeleteRequest) error {
	room, err := req.Room()
	if err != nil {
		return apperr.InvalidArg(err.Error())
	}
	if req.MessageID == "" {
		return apperr.InvalidArg("message id required")
	}

	audit := telemetry.AuditPayload{Action: "message.delete", ConversationID: room, MessageID: req.MessageID}

	if req.UserID != sess.UserID {
		audit.Outcome, audit.Detail = "denied", "deleter does not match session"
		s.audit.Emit(ctx, sess.UserID, audit)
		return apperr.Unauthorized("deleter does not match session")
	}
	if err := s.requireParticipant(ctx, sess.UserID, room); err != nil {
		return err
	}

	stored, err := s.messages.GetMessage(ctx, req.MessageID)
	if err != nil {
		return repoError("load message", err)
	}
	if stored.ConversationID != room {
		return apperr.NotFound("message not found")
	}
	if req.SenderID != "" && req.SenderID != stored.SenderID {
		audit.Outcome, audit.Detail = "denied", "sender mismatch"
		s.audit.Emit(ctx, sess.UserID, audit)
		return apperr.Unauthorized("sender does not match message")
	}

	bySender := sess.UserID == stored.SenderID
	if err := s.messages.SoftDelete(ctx, room, req.MessageID, bySender); err != nil {
		return repoError("soft delete", err)
	}

	s.hub.Emit(room, protocol.EventMessageDeleted, protocol.DeletedPayload{
		MessageID: req.MessageID,
		DeleterID: sess.UserID,
		SenderID:  stored.SenderID,
	}, "")

	audit.Outcome = "ok"
	s.audit.Emit(ctx, sess.UserID, audit)
	return nil
}

// History returns the most recent messages of a conversation, oldest first,
// minus those the viewer has deleted for themselves.
func (s *Service) History(ctx context.Context, sess Session, conversationID string) ([]protocol.MessagePayload, error) {
	if conversationID == "" {
		return nil, apperr.InvalidArg("conversation id required")
	}
	if err := s.requireParticipant(ctx, sess.UserID, conversationID); err != nil {
		return nil, err
	}

	rows, err := s.messages.ListRecent(ctx, conversationID, HistoryLimit)
	if err != nil {
		return nil, repoError("list messages", err)
	}

	out := make([]protocol.MessagePayload, 0, len(rows))
	for _, row := range rows {
		if hiddenFor(row.Message, sess.UserID) {
			continue
		}
		payload := messagePayload(row.Message, s.decryptForRead(row.Message))
		if reply := row.Reply(); reply != nil {
			payload.Reply = s.historyReply(*reply)
		}
		out = append(out, payload)
	}
	return out, nil
}

func hiddenFor(m models.Message, viewerID string) bool {
	if m.SenderID == viewerID {
		return m.IsDeletedBySender
	}
	return m.IsDeletedByReceiver
}

// decryptForRead never fails: rows that cannot be decrypted read as "".
func (s *Service) decryptForRead(m models.Message) *string {
	if m.Type != models.MessageTypeText {
		return nil
	}
	plain, err := s.codec.DecryptPtr(m.Ciphertext, m.IV, m.AuthTag)
	if err != nil {
		logging.Warn().Err(err).Str("message_id", m.ID).Msg("decrypt failed")
		plain = ""
	}
	return &plain
}

func (s *Service) historyReply(row models.ReplyRow) *protocol.ReplyPayload {
	reply, err := s.replyPayload(row)
	if err == nil {
		return reply
	}
	logging.Warn().Err(err).Str("message_id", row.ID).Msg("decrypt reply failed")
	row.Ciphertext = nil
	reply, _ = s.replyPayload(row)
	return reply
}
