// Package chat implements message delivery, receipts and presence on top of
// the repositories, the presence cache and the room hub.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/cryptox"
	"chat-realtime/internal/ids"
	"chat-realtime/internal/protocol"
	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

const (
	DefaultPersistTimeout = 5 * time.Second
	HistoryLimit          = 40
)

// Session is the authenticated identity behind a request. ConnID is empty
// for requests that did not arrive over a websocket.
type Session struct {
	UserID string
	ConnID string
}

// Presence is the advisory online-state cache.
type Presence interface {
	MarkOnline(ctx context.Context, userID string) error
	RefreshOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// Broadcaster fans events out to rooms and connections.
type Broadcaster interface {
	Join(connID, room string) bool
	Emit(room string, event protocol.Event, payload any, exceptConnID string) int
	EmitToConn(connID string, event protocol.Event, payload any) bool
}

type Deps struct {
	Conversations  repositories.ConversationRepository
	Messages       repositories.MessageRepository
	Users          repositories.UserRepository
	Presence       Presence
	Codec          *cryptox.Codec
	Hub            Broadcaster
	Audit          *telemetry.AuditEmitter
	PersistTimeout time.Duration
}

type Service struct {
	conversations  repositories.ConversationRepository
	messages       repositories.MessageRepository
	users          repositories.UserRepository
	presence       Presence
	codec          *cryptox.Codec
	hub            Broadcaster
	audit          *telemetry.AuditEmitter
	persistTimeout time.Duration

	now   func() time.Time
	newID func() string

	inflight sync.WaitGroup
}

func NewService(deps Deps) *Service {
	timeout := deps.PersistTimeout
	if timeout <= 0 {
		timeout = DefaultPersistTimeout
	}
	return &Service{
		conversations:  deps.Conversations,
		messages:       deps.Messages,
		users:          deps.Users,
		presence:       deps.Presence,
		codec:          deps.Codec,
		hub:            deps.Hub,
		audit:          deps.Audit,
		persistTimeout: timeout,
		now:            time.Now,
		newID:          ids.New,
	}
}

// Wait blocks until background persistence has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Join admits a connection to a conversation room after checking that its
// user takes part in the conversation.
func (s *Service) Join(ctx context.Context, sess Session, conversationID string) error {
	if conversationID == "" {
		return apperr.InvalidArg("conversation id required")
	}
	if err := s.requireParticipant(ctx, sess.UserID, conversationID); err != nil {
		return err
	}
	if !s.hub.Join(sess.ConnID, conversationID) {
		return apperr.NotFound("connection not registered")
	}
	return nil
}

func (s *Service) requireParticipant(ctx context.Context, userID, conversationID string) error {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return apperr.Persistence("check participant", err)
	}
	if !ok {
		return apperr.Unauthorized("not a participant of this conversation")
	}
	return nil
}

// repoError maps repository sentinels onto the error taxonomy.
func repoError(op string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrConversationNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "conversation not found", err)
	case errors.Is(err, repositories.ErrMessageNotFound):
		return apperr.Wrap(apperr.CodeNotFound, "message not found", err)
	case errors.Is(err, repositories.ErrNotParticipant):
		return apperr.Wrap(apperr.CodeUnauthorized, "not a participant of this conversation", err)
	case errors.Is(err, repositories.ErrUnknownAction):
		return apperr.Wrap(apperr.CodeInvalidArgument, "unknown action", err)
	}
	return apperr.Persistence(op, err)
}
