package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/models"
	"chat-realtime/internal/protocol"
	"chat-realtime/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) FindByPair(ctx context.Context, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateOrGetConversation(ctx context.Context, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListPartnerIDs(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) UpdateFlags(ctx context.Context, conversationID, userID string, action models.ConversationAction) (models.Conversation, error) {
	args := m.Called(ctx, conversationID, userID, action)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetReplySnapshot(ctx context.Context, messageID string) (models.ReplyRow, error) {
	args := m.Called(ctx, messageID)
	var row models.ReplyRow
	if val := args.Get(0); val != nil {
		row = val.(models.ReplyRow)
	}
	return row, args.Error(1)
}

func (m *MessageRepositoryMock) ListRecent(ctx context.Context, conversationID string, limit int) ([]models.HistoryRow, error) {
	args := m.Called(ctx, conversationID, limit)
	var rows []models.HistoryRow
	if val := args.Get(0); val != nil {
		rows = val.([]models.HistoryRow)
	}
	return rows, args.Error(1)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, conversationID, messageID string, bySender bool) error {
	args := m.Called(ctx, conversationID, messageID, bySender)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string, at time.Time) (repositories.MarkReadResult, error) {
	args := m.Called(ctx, conversationID, readerID, messageIDs, at)
	var res repositories.MarkReadResult
	if val := args.Get(0); val != nil {
		res = val.(repositories.MarkReadResult)
	}
	return res, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetDisplayName(ctx context.Context, userID string) (models.UserName, error) {
	args := m.Called(ctx, userID)
	var name models.UserName
	if val := args.Get(0); val != nil {
		name = val.(models.UserName)
	}
	return name, args.Error(1)
}

type SessionValidatorMock struct {
	mock.Mock
}

func (m *SessionValidatorMock) Validate(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type PresenceMock struct {
	mock.Mock
}

func (m *PresenceMock) MarkOnline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) RefreshOnline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) MarkOffline(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *PresenceMock) IsOnline(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Join(connID, room string) bool {
	return m.Called(connID, room).Bool(0)
}

func (m *BroadcasterMock) Emit(room string, event protocol.Event, payload any, exceptConnID string) int {
	return m.Called(room, event, payload, exceptConnID).Int(0)
}

func (m *BroadcasterMock) EmitToConn(connID string, event protocol.Event, payload any) bool {
	return m.Called(connID, event, payload).Bool(0)
}

// PublisherMock stands in for the AMQP publisher behind audit and
// lifecycle events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}
