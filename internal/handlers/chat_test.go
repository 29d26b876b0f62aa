package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-realtime/internal/chat"
	"chat-realtime/internal/cryptox"
	"chat-realtime/internal/mocks"
	"chat-realtime/internal/models"
	"chat-realtime/internal/protocol"
	"chat-realtime/internal/repositories"
)

type handlerFixture struct {
	router   *gin.Engine
	convs    *mocks.ConversationRepositoryMock
	msgs     *mocks.MessageRepositoryMock
	presence *mocks.PresenceMock
	hub      *mocks.BroadcasterMock
	svc      *chat.Service
}

func setupChatRouter(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	codec, err := cryptox.NewCodec("handler-secret", "salt")
	require.NoError(t, err)

	f := &handlerFixture{
		convs:    new(mocks.ConversationRepositoryMock),
		msgs:     new(mocks.MessageRepositoryMock),
		presence: new(mocks.PresenceMock),
		hub:      new(mocks.BroadcasterMock),
	}
	f.svc = chat.NewService(chat.Deps{
		Conversations:  f.convs,
		Messages:       f.msgs,
		Users:          new(mocks.UserRepositoryMock),
		Presence:       f.presence,
		Codec:          codec,
		Hub:            f.hub,
		PersistTimeout: time.Second,
	})

	r := gin.New()
	r.Use(RequestID())
	api := r.Group("/api", func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	NewChatHandler(f.svc, f.convs).Register(api)
	f.router = r
	return f
}

func (f *handlerFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestStartConversationSuccess(t *testing.T) {
	f := setupChatRouter(t)
	f.convs.On("CreateOrGetConversation", mock.Anything, "alice", "bob").
		Return(models.Conversation{ID: "c1", UserID1: "alice", UserID2: "bob"}, nil).Once()

	rec := f.do(http.MethodPost, "/api/conversations", map[string]string{"userId": "bob"})

	require.Equal(t, http.StatusOK, rec.Code)
	var conv models.Conversation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&conv))
	assert.Equal(t, "c1", conv.ID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	f.convs.AssertExpectations(t)
}

func TestStartConversationWithSelf(t *testing.T) {
	f := setupChatRouter(t)
	f.convs.On("CreateOrGetConversation", mock.Anything, "alice", "alice").
		Return(models.Conversation{}, repositories.ErrSelfConversation).Once()

	rec := f.do(http.MethodPost, "/api/conversations", map[string]string{"userId": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetChatMessagesForbiddenForOutsider(t *testing.T) {
	f := setupChatRouter(t)
	f.convs.On("IsParticipant", mock.Anything, "c9", "alice").Return(false, nil).Once()

	rec := f.do(http.MethodGet, "/api/chats/c9/messages", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetChatMessagesSuccess(t *testing.T) {
	f := setupChatRouter(t)
	f.convs.On("IsParticipant", mock.Anything, "c1", "alice").Return(true, nil).Once()
	f.msgs.On("ListRecent", mock.Anything, "c1", chat.HistoryLimit).Return([]models.HistoryRow{
		{Message: models.Message{ID: "m1", SenderID: "bob", ConversationID: "c1", Type: models.MessageTypeMedia}},
	}, nil).Once()

	rec := f.do(http.MethodGet, "/api/chats/c1/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []protocol.MessagePayload `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m1", resp.Messages[0].ID)
}

func TestPostChatMessageBroadcasts(t *testing.T) {
	f := setupChatRouter(t)
	f.convs.On("IsParticipant", mock.Anything, "c1", "alice").Return(true, nil).Once()
	f.hub.On("Emit", "c1", protocol.EventMessage, mock.Anything, "").Return(2).Once()
	f.msgs.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{}, nil).Once()

	rec := f.do(http.MethodPost, "/api/chat", protocol.SendRequest{ConversationID: "c1", Message: "hello"})
	require.Equal(t, http.StatusCreated, rec.Code)
	f.svc.Wait()

	var msg protocol.MessagePayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, "hello", *msg.Message)
	f.hub.AssertExpectations(t)
	f.msgs.AssertExpectations(t)
}

func TestPostChatMessageNotMember(t *testing.T) {
	f := setupChatRouter(t)
	f.convs.On("IsParticipant", mock.Anything, "c1", "alice").Return(false, nil).Once()

	rec := f.do(http.MethodPost, "/api/chat", protocol.SendRequest{ConversationID: "c1", Message: "hello"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.hub.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkReadUnknownConversation(t *testing.T) {
	f := setupChatRouter(t)
	f.msgs.On("MarkRead", mock.Anything, "gone", "alice", []string{"m1"}, mock.Anything).
		Return(repositories.MarkReadResult{}, repositories.ErrConversationNotFound).Once()

	rec := f.do(http.MethodPost, "/api/chat/read", protocol.ReadRequest{ChatID: "gone", MessageIDs: []string{"m1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMessageDefaultsDeleterToSession(t *testing.T) {
	f := setupChatRouter(t)
	f.convs.On("IsParticipant", mock.Anything, "c1", "alice").Return(true, nil).Once()
	f.msgs.On("GetMessage", mock.Anything, "m1").Return(models.Message{ID: "m1", SenderID: "bob", ConversationID: "c1"}, nil).Once()
	f.msgs.On("SoftDelete", mock.Anything, "c1", "m1", false).Return(nil).Once()
	f.hub.On("Emit", "c1", protocol.EventMessageDeleted, mock.Anything, "").Return(1).Once()

	rec := f.do(http.MethodPost, "/api/chat/delete", protocol.DeleteRequest{ChatID: "c1", MessageID: "m1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	f.msgs.AssertExpectations(t)
}

func TestDeleteMessageForeignDeleterForbidden(t *testing.T) {
	f := setupChatRouter(t)
	rec := f.do(http.MethodPost, "/api/chat/delete", protocol.DeleteRequest{ChatID: "c1", MessageID: "m1", UserID: "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateConversationBadAction(t *testing.T) {
	f := setupChatRouter(t)
	rec := f.do(http.MethodPatch, "/api/chat", map[string]string{"conversationId": "c1", "action": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPresence(t *testing.T) {
	f := setupChatRouter(t)
	f.presence.On("IsOnline", mock.Anything, "bob").Return(true, nil).Once()

	rec := f.do(http.MethodGet, "/api/presence/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"userId":"bob","online":true}`, rec.Body.String())
}
