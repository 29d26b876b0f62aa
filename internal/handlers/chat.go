package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/chat"
	"chat-realtime/internal/logging"
	"chat-realtime/internal/models"
	"chat-realtime/internal/protocol"
	"chat-realtime/internal/repositories"
)

// ChatService is the subset of chat.Service exposed over REST.
type ChatService interface {
	History(ctx context.Context, sess chat.Session, conversationID string) ([]protocol.MessagePayload, error)
	SendMessage(ctx context.Context, sess chat.Session, req protocol.SendRequest) (protocol.MessagePayload, error)
	MarkRead(ctx context.Context, sess chat.Session, req protocol.ReadRequest) error
	DeleteMessage(ctx context.Context, sess chat.Session, req protocol.DeleteRequest) error
	UpdateConversation(ctx context.Context, sess chat.Session, req protocol.StatsRequest) (models.Conversation, error)
	CheckPresence(ctx context.Context, sess chat.Session, userID string) bool
}

// ChatHandler serves the conversation endpoints.
type ChatHandler struct {
	service       ChatService
	conversations repositories.ConversationRepository
}

func NewChatHandler(service ChatService, conversations repositories.ConversationRepository) *ChatHandler {
	return &ChatHandler{service: service, conversations: conversations}
}

// Register mounts the routes on an authenticated group.
func (h *ChatHandler) Register(r gin.IRoutes) {
	r.POST("/conversations", h.StartConversation)
	r.GET("/chats/:chat_id/messages", h.GetChatMessages)
	r.POST("/chat", h.PostChatMessage)
	r.POST("/chat/read", h.MarkRead)
	r.POST("/chat/delete", h.DeleteMessage)
	r.PATCH("/chat", h.UpdateConversation)
	r.GET("/presence/:user_id", h.GetPresence)
}

func session(c *gin.Context) chat.Session {
	return chat.Session{UserID: c.GetString("userID")}
}

// StartConversation creates or returns the conversation with another user.
func (h *ChatHandler) StartConversation(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	conv, err := h.conversations.CreateOrGetConversation(c.Request.Context(), userID, req.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrSelfConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
			return
		}
		logging.Error().Err(err).Str("request_id", requestIDFromContext(c)).Msg("create conversation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	c.JSON(http.StatusOK, conv)
}

// GetChatMessages returns the latest messages of a conversation.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	msgs, err := h.service.History(c.Request.Context(), session(c), c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostChatMessage sends a message through the realtime pipeline.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	var req protocol.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room, err := req.Room()
	if err != nil {
		writeError(c, apperr.InvalidArg(err.Error()))
		return
	}
	if !h.requireParticipant(c, room) {
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), session(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req protocol.ReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), session(c), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DeleteMessage hides a message for the caller. userId defaults to the
// session user.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	var req protocol.DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.UserID == "" {
		req.UserID = c.GetString("userID")
	}
	if err := h.service.DeleteMessage(c.Request.Context(), session(c), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *ChatHandler) UpdateConversation(c *gin.Context) {
	var req protocol.StatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.service.UpdateConversation(c.Request.Context(), session(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ChatHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")
	online := h.service.CheckPresence(c.Request.Context(), session(c), userID)
	c.JSON(http.StatusOK, protocol.PresenceStatusPayload{UserID: userID, Online: online})
}

func (h *ChatHandler) requireParticipant(c *gin.Context, conversationID string) bool {
	member, err := h.conversations.IsParticipant(c.Request.Context(), conversationID, c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return false
	}
	return true
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeInvalidArgument:
		return http.StatusBadRequest
	case apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodeUnauthorized:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodePresenceUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)
	msg := "internal error"
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("request_id", requestIDFromContext(c)).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}
