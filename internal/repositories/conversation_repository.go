package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chat-realtime/internal/ids"
	"chat-realtime/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot create conversation with self")
	ErrNotParticipant       = errors.New("user is not a participant")
	ErrUnknownAction        = errors.New("unknown conversation action")
)

const conversationColumns = `id, user_id1, user_id2, last_message_id, unread_count_user1, unread_count_user2,
        is_archived_user1, is_archived_user2, is_muted_user1, is_muted_user2,
        is_blocked_user1, is_blocked_user2, created_at, updated_at`

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	FindByPair(ctx context.Context, userA, userB string) (models.Conversation, error)
	CreateOrGetConversation(ctx context.Context, userA, userB string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListPartnerIDs(ctx context.Context, userID string) ([]string, error)
	UpdateFlags(ctx context.Context, conversationID, userID string, action models.ConversationAction) (models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// FindByPair looks a conversation up by its participants in either order.
func (r *ConversationRepo) FindByPair(ctx context.Context, userA, userB string) (models.Conversation, error) {
	user1, user2 := models.NormalizePair(userA, userB)
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE user_id1=$1 AND user_id2=$2`, user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// CreateOrGetConversation creates the conversation for a pair if it does not already exist.
func (r *ConversationRepo) CreateOrGetConversation(ctx context.Context, userA, userB string) (models.Conversation, error) {
	if userA == userB {
		return models.Conversation{}, ErrSelfConversation
	}
	user1, user2 := models.NormalizePair(userA, userB)

	_, err := r.db.ExecContext(ctx, `INSERT INTO conversations (id, user_id1, user_id2) VALUES ($1, $2, $3)
        ON CONFLICT (user_id1, user_id2) DO NOTHING`, ids.New(), user1, user2)
	if err != nil {
		return models.Conversation{}, err
	}
	return r.FindByPair(ctx, user1, user2)
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (user_id1=$2 OR user_id2=$2))`, conversationID, userID)
	return exists, err
}

// ListPartnerIDs returns everyone the user has a conversation with.
func (r *ConversationRepo) ListPartnerIDs(ctx context.Context, userID string) ([]string, error) {
	var partners []string
	err := r.db.SelectContext(ctx, &partners, `SELECT CASE WHEN user_id1=$1 THEN user_id2 ELSE user_id1 END
        FROM conversations WHERE user_id1=$1 OR user_id2=$1`, userID)
	return partners, err
}

// UpdateFlags applies an archive/mute/block change to the caller's side.
func (r *ConversationRepo) UpdateFlags(ctx context.Context, conversationID, userID string, action models.ConversationAction) (models.Conversation, error) {
	prefix, value, ok := action.Column()
	if !ok {
		return models.Conversation{}, ErrUnknownAction
	}

	conv, err := r.GetConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	var column string
	switch userID {
	case conv.UserID1:
		column = prefix + "_user1"
	case conv.UserID2:
		column = prefix + "_user2"
	default:
		return models.Conversation{}, ErrNotParticipant
	}

	var updated models.Conversation
	query := fmt.Sprintf(`UPDATE conversations SET %s=$1, updated_at=NOW() WHERE id=$2 RETURNING `+conversationColumns, column)
	if err := r.db.GetContext(ctx, &updated, query, value, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Conversation{}, ErrConversationNotFound
		}
		return models.Conversation{}, err
	}
	return updated, nil
}
