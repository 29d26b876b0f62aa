package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-realtime/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, sender_id, conversation_id, message, iv, auth_tag, chat_message_type, media_url,
        delivered_at, read_at, replied_to, is_deleted_by_sender, is_deleted_by_receiver, created_at, updated_at`

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	GetReplySnapshot(ctx context.Context, messageID string) (models.ReplyRow, error)
	ListRecent(ctx context.Context, conversationID string, limit int) ([]models.HistoryRow, error)
	SoftDelete(ctx context.Context, conversationID, messageID string, bySender bool) error
	MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string, at time.Time) (MarkReadResult, error)
}

// MarkReadResult reports how many rows flipped and the reader's recomputed unread count.
type MarkReadResult struct {
	Updated     int64
	UnreadCount int
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// advanceConversationQuery only moves last_message_id forward in
// (created_at, id) order: background writes may commit out of send order.
// The unread increment applies to every message regardless.
const advanceConversationQuery = `UPDATE conversations SET
        last_message_id = CASE
            WHEN last_message_id IS NULL OR COALESCE((
                SELECT (c.created_at, c.id) < ($4::timestamptz, $1::text)
                FROM chats c WHERE c.id = conversations.last_message_id), TRUE)
            THEN $1 ELSE last_message_id END,
        unread_count_user1 = unread_count_user1 + CASE WHEN user_id1 <> $2 THEN 1 ELSE 0 END,
        unread_count_user2 = unread_count_user2 + CASE WHEN user_id2 <> $2 THEN 1 ELSE 0 END,
        updated_at = NOW()
        WHERE id = $3`

// CreateMessage stores a message, points the conversation at it and bumps the
// recipient's unread counter, all in one transaction.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := msg.Validate(); err != nil {
		return models.Message{}, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var out models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO chats (id, sender_id, conversation_id, message, iv, auth_tag,
        chat_message_type, media_url, delivered_at, replied_to, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING `+messageColumns,
		msg.ID, msg.SenderID, msg.ConversationID, msg.Ciphertext, msg.IV, msg.AuthTag,
		msg.Type, msg.MediaURL, msg.DeliveredAt, msg.RepliedToID, msg.CreatedAt, msg.UpdatedAt).
		StructScan(&out)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx, advanceConversationQuery, out.ID, out.SenderID, out.ConversationID, out.CreatedAt)
	if err != nil {
		return models.Message{}, fmt.Errorf("update conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Message{}, err
	} else if n == 0 {
		return models.Message{}, ErrConversationNotFound
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return out, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM chats WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetReplySnapshot loads a message together with its sender's display name.
func (r *MessageRepo) GetReplySnapshot(ctx context.Context, messageID string) (models.ReplyRow, error) {
	var row models.ReplyRow
	err := r.db.GetContext(ctx, &row, `SELECT c.id, c.sender_id, c.conversation_id, c.message, c.iv, c.auth_tag,
        c.chat_message_type, c.media_url, c.delivered_at, c.read_at, c.replied_to,
        c.is_deleted_by_sender, c.is_deleted_by_receiver, c.created_at, c.updated_at,
        u.first_name AS sender_first_name, u.last_name AS sender_last_name
        FROM chats c JOIN "user" u ON u.id = c.sender_id
        WHERE c.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReplyRow{}, ErrMessageNotFound
	}
	return row, err
}

// ListRecent returns the newest limit messages ordered oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, conversationID string, limit int) ([]models.HistoryRow, error) {
	query := `SELECT c.id, c.sender_id, c.conversation_id, c.message, c.iv, c.auth_tag,
        c.chat_message_type, c.media_url, c.delivered_at, c.read_at, c.replied_to,
        c.is_deleted_by_sender, c.is_deleted_by_receiver, c.created_at, c.updated_at,
        r.id AS reply_id, r.sender_id AS reply_sender_id, r.message AS reply_message,
        r.iv AS reply_iv, r.auth_tag AS reply_auth_tag, r.chat_message_type AS reply_chat_message_type,
        r.media_url AS reply_media_url, r.created_at AS reply_created_at,
        ru.first_name AS reply_sender_first_name, ru.last_name AS reply_sender_last_name
        FROM chats c
        LEFT JOIN chats r ON r.id = c.replied_to
        LEFT JOIN "user" ru ON ru.id = r.sender_id
        WHERE c.conversation_id=$1
        ORDER BY c.created_at DESC, c.id DESC
        LIMIT $2`
	var rows []models.HistoryRow
	if err := r.db.SelectContext(ctx, &rows, query, conversationID, limit); err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// SoftDelete hides a message for the sender or the receiver.
func (r *MessageRepo) SoftDelete(ctx context.Context, conversationID, messageID string, bySender bool) error {
	column := "is_deleted_by_receiver"
	if bySender {
		column = "is_deleted_by_sender"
	}
	res, err := r.db.ExecContext(ctx, `UPDATE chats SET `+column+`=TRUE, updated_at=NOW() WHERE id=$1 AND conversation_id=$2`, messageID, conversationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkRead stamps readAt on the named messages that are still unread and
// recounts the reader's unread messages from source rows.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, readerID string, messageIDs []string, at time.Time) (MarkReadResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return MarkReadResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv, `SELECT `+conversationColumns+` FROM conversations WHERE id=$1 FOR UPDATE`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return MarkReadResult{}, ErrConversationNotFound
	}
	if err != nil {
		return MarkReadResult{}, err
	}

	column := "unread_count_user1"
	switch readerID {
	case conv.UserID1:
	case conv.UserID2:
		column = "unread_count_user2"
	default:
		return MarkReadResult{}, ErrNotParticipant
	}

	res, err := tx.ExecContext(ctx, `UPDATE chats SET read_at=$1, updated_at=$1
        WHERE conversation_id=$2 AND id = ANY($3) AND read_at IS NULL AND sender_id <> $4`,
		at, conversationID, pq.Array(messageIDs), readerID)
	if err != nil {
		return MarkReadResult{}, fmt.Errorf("mark read: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return MarkReadResult{}, err
	}

	var unread int
	if err := tx.GetContext(ctx, &unread, `SELECT COUNT(*) FROM chats
        WHERE conversation_id=$1 AND sender_id <> $2 AND read_at IS NULL`, conversationID, readerID); err != nil {
		return MarkReadResult{}, fmt.Errorf("count unread: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET `+column+`=$1, updated_at=NOW() WHERE id=$2`, unread, conversationID); err != nil {
		return MarkReadResult{}, fmt.Errorf("update unread: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return MarkReadResult{}, err
	}
	return MarkReadResult{Updated: updated, UnreadCount: unread}, nil
}
