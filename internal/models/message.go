package models

import (
	"errors"
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeMedia MessageType = "media"
	MessageTypeOther MessageType = "other"
)

var (
	ErrPartialCipher   = errors.New("text message must carry ciphertext, iv and auth tag together")
	ErrCipherOnNonText = errors.New("non-text message must not carry cipher fields")
	ErrMissingPayload  = errors.New("non-text message requires a media url")
)

// Message is a row of the chats table. Ciphertext, IV and AuthTag are set
// only for text messages.
type Message struct {
	ID                  string      `db:"id" json:"id"`
	SenderID            string      `db:"sender_id" json:"senderId"`
	ConversationID      string      `db:"conversation_id" json:"conversationId"`
	Ciphertext          *string     `db:"message" json:"-"`
	IV                  *string     `db:"iv" json:"iv"`
	AuthTag             *string     `db:"auth_tag" json:"authTag"`
	Type                MessageType `db:"chat_message_type" json:"chatMessageType"`
	MediaURL            *string     `db:"media_url" json:"mediaUrl"`
	RepliedToID         *string     `db:"replied_to" json:"repliedTo"`
	DeliveredAt         *time.Time  `db:"delivered_at" json:"deliveredAt"`
	ReadAt              *time.Time  `db:"read_at" json:"readAt"`
	IsDeletedBySender   bool        `db:"is_deleted_by_sender" json:"isDeletedBySender"`
	IsDeletedByReceiver bool        `db:"is_deleted_by_receiver" json:"isDeletedByReceiver"`
	CreatedAt           time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updatedAt"`
}

// Validate enforces the all-or-nothing cipher invariant.
func (m Message) Validate() error {
	set := 0
	for _, f := range []*string{m.Ciphertext, m.IV, m.AuthTag} {
		if f != nil {
			set++
		}
	}
	if m.Type == MessageTypeText {
		if set != 3 {
			return ErrPartialCipher
		}
		return nil
	}
	if set != 0 {
		return ErrCipherOnNonText
	}
	if m.MediaURL == nil || *m.MediaURL == "" {
		return ErrMissingPayload
	}
	return nil
}

// IsDeleted reports whether either party has hidden the message.
func (m Message) IsDeleted() bool {
	return m.IsDeletedBySender || m.IsDeletedByReceiver
}

// ReplyRow is a replied-to message joined with its sender's display name.
type ReplyRow struct {
	Message
	SenderFirstName string  `db:"sender_first_name"`
	SenderLastName  *string `db:"sender_last_name"`
}

// HistoryRow is a message with its optional reply joined in, as read by the
// history query. All reply columns are NULL when the message is not a reply
// or the replied-to row is gone.
type HistoryRow struct {
	Message
	ReplyID              *string    `db:"reply_id"`
	ReplySenderID        *string    `db:"reply_sender_id"`
	ReplyCiphertext      *string    `db:"reply_message"`
	ReplyIV              *string    `db:"reply_iv"`
	ReplyAuthTag         *string    `db:"reply_auth_tag"`
	ReplyType            *string    `db:"reply_chat_message_type"`
	ReplyMediaURL        *string    `db:"reply_media_url"`
	ReplyCreatedAt       *time.Time `db:"reply_created_at"`
	ReplySenderFirstName *string    `db:"reply_sender_first_name"`
	ReplySenderLastName  *string    `db:"reply_sender_last_name"`
}

// Reply extracts the joined reply, nil when absent.
func (h HistoryRow) Reply() *ReplyRow {
	if h.ReplyID == nil {
		return nil
	}
	r := &ReplyRow{
		Message: Message{
			ID:             *h.ReplyID,
			ConversationID: h.ConversationID,
			Ciphertext:     h.ReplyCiphertext,
			IV:             h.ReplyIV,
			AuthTag:        h.ReplyAuthTag,
			MediaURL:       h.ReplyMediaURL,
			Type:           MessageTypeText,
		},
		SenderLastName: h.ReplySenderLastName,
	}
	if h.ReplySenderID != nil {
		r.SenderID = *h.ReplySenderID
	}
	if h.ReplyType != nil {
		r.Type = MessageType(*h.ReplyType)
	}
	if h.ReplyCreatedAt != nil {
		r.CreatedAt = *h.ReplyCreatedAt
	}
	if h.ReplySenderFirstName != nil {
		r.SenderFirstName = *h.ReplySenderFirstName
	}
	return r
}
