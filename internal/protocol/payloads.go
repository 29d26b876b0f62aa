package protocol

// SendRequest is the body of a client "message" event.
type SendRequest struct {
	ConversationID string `json:"conversationId"`
	ChatID         string `json:"chatId,omitempty"`
	Message        string `json:"message"`
	MediaURL       string `json:"mediaUrl,omitempty"`
	ReplyTo        string `json:"replyTo,omitempty"`
}

func (r SendRequest) Room() (string, error) { return pick(r.ConversationID, r.ChatID) }

// DeleteRequest is the body of "message:delete". UserID is the claimed deleter.
type DeleteRequest struct {
	ChatID         string `json:"chatId"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	UserID         string `json:"userId"`
}

func (r DeleteRequest) Room() (string, error) { return pick(r.ConversationID, r.ChatID) }

type ReadRequest struct {
	ChatID         string   `json:"chatId"`
	ConversationID string   `json:"conversationId,omitempty"`
	MessageIDs     []string `json:"messageIds"`
}

func (r ReadRequest) Room() (string, error) { return pick(r.ConversationID, r.ChatID) }

type PresenceCheckRequest struct {
	UserID string `json:"userId"`
}

// StatsRequest changes the caller's archive/mute/block flags. The
// conversation may be named directly or as {"conversation": {"id": ...}}.
type StatsRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Conversation   *struct {
		ID string `json:"id"`
	} `json:"conversation,omitempty"`
	Action string `json:"action"`
}

func (r StatsRequest) Room() (string, error) {
	if r.ConversationID != "" {
		return r.ConversationID, nil
	}
	if r.Conversation != nil && r.Conversation.ID != "" {
		return r.Conversation.ID, nil
	}
	return "", ErrMissingRoom
}

// MessagePayload is the broadcast shape of a message. Message carries
// plaintext.
type MessagePayload struct {
	ID                  string        `json:"id"`
	SenderID            string        `json:"senderId"`
	ConversationID      string        `json:"conversationId"`
	Message             *string       `json:"message"`
	IV                  *string       `json:"iv"`
	AuthTag             *string       `json:"authTag"`
	ChatMessageType     string        `json:"chatMessageType"`
	MediaURL            *string       `json:"mediaUrl,omitempty"`
	DeliveredAt         *string       `json:"deliveredAt"`
	ReadAt              *string       `json:"readAt,omitempty"`
	IsDeleted           bool          `json:"isDeleted"`
	IsDeletedBySender   bool          `json:"isDeletedBySender,omitempty"`
	IsDeletedByReceiver bool          `json:"isDeletedByReceiver,omitempty"`
	RepliedTo           *string       `json:"repliedTo"`
	CreatedAt           string        `json:"createdAt"`
	UpdatedAt           string        `json:"updatedAt"`
	Reply               *ReplyPayload `json:"reply"`
}

type ReplyPayload struct {
	ID              string      `json:"id"`
	SenderID        string      `json:"senderId"`
	ConversationID  string      `json:"conversationId"`
	Message         *string     `json:"message"`
	ChatMessageType string      `json:"chatMessageType"`
	MediaURL        *string     `json:"mediaUrl,omitempty"`
	CreatedAt       string      `json:"createdAt"`
	Sender          ReplySender `json:"sender"`
}

type ReplySender struct {
	ID        string  `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type DeletedPayload struct {
	MessageID string `json:"messageId"`
	DeleterID string `json:"deleterId"`
	SenderID  string `json:"senderId"`
}

type DeleteErrorPayload struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

type ReadPayload struct {
	MessageIDs []string `json:"messageIds"`
	ReadBy     string   `json:"readBy"`
	ReadAt     string   `json:"readAt"`
}

// UserPayload carries a bare user id for typing and presence events.
type UserPayload struct {
	UserID string `json:"userId"`
}

type PresenceStatusPayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type UnreadPayload struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    int    `json:"unreadCount"`
}

type ErrorPayload struct {
	Event   Event  `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
