package models

import "time"

// Conversation is a 1:1 channel. UserID1 < UserID2 always holds.
type Conversation struct {
	ID                string    `db:"id" json:"id"`
	UserID1           string    `db:"user_id1" json:"userId1"`
	UserID2           string    `db:"user_id2" json:"userId2"`
	LastMessageID     *string   `db:"last_message_id" json:"lastMessageId"`
	UnreadCountUser1  int       `db:"unread_count_user1" json:"unreadCountForUser1"`
	UnreadCountUser2  int       `db:"unread_count_user2" json:"unreadCountForUser2"`
	IsArchivedByUser1 bool      `db:"is_archived_user1" json:"isArchivedByUser1"`
	IsArchivedByUser2 bool      `db:"is_archived_user2" json:"isArchivedByUser2"`
	IsMutedByUser1    bool      `db:"is_muted_user1" json:"isMutedByUser1"`
	IsMutedByUser2    bool      `db:"is_muted_user2" json:"isMutedByUser2"`
	IsBlockedByUser1  bool      `db:"is_blocked_user1" json:"isBlockedByUser1"`
	IsBlockedByUser2  bool      `db:"is_blocked_user2" json:"isBlockedByUser2"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// NormalizePair orders two user ids lexically.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.UserID1 == userID || c.UserID2 == userID)
}

// OtherParticipant returns the peer of userID, "" if userID is not a member.
func (c Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.UserID1:
		return c.UserID2
	case c.UserID2:
		return c.UserID1
	}
	return ""
}

// ConversationAction is a per-side flag change.
type ConversationAction string

const (
	ActionArchive   ConversationAction = "archive"
	ActionUnarchive ConversationAction = "unarchive"
	ActionMute      ConversationAction = "mute"
	ActionUnmute    ConversationAction = "unmute"
	ActionBlock     ConversationAction = "block"
	ActionUnblock   ConversationAction = "unblock"
)

// Column returns the flag prefix and target value for the action.
func (a ConversationAction) Column() (prefix string, value bool, ok bool) {
	switch a {
	case ActionArchive:
		return "is_archived", true, true
	case ActionUnarchive:
		return "is_archived", false, true
	case ActionMute:
		return "is_muted", true, true
	case ActionUnmute:
		return "is_muted", false, true
	case ActionBlock:
		return "is_blocked", true, true
	case ActionUnblock:
		return "is_blocked", false, true
	}
	return "", false, false
}

// Broadcast reports whether both parties must see the change.
func (a ConversationAction) Broadcast() bool {
	return a == ActionBlock || a == ActionUnblock
}

// UserName is the display name used in reply snapshots.
type UserName struct {
	ID        string  `db:"id" json:"id"`
	FirstName string  `db:"first_name" json:"firstName"`
	LastName  *string `db:"last_name" json:"lastName"`
}
