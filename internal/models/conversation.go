package models

import "time"

// Conversation is a private messaging thread between exactly two users.
// The participant pair is stored normalized (user1_id < user2_id) so the same
// unordered pair always maps to the same row.
type Conversation struct {
	ID            int64      `db:"id" json:"id"`
	User1ID       int64      `db:"user1_id" json:"user1Id"`
	User2ID       int64      `db:"user2_id" json:"user2Id"`
	LastMessageID *int64     `db:"last_message_id" json:"lastMessageId,omitempty"`
	LastMessageAt *time.Time `db:"last_message_at" json:"lastMessageAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// HasParticipant reports whether the user belongs to the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the peer of the given user.
func (c Conversation) OtherParticipant(userID int64) int64 {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ConversationSummary is the caller-specific list view of a conversation.
type ConversationSummary struct {
	ConversationID int64      `json:"conversationId"`
	FriendID       int64      `json:"friendId"`
	LastMessage    *Message   `json:"lastMessage,omitempty"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	UnreadCount    int        `json:"unreadCount"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// FriendshipStatus mirrors the states owned by the friend-management service.
type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRejected FriendshipStatus = "rejected"
	FriendshipBlocked  FriendshipStatus = "blocked"
)
