package models

import (
	"strings"
	"time"

	"birthday-chat-service/internal/apperrors"
)

const (
	// MaxContentLength bounds a message body.
	MaxContentLength = 2000
	// EditWindow is how long after creation the author may still edit.
	EditWindow = 5 * time.Minute
)

// Message is a single entry in a conversation's append-only log.
// ReadBy always contains the author; entries are never removed.
type Message struct {
	ID             int64      `db:"id" json:"id"`
	ConversationID int64      `db:"conversation_id" json:"conversationId"`
	SenderID       int64      `db:"sender_id" json:"senderId"`
	Content        string     `db:"content" json:"content"`
	Edited         bool       `db:"edited" json:"edited"`
	EditedAt       *time.Time `db:"edited_at" json:"editedAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	ReadBy         []int64    `json:"readBy"`
}

// ReadByUser reports whether the user already has a read-receipt on the message.
func (m Message) ReadByUser(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// EditableBy checks the author and edit-window preconditions without mutating
// anything. The window check is a pure timestamp comparison.
func (m Message) EditableBy(userID int64, now time.Time) error {
	if m.SenderID != userID {
		return apperrors.Forbidden("only the author can edit a message")
	}
	if now.Sub(m.CreatedAt) > EditWindow {
		return apperrors.Expired("edit window has closed")
	}
	return nil
}

// DeletableBy checks the author precondition for deletion.
func (m Message) DeletableBy(userID int64) error {
	if m.SenderID != userID {
		return apperrors.Forbidden("only the author can delete a message")
	}
	return nil
}

// ValidateContent enforces the non-empty and length bounds shared by the
// socket and REST surfaces.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.Validation("message content must not be empty")
	}
	if len(content) > MaxContentLength {
		return apperrors.Validation("message content exceeds maximum length")
	}
	return nil
}
