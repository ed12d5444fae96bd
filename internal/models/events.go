package models

import (
	"encoding/json"
	"time"
)

// Inbound event names. These are the wire contract and must stay stable for
// deployed clients.
const (
	EventConversationsJoin  = "conversations:join"
	EventConversationJoin   = "conversation:join"
	EventConversationLeave  = "conversation:leave"
	EventMessageSend        = "message:send"
	EventMessageEdit        = "message:edit"
	EventMessageDelete      = "message:delete"
	EventMessagesRead       = "messages:read"
	EventTypingStart        = "typing:start"
	EventTypingStop         = "typing:stop"
	EventConversationDelete = "conversation:delete"
	EventUsersGetOnline     = "users:getOnline"
)

// Outbound event names.
const (
	EventMessageNew          = "message:new"
	EventMessageEdited       = "message:edited"
	EventMessageDeleted      = "message:deleted"
	EventConversationUpdated = "conversation:updated"
	EventConversationDeleted = "conversation:deleted"
	EventUserOnline          = "user:online"
	EventUserOffline         = "user:offline"
	EventUsersOnline         = "users:online"
	EventError               = "error"
)

// Envelope frames every inbound client event. Data stays raw until the router
// dispatches on Event and decodes the matching payload type.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent frames every outbound event.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Inbound payloads, one per event name.

type ConversationRef struct {
	ConversationID int64 `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
}

type EditMessagePayload struct {
	MessageID      int64  `json:"messageId"`
	ConversationID int64  `json:"conversationId"`
	Content        string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID      int64 `json:"messageId"`
	ConversationID int64 `json:"conversationId"`
}

// Outbound payloads.

type MessageNewPayload struct {
	ConversationID int64   `json:"conversationId"`
	Message        Message `json:"message"`
}

type MessageEditedPayload struct {
	MessageID      int64      `json:"messageId"`
	ConversationID int64      `json:"conversationId"`
	Content        string     `json:"content"`
	Edited         bool       `json:"edited"`
	EditedAt       *time.Time `json:"editedAt"`
}

type MessageDeletedPayload struct {
	MessageID      int64 `json:"messageId"`
	ConversationID int64 `json:"conversationId"`
}

type MessagesReadPayload struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
	Count          int   `json:"count"`
}

type ConversationUpdatedPayload struct {
	ConversationID int64      `json:"conversationId"`
	LastMessage    *Message   `json:"lastMessage"`
	LastMessageAt  *time.Time `json:"lastMessageAt"`
}

type ConversationDeletedPayload struct {
	ConversationID int64 `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

type UserPresencePayload struct {
	UserID int64 `json:"userId"`
}

type UsersOnlinePayload struct {
	UserIDs []int64 `json:"userIds"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEvent builds the scoped error event sent back to the originating
// connection only.
func NewErrorEvent(code, message string) ServerEvent {
	return ServerEvent{Event: EventError, Data: ErrorPayload{Code: code, Message: message}}
}
