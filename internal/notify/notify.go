package notify

import (
	"context"
	"log"
	"time"

	"birthday-chat-service/internal/models"
)

// Publisher is the message-bus write side. Satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// Routing keys consumed by the email/digest service.
const (
	RoutingKeyMessageNew          = "chat.message.new"
	RoutingKeyConversationDeleted = "chat.conversation.deleted"
)

// Emitter publishes chat events for the offline-notification collaborator.
// Publishing is best-effort: a bus failure is logged and never fails the
// user-facing operation.
type Emitter struct {
	publisher   Publisher
	service     string
	environment string
}

// Envelope is the versioned wire format on the notification exchange.
type Envelope struct {
	SchemaVersion  int    `json:"schema_version"`
	EventType      string `json:"event_type"`
	OccurredAt     string `json:"occurred_at"`
	Service        string `json:"service"`
	Environment    string `json:"environment"`
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	Payload        any    `json:"payload,omitempty"`
}

// MessagePayload is the digest-relevant slice of a message.
type MessagePayload struct {
	MessageID int64     `json:"message_id"`
	SenderID  int64     `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEmitter builds an Emitter.
func NewEmitter(publisher Publisher, service, environment string) *Emitter {
	return &Emitter{publisher: publisher, service: service, environment: environment}
}

// MessageCreated announces a new message whose recipient had no live
// connection, so the email service can fold it into a digest.
func (e *Emitter) MessageCreated(ctx context.Context, msg models.Message, recipientID int64) {
	e.emit(ctx, RoutingKeyMessageNew, Envelope{
		SchemaVersion:  1,
		EventType:      "message_new",
		OccurredAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Service:        e.service,
		Environment:    e.environment,
		ConversationID: msg.ConversationID,
		UserID:         recipientID,
		Payload: MessagePayload{
			MessageID: msg.ID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		},
	})
}

// ConversationDeleted announces a cascade delete so pending digests for the
// thread can be dropped.
func (e *Emitter) ConversationDeleted(ctx context.Context, conversationID, deletedBy int64) {
	e.emit(ctx, RoutingKeyConversationDeleted, Envelope{
		SchemaVersion:  1,
		EventType:      "conversation_deleted",
		OccurredAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Service:        e.service,
		Environment:    e.environment,
		ConversationID: conversationID,
		UserID:         deletedBy,
	})
}

func (e *Emitter) emit(ctx context.Context, routingKey string, envelope Envelope) {
	if e == nil || e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, routingKey, envelope); err != nil {
		log.Printf("notify publish failed routing_key=%s: %v", routingKey, err)
	}
}
