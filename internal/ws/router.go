package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"birthday-chat-service/internal/apperrors"
	"birthday-chat-service/internal/models"
	"birthday-chat-service/internal/observability"
	"birthday-chat-service/internal/presence"
	"birthday-chat-service/internal/repositories"
)

// Notifier feeds the email/digest collaborator through the message bus.
type Notifier interface {
	MessageCreated(ctx context.Context, msg models.Message, recipientID int64)
	ConversationDeleted(ctx context.Context, conversationID, deletedBy int64)
}

// Router validates inbound client events, mutates the stores, and fans the
// resulting events out to subscribed connections. It holds no durable state
// of its own; every mutation is validate-then-mutate against the repositories.
type Router struct {
	hub      *Hub
	presence *presence.Registry
	convRepo repositories.ConversationRepository
	msgRepo  repositories.MessageRepository
	notifier Notifier
}

// NewRouter wires the router's collaborators.
func NewRouter(hub *Hub, registry *presence.Registry, convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, notifier Notifier) *Router {
	return &Router{
		hub:      hub,
		presence: registry,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		notifier: notifier,
	}
}

// Dispatch routes one inbound envelope. Precondition violations are reported
// as a scoped error event to the originating connection only; the connection
// stays open either way.
func (r *Router) Dispatch(ctx context.Context, c *Client, env models.Envelope) {
	observability.IncWSEvent("chat", env.Event)

	var err error
	switch env.Event {
	case models.EventConversationsJoin:
		err = r.joinAll(ctx, c)
	case models.EventConversationJoin:
		err = withPayload(env, func(p models.ConversationRef) error {
			return r.joinConversation(ctx, c, p.ConversationID)
		})
	case models.EventConversationLeave:
		err = withPayload(env, func(p models.ConversationRef) error {
			r.hub.Leave(p.ConversationID, c)
			return nil
		})
	case models.EventMessageSend:
		err = withPayload(env, func(p models.SendMessagePayload) error {
			return r.sendMessage(ctx, c, p)
		})
	case models.EventMessageEdit:
		err = withPayload(env, func(p models.EditMessagePayload) error {
			return r.editMessage(ctx, c, p)
		})
	case models.EventMessageDelete:
		err = withPayload(env, func(p models.DeleteMessagePayload) error {
			return r.deleteMessage(ctx, c, p)
		})
	case models.EventMessagesRead:
		err = withPayload(env, func(p models.ConversationRef) error {
			return r.markRead(ctx, c, p.ConversationID)
		})
	case models.EventTypingStart:
		err = withPayload(env, func(p models.ConversationRef) error {
			return r.relayTyping(ctx, c, p.ConversationID, models.EventTypingStart)
		})
	case models.EventTypingStop:
		err = withPayload(env, func(p models.ConversationRef) error {
			return r.relayTyping(ctx, c, p.ConversationID, models.EventTypingStop)
		})
	case models.EventConversationDelete:
		err = withPayload(env, func(p models.ConversationRef) error {
			return r.deleteConversation(ctx, c, p.ConversationID)
		})
	case models.EventUsersGetOnline:
		err = c.Send(models.ServerEvent{
			Event: models.EventUsersOnline,
			Data:  models.UsersOnlinePayload{UserIDs: r.presence.ListOnline()},
		})
	default:
		err = apperrors.Validation("unknown event: " + env.Event)
	}

	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeInternal {
			log.Printf("ws dispatch %s failed: %v", env.Event, err)
		}
		c.SendError(string(apperrors.CodeOf(err)), apperrors.MessageOf(err))
	}
}

func withPayload[T any](env models.Envelope, fn func(T) error) error {
	var payload T
	if len(env.Data) == 0 {
		return apperrors.Validation("missing event payload")
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return apperrors.Validation("malformed event payload")
	}
	return fn(payload)
}

// joinAll subscribes the connection to every conversation its user
// participates in.
func (r *Router) joinAll(ctx context.Context, c *Client) error {
	ids, err := r.convRepo.ListIDsForUser(ctx, c.UserID())
	if err != nil {
		return err
	}
	for _, id := range ids {
		r.hub.Join(id, c)
	}
	return nil
}

// joinConversation is the access-control boundary for the chat surface:
// non-participants are rejected before any subscription happens.
func (r *Router) joinConversation(ctx context.Context, c *Client, conversationID int64) error {
	if err := r.requireParticipant(ctx, c, conversationID); err != nil {
		return err
	}
	r.hub.Join(conversationID, c)
	return nil
}

func (r *Router) sendMessage(ctx context.Context, c *Client, p models.SendMessagePayload) error {
	if err := models.ValidateContent(p.Content); err != nil {
		return err
	}
	conv, err := r.convRepo.Get(ctx, p.ConversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(c.UserID()) {
		return apperrors.Forbidden("not a conversation participant")
	}

	msg, err := r.msgRepo.Create(ctx, p.ConversationID, c.UserID(), p.Content)
	if err != nil {
		return err
	}

	r.hub.Broadcast(p.ConversationID, models.ServerEvent{
		Event: models.EventMessageNew,
		Data:  models.MessageNewPayload{ConversationID: p.ConversationID, Message: msg},
	})
	r.hub.Broadcast(p.ConversationID, models.ServerEvent{
		Event: models.EventConversationUpdated,
		Data: models.ConversationUpdatedPayload{
			ConversationID: p.ConversationID,
			LastMessage:    &msg,
			LastMessageAt:  &msg.CreatedAt,
		},
	})

	recipient := conv.OtherParticipant(c.UserID())
	if r.notifier != nil && !r.presence.IsOnline(recipient) {
		r.notifier.MessageCreated(ctx, msg, recipient)
	}
	return nil
}

func (r *Router) editMessage(ctx context.Context, c *Client, p models.EditMessagePayload) error {
	if err := models.ValidateContent(p.Content); err != nil {
		return err
	}
	msg, err := r.msgRepo.Get(ctx, p.MessageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != p.ConversationID {
		return apperrors.Validation("message does not belong to conversation")
	}
	if err := msg.EditableBy(c.UserID(), time.Now()); err != nil {
		return err
	}

	updated, err := r.msgRepo.Edit(ctx, p.MessageID, c.UserID(), p.Content)
	if err != nil {
		return err
	}

	r.hub.Broadcast(p.ConversationID, models.ServerEvent{
		Event: models.EventMessageEdited,
		Data: models.MessageEditedPayload{
			MessageID:      updated.ID,
			ConversationID: updated.ConversationID,
			Content:        updated.Content,
			Edited:         updated.Edited,
			EditedAt:       updated.EditedAt,
		},
	})
	return nil
}

func (r *Router) deleteMessage(ctx context.Context, c *Client, p models.DeleteMessagePayload) error {
	msg, err := r.msgRepo.Get(ctx, p.MessageID)
	if err != nil {
		return err
	}
	if msg.ConversationID != p.ConversationID {
		return apperrors.Validation("message does not belong to conversation")
	}
	if err := msg.DeletableBy(c.UserID()); err != nil {
		return err
	}

	if err := r.msgRepo.Delete(ctx, p.MessageID); err != nil {
		return err
	}

	r.hub.Broadcast(p.ConversationID, models.ServerEvent{
		Event: models.EventMessageDeleted,
		Data:  models.MessageDeletedPayload{MessageID: p.MessageID, ConversationID: p.ConversationID},
	})
	return nil
}

// markRead stamps receipts and tells the other participants. A count of zero
// is a valid no-op and suppresses the broadcast entirely.
func (r *Router) markRead(ctx context.Context, c *Client, conversationID int64) error {
	if err := r.requireParticipant(ctx, c, conversationID); err != nil {
		return err
	}
	count, err := r.msgRepo.MarkRead(ctx, conversationID, c.UserID())
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	r.hub.BroadcastExceptUser(conversationID, c.UserID(), models.ServerEvent{
		Event: models.EventMessagesRead,
		Data:  models.MessagesReadPayload{ConversationID: conversationID, UserID: c.UserID(), Count: count},
	})
	return nil
}

// relayTyping forwards the indicator to the rest of the channel. The server
// keeps no typing state and runs no timers; idle expiry is the client's job.
func (r *Router) relayTyping(ctx context.Context, c *Client, conversationID int64, event string) error {
	if err := r.requireParticipant(ctx, c, conversationID); err != nil {
		return err
	}
	r.hub.BroadcastExceptUser(conversationID, c.UserID(), models.ServerEvent{
		Event: event,
		Data:  models.TypingPayload{ConversationID: conversationID, UserID: c.UserID()},
	})
	return nil
}

func (r *Router) deleteConversation(ctx context.Context, c *Client, conversationID int64) error {
	if err := r.requireParticipant(ctx, c, conversationID); err != nil {
		return err
	}
	if err := r.convRepo.Delete(ctx, conversationID); err != nil {
		return err
	}

	r.hub.Broadcast(conversationID, models.ServerEvent{
		Event: models.EventConversationDeleted,
		Data:  models.ConversationDeletedPayload{ConversationID: conversationID},
	})
	r.hub.DropRoom(conversationID)

	if r.notifier != nil {
		r.notifier.ConversationDeleted(ctx, conversationID, c.UserID())
	}
	return nil
}

func (r *Router) requireParticipant(ctx context.Context, c *Client, conversationID int64) error {
	ok, err := r.convRepo.IsParticipant(ctx, conversationID, c.UserID())
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Forbidden("not a conversation participant")
	}
	return nil
}
