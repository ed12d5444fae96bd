package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"birthday-chat-service/internal/apperrors"
	"birthday-chat-service/internal/middleware"
	"birthday-chat-service/internal/models"
	"birthday-chat-service/internal/presence"
	"birthday-chat-service/internal/repositories"
	"birthday-chat-service/internal/ws"
)

// MessageHandler is the REST fallback for message operations. Every mutation
// broadcasts the same events as the socket path so connected clients stay in
// sync regardless of which surface performed it.
type MessageHandler struct {
	convRepo repositories.ConversationRepository
	msgRepo  repositories.MessageRepository
	hub      *ws.Hub
	presence *presence.Registry
	notifier ws.Notifier
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, hub *ws.Hub, registry *presence.Registry, notifier ws.Notifier) *MessageHandler {
	return &MessageHandler{
		convRepo: convRepo,
		msgRepo:  msgRepo,
		hub:      hub,
		presence: registry,
		notifier: notifier,
	}
}

// ListMessages returns a page of the conversation log in append order.
// Pagination walks backwards with `before` (a message id) and `limit`.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	if err := h.requireParticipant(c, conversationID, userID); err != nil {
		respondError(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	before, _ := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)

	msgs, err := h.msgRepo.ListForConversation(c.Request.Context(), conversationID, limit, before)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage appends a message and broadcasts it to the channel.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Validation("content is required"))
		return
	}
	if err := models.ValidateContent(req.Content); err != nil {
		respondError(c, err)
		return
	}

	conv, err := h.convRepo.Get(c.Request.Context(), conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !conv.HasParticipant(userID) {
		respondError(c, apperrors.Forbidden("not a conversation participant"))
		return
	}

	msg, err := h.msgRepo.Create(c.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Broadcast(conversationID, models.ServerEvent{
		Event: models.EventMessageNew,
		Data:  models.MessageNewPayload{ConversationID: conversationID, Message: msg},
	})
	h.hub.Broadcast(conversationID, models.ServerEvent{
		Event: models.EventConversationUpdated,
		Data: models.ConversationUpdatedPayload{
			ConversationID: conversationID,
			LastMessage:    &msg,
			LastMessageAt:  &msg.CreatedAt,
		},
	})

	recipient := conv.OtherParticipant(userID)
	if h.notifier != nil && h.presence != nil && !h.presence.IsOnline(recipient) {
		h.notifier.MessageCreated(c.Request.Context(), msg, recipient)
	}

	c.JSON(http.StatusCreated, msg)
}

// EditMessage rewrites a message within the edit window.
func (h *MessageHandler) EditMessage(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Validation("content is required"))
		return
	}
	if err := models.ValidateContent(req.Content); err != nil {
		respondError(c, err)
		return
	}

	msg, err := h.msgRepo.Get(c.Request.Context(), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg.ConversationID != conversationID {
		respondError(c, apperrors.Validation("message does not belong to conversation"))
		return
	}
	if err := msg.EditableBy(userID, time.Now()); err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.msgRepo.Edit(c.Request.Context(), messageID, userID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	h.hub.Broadcast(conversationID, models.ServerEvent{
		Event: models.EventMessageEdited,
		Data: models.MessageEditedPayload{
			MessageID:      updated.ID,
			ConversationID: updated.ConversationID,
			Content:        updated.Content,
			Edited:         updated.Edited,
			EditedAt:       updated.EditedAt,
		},
	})

	c.JSON(http.StatusOK, updated)
}

// DeleteMessage removes a message (author only) and fixes the conversation's
// last-message pointer.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	messageID, ok := pathID(c, "message_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	msg, err := h.msgRepo.Get(c.Request.Context(), messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	if msg.ConversationID != conversationID {
		respondError(c, apperrors.Validation("message does not belong to conversation"))
		return
	}
	if err := msg.DeletableBy(userID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.msgRepo.Delete(c.Request.Context(), messageID); err != nil {
		respondError(c, err)
		return
	}

	h.hub.Broadcast(conversationID, models.ServerEvent{
		Event: models.EventMessageDeleted,
		Data:  models.MessageDeletedPayload{MessageID: messageID, ConversationID: conversationID},
	})

	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) requireParticipant(c *gin.Context, conversationID, userID int64) error {
	ok, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Forbidden("not a conversation participant")
	}
	return nil
}
