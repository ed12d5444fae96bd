package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"birthday-chat-service/internal/apperrors"
	"birthday-chat-service/internal/middleware"
	"birthday-chat-service/internal/models"
	"birthday-chat-service/internal/repositories"
	"birthday-chat-service/internal/ws"
)

// ConversationHandler serves the REST side of conversations. It shares the
// repositories and hub with the socket router so both surfaces observe and
// produce identical state.
type ConversationHandler struct {
	convRepo   repositories.ConversationRepository
	msgRepo    repositories.MessageRepository
	friendRepo repositories.FriendshipRepository
	hub        *ws.Hub
	notifier   ws.Notifier
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(convRepo repositories.ConversationRepository, msgRepo repositories.MessageRepository, friendRepo repositories.FriendshipRepository, hub *ws.Hub, notifier ws.Notifier) *ConversationHandler {
	return &ConversationHandler{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		friendRepo: friendRepo,
		hub:        hub,
		notifier:   notifier,
	}
}

// ListConversations returns the caller's conversations with unread counts,
// most recently active first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := middleware.UserID(c)

	summaries, err := h.convRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if summaries == nil {
		summaries = []models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// StartConversation creates or returns the conversation with a friend. The
// accepted-friendship edge is the precondition; a concurrent start from both
// sides resolves to the same conversation.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		FriendID int64 `json:"friendId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.Validation("friendId is required"))
		return
	}

	userID := middleware.UserID(c)
	if userID == req.FriendID {
		respondError(c, apperrors.Validation("cannot start a conversation with yourself"))
		return
	}

	friends, err := h.friendRepo.AreFriends(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !friends {
		respondError(c, apperrors.Forbidden("users are not friends"))
		return
	}

	conv, err := h.convRepo.FindOrCreate(c.Request.Context(), userID, req.FriendID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversationId": conv.ID})
}

// MarkRead stamps read-receipts for the caller, mirroring the socket event.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	if err := h.requireParticipant(c, conversationID, userID); err != nil {
		respondError(c, err)
		return
	}

	count, err := h.msgRepo.MarkRead(c.Request.Context(), conversationID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if count > 0 {
		// Receipts go to the other participants only, as on the socket path.
		h.hub.BroadcastExceptUser(conversationID, userID, models.ServerEvent{
			Event: models.EventMessagesRead,
			Data:  models.MessagesReadPayload{ConversationID: conversationID, UserID: userID, Count: count},
		})
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// DeleteConversation cascades message deletion and notifies the channel.
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	if err := h.requireParticipant(c, conversationID, userID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.convRepo.Delete(c.Request.Context(), conversationID); err != nil {
		respondError(c, err)
		return
	}

	h.hub.Broadcast(conversationID, models.ServerEvent{
		Event: models.EventConversationDeleted,
		Data:  models.ConversationDeletedPayload{ConversationID: conversationID},
	})
	h.hub.DropRoom(conversationID)

	if h.notifier != nil {
		h.notifier.ConversationDeleted(c.Request.Context(), conversationID, userID)
	}

	c.Status(http.StatusNoContent)
}

// ListUnread is the read-only query the digest/email service polls; it never
// mutates receipt state.
func (h *ConversationHandler) ListUnread(c *gin.Context) {
	conversationID, ok := pathID(c, "conversation_id")
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	if err := h.requireParticipant(c, conversationID, userID); err != nil {
		respondError(c, err)
		return
	}

	since := time.Time{}
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(c, apperrors.Validation("since must be RFC3339"))
			return
		}
		since = parsed
	}

	msgs, err := h.msgRepo.ListUnreadSince(c.Request.Context(), conversationID, userID, since)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *ConversationHandler) requireParticipant(c *gin.Context, conversationID, userID int64) error {
	ok, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Forbidden("not a conversation participant")
	}
	return nil
}
