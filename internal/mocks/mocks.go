package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"birthday-chat-service/internal/auth"
	"birthday-chat-service/internal/models"
	"birthday-chat-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) FindOrCreate(ctx context.Context, userID, friendID int64) (models.Conversation, error) {
	args := m.Called(ctx, userID, friendID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID int64) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) ListIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	args := m.Called(ctx, userID)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) Delete(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, conversationID, senderID int64, content string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, messageID, userID int64, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, userID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, conversationID, userID int64) (int, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) ListForConversation(ctx context.Context, conversationID int64, limit int, before int64) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, before)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListUnreadSince(ctx context.Context, conversationID, userID int64, since time.Time) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, userID, since)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type FriendshipRepositoryMock struct {
	mock.Mock
}

func (m *FriendshipRepositoryMock) AreFriends(ctx context.Context, userID, friendID int64) (bool, error) {
	args := m.Called(ctx, userID, friendID)
	return args.Bool(0), args.Error(1)
}

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) ValidateToken(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) MessageCreated(ctx context.Context, msg models.Message, recipientID int64) {
	m.Called(ctx, msg, recipientID)
}

func (m *NotifierMock) ConversationDeleted(ctx context.Context, conversationID, deletedBy int64) {
	m.Called(ctx, conversationID, deletedBy)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.FriendshipRepository = (*FriendshipRepositoryMock)(nil)
var _ auth.TokenVerifier = (*TokenVerifierMock)(nil)
