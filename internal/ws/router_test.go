package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"birthday-chat-service/internal/apperrors"
	"birthday-chat-service/internal/mocks"
	"birthday-chat-service/internal/models"
	"birthday-chat-service/internal/presence"
)

func envelope(t *testing.T, event string, payload any) models.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.Envelope{Event: event, Data: raw}
}

type routerFixture struct {
	router   *Router
	hub      *Hub
	registry *presence.Registry
	convRepo *mocks.ConversationRepositoryMock
	msgRepo  *mocks.MessageRepositoryMock
	notifier *mocks.NotifierMock
}

func newRouterFixture() *routerFixture {
	f := &routerFixture{
		hub:      NewHub(),
		registry: presence.NewRegistry(),
		convRepo: new(mocks.ConversationRepositoryMock),
		msgRepo:  new(mocks.MessageRepositoryMock),
		notifier: new(mocks.NotifierMock),
	}
	f.router = NewRouter(f.hub, f.registry, f.convRepo, f.msgRepo, f.notifier)
	return f
}

func requireErrorEvent(t *testing.T, rec *recorder, code apperrors.Code) {
	t.Helper()
	last, ok := rec.last()
	require.True(t, ok, "expected an error event")
	require.Equal(t, models.EventError, last.Event)
	payload, ok := last.Data.(models.ErrorPayload)
	require.True(t, ok)
	require.Equal(t, string(code), payload.Code)
}

func TestSendMessageBroadcastsToChannel(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	f.hub.Join(10, a)
	f.hub.Join(10, b)
	f.registry.Connect(2, b)

	conv := models.Conversation{ID: 10, User1ID: 1, User2ID: 2}
	msg := models.Message{ID: 100, ConversationID: 10, SenderID: 1, Content: "Hello", CreatedAt: time.Now(), ReadBy: []int64{1}}
	f.convRepo.On("Get", mock.Anything, int64(10)).Return(conv, nil).Once()
	f.msgRepo.On("Create", mock.Anything, int64(10), int64(1), "Hello").Return(msg, nil).Once()

	f.router.Dispatch(context.Background(), a, envelope(t, models.EventMessageSend,
		models.SendMessagePayload{ConversationID: 10, Content: "Hello"}))

	// Echo to the sender is the confirmation signal.
	require.Equal(t, []string{models.EventMessageNew, models.EventConversationUpdated}, recA.names())
	require.Equal(t, []string{models.EventMessageNew, models.EventConversationUpdated}, recB.names())

	payload := recB.events[0].Data.(models.MessageNewPayload)
	require.Equal(t, "Hello", payload.Message.Content)
	require.Equal(t, []int64{1}, payload.Message.ReadBy)

	// Recipient was online, so no offline notification goes out.
	f.notifier.AssertNotCalled(t, "MessageCreated", mock.Anything, mock.Anything, mock.Anything)
	f.convRepo.AssertExpectations(t)
	f.msgRepo.AssertExpectations(t)
}

func TestSendMessageNotifiesOfflineRecipient(t *testing.T) {
	f := newRouterFixture()
	a, _ := newTestClient(1)
	f.hub.Join(10, a)

	conv := models.Conversation{ID: 10, User1ID: 1, User2ID: 2}
	msg := models.Message{ID: 100, ConversationID: 10, SenderID: 1, Content: "Hello", ReadBy: []int64{1}}
	f.convRepo.On("Get", mock.Anything, int64(10)).Return(conv, nil).Once()
	f.msgRepo.On("Create", mock.Anything, int64(10), int64(1), "Hello").Return(msg, nil).Once()
	f.notifier.On("MessageCreated", mock.Anything, msg, int64(2)).Once()

	f.router.Dispatch(context.Background(), a, envelope(t, models.EventMessageSend,
		models.SendMessagePayload{ConversationID: 10, Content: "Hello"}))

	f.notifier.AssertExpectations(t)
}

func TestSendMessageRejectsInvalidContent(t *testing.T) {
	f := newRouterFixture()
	c, rec := newTestClient(1)

	f.router.Dispatch(context.Background(), c, envelope(t, models.EventMessageSend,
		models.SendMessagePayload{ConversationID: 10, Content: "   "}))

	requireErrorEvent(t, rec, apperrors.CodeValidation)
	f.msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	f := newRouterFixture()
	c, rec := newTestClient(3)

	conv := models.Conversation{ID: 10, User1ID: 1, User2ID: 2}
	f.convRepo.On("Get", mock.Anything, int64(10)).Return(conv, nil).Once()

	f.router.Dispatch(context.Background(), c, envelope(t, models.EventMessageSend,
		models.SendMessagePayload{ConversationID: 10, Content: "hi"}))

	requireErrorEvent(t, rec, apperrors.CodeForbidden)
	f.msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageByNonAuthorForbidden(t *testing.T) {
	f := newRouterFixture()
	c, rec := newTestClient(2)

	msg := models.Message{ID: 100, ConversationID: 10, SenderID: 1, Content: "Hello", CreatedAt: time.Now()}
	f.msgRepo.On("Get", mock.Anything, int64(100)).Return(msg, nil).Once()

	f.router.Dispatch(context.Background(), c, envelope(t, models.EventMessageEdit,
		models.EditMessagePayload{MessageID: 100, ConversationID: 10, Content: "tampered"}))

	requireErrorEvent(t, rec, apperrors.CodeForbidden)
	f.msgRepo.AssertNotCalled(t, "Edit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEditMessageWithinWindow(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	f.hub.Join(10, a)
	f.hub.Join(10, b)

	created := time.Now().Add(-(models.EditWindow - time.Second))
	editedAt := time.Now()
	msg := models.Message{ID: 100, ConversationID: 10, SenderID: 1, Content: "Hello", CreatedAt: created}
	updated := models.Message{ID: 100, ConversationID: 10, SenderID: 1, Content: "Hello!", Edited: true, EditedAt: &editedAt, CreatedAt: created}
	f.msgRepo.On("Get", mock.Anything, int64(100)).Return(msg, nil).Once()
	f.msgRepo.On("Edit", mock.Anything, int64(100), int64(1), "Hello!").Return(updated, nil).Once()

	f.router.Dispatch(context.Background(), a, envelope(t, models.EventMessageEdit,
		models.EditMessagePayload{MessageID: 100, ConversationID: 10, Content: "Hello!"}))

	require.Equal(t, []string{models.EventMessageEdited}, recA.names())
	require.Equal(t, []string{models.EventMessageEdited}, recB.names())
	payload := recB.events[0].Data.(models.MessageEditedPayload)
	require.True(t, payload.Edited)
	require.Equal(t, "Hello!", payload.Content)
}

func TestEditMessageAfterWindowExpired(t *testing.T) {
	f := newRouterFixture()
	c, rec := newTestClient(1)

	created := time.Now().Add(-(models.EditWindow + time.Minute))
	msg := models.Message{ID: 100, ConversationID: 10, SenderID: 1, Content: "Hello!", CreatedAt: created}
	f.msgRepo.On("Get", mock.Anything, int64(100)).Return(msg, nil).Once()

	f.router.Dispatch(context.Background(), c, envelope(t, models.EventMessageEdit,
		models.EditMessagePayload{MessageID: 100, ConversationID: 10, Content: "Hello!!"}))

	requireErrorEvent(t, rec, apperrors.CodeExpired)
	f.msgRepo.AssertNotCalled(t, "Edit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMessageByAuthor(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	f.hub.Join(10, a)
	f.hub.Join(10, b)

	msg := models.Message{ID: 100, ConversationID: 10, SenderID: 1}
	f.msgRepo.On("Get", mock.Anything, int64(100)).Return(msg, nil).Once()
	f.msgRepo.On("Delete", mock.Anything, int64(100)).Return(nil).Once()

	f.router.Dispatch(context.Background(), a, envelope(t, models.EventMessageDelete,
		models.DeleteMessagePayload{MessageID: 100, ConversationID: 10}))

	require.Equal(t, []string{models.EventMessageDeleted}, recA.names())
	require.Equal(t, []string{models.EventMessageDeleted}, recB.names())
}

func TestMarkReadBroadcastsToOthersOnly(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	secondTab, recSecondTab := newTestClient(2)
	f.hub.Join(10, a)
	f.hub.Join(10, b)
	f.hub.Join(10, secondTab)

	f.convRepo.On("IsParticipant", mock.Anything, int64(10), int64(2)).Return(true, nil).Once()
	f.msgRepo.On("MarkRead", mock.Anything, int64(10), int64(2)).Return(3, nil).Once()

	f.router.Dispatch(context.Background(), b, envelope(t, models.EventMessagesRead,
		models.ConversationRef{ConversationID: 10}))

	require.Equal(t, []string{models.EventMessagesRead}, recA.names())
	require.Empty(t, recB.names())
	require.Empty(t, recSecondTab.names())

	payload := recA.events[0].Data.(models.MessagesReadPayload)
	require.Equal(t, int64(2), payload.UserID)
	require.Equal(t, 3, payload.Count)
}

func TestMarkReadIdempotentNoopSuppressesBroadcast(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, _ := newTestClient(2)
	f.hub.Join(10, a)
	f.hub.Join(10, b)

	f.convRepo.On("IsParticipant", mock.Anything, int64(10), int64(2)).Return(true, nil).Once()
	f.msgRepo.On("MarkRead", mock.Anything, int64(10), int64(2)).Return(0, nil).Once()

	f.router.Dispatch(context.Background(), b, envelope(t, models.EventMessagesRead,
		models.ConversationRef{ConversationID: 10}))

	require.Empty(t, recA.names())
}

func TestTypingRelayedToOthers(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	f.hub.Join(10, a)
	f.hub.Join(10, b)

	f.convRepo.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(true, nil).Twice()

	f.router.Dispatch(context.Background(), a, envelope(t, models.EventTypingStart,
		models.ConversationRef{ConversationID: 10}))
	f.router.Dispatch(context.Background(), a, envelope(t, models.EventTypingStop,
		models.ConversationRef{ConversationID: 10}))

	require.Empty(t, recA.names())
	require.Equal(t, []string{models.EventTypingStart, models.EventTypingStop}, recB.names())
	payload := recB.events[0].Data.(models.TypingPayload)
	require.Equal(t, int64(1), payload.UserID)
}

func TestJoinConversationRejectsNonParticipant(t *testing.T) {
	f := newRouterFixture()
	c, rec := newTestClient(3)

	f.convRepo.On("IsParticipant", mock.Anything, int64(10), int64(3)).Return(false, nil).Once()

	f.router.Dispatch(context.Background(), c, envelope(t, models.EventConversationJoin,
		models.ConversationRef{ConversationID: 10}))

	requireErrorEvent(t, rec, apperrors.CodeForbidden)
	require.False(t, f.hub.IsJoined(10, c))
}

func TestJoinAllSubscribesEveryConversation(t *testing.T) {
	f := newRouterFixture()
	c, _ := newTestClient(1)

	f.convRepo.On("ListIDsForUser", mock.Anything, int64(1)).Return([]int64{10, 11}, nil).Once()

	f.router.Dispatch(context.Background(), c, models.Envelope{Event: models.EventConversationsJoin})

	require.True(t, f.hub.IsJoined(10, c))
	require.True(t, f.hub.IsJoined(11, c))
}

func TestLeaveConversation(t *testing.T) {
	f := newRouterFixture()
	c, _ := newTestClient(1)
	f.hub.Join(10, c)

	f.router.Dispatch(context.Background(), c, envelope(t, models.EventConversationLeave,
		models.ConversationRef{ConversationID: 10}))

	require.False(t, f.hub.IsJoined(10, c))
}

func TestDeleteConversationCascades(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	f.hub.Join(10, a)
	f.hub.Join(10, b)

	f.convRepo.On("IsParticipant", mock.Anything, int64(10), int64(1)).Return(true, nil).Once()
	f.convRepo.On("Delete", mock.Anything, int64(10)).Return(nil).Once()
	f.notifier.On("ConversationDeleted", mock.Anything, int64(10), int64(1)).Once()

	f.router.Dispatch(context.Background(), a, envelope(t, models.EventConversationDelete,
		models.ConversationRef{ConversationID: 10}))

	require.Equal(t, []string{models.EventConversationDeleted}, recA.names())
	require.Equal(t, []string{models.EventConversationDeleted}, recB.names())
	require.False(t, f.hub.IsJoined(10, a))
	require.False(t, f.hub.IsJoined(10, b))
	f.notifier.AssertExpectations(t)
}

func TestGetOnlineUsersRepliesToCallerOnly(t *testing.T) {
	f := newRouterFixture()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	f.registry.Connect(1, a)
	f.registry.Connect(2, b)

	f.router.Dispatch(context.Background(), a, models.Envelope{Event: models.EventUsersGetOnline})

	names := recA.names()
	require.Contains(t, names, models.EventUsersOnline)
	last, _ := recA.last()
	payload := last.Data.(models.UsersOnlinePayload)
	require.Equal(t, []int64{1, 2}, payload.UserIDs)
	require.NotContains(t, recB.names(), models.EventUsersOnline)
}

func TestUnknownEventReturnsValidationError(t *testing.T) {
	f := newRouterFixture()
	c, rec := newTestClient(1)

	f.router.Dispatch(context.Background(), c, models.Envelope{Event: "no:such:event"})

	requireErrorEvent(t, rec, apperrors.CodeValidation)
}

func TestMalformedPayloadReturnsValidationError(t *testing.T) {
	f := newRouterFixture()
	c, rec := newTestClient(1)

	f.router.Dispatch(context.Background(), c, models.Envelope{
		Event: models.EventMessageSend,
		Data:  json.RawMessage(`{"conversationId":"not-a-number"}`),
	})

	requireErrorEvent(t, rec, apperrors.CodeValidation)
}
