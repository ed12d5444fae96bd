package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"birthday-chat-service/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []models.ServerEvent
}

func (r *recorder) record(event models.ServerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Event)
	}
	return out
}

func (r *recorder) last() (models.ServerEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return models.ServerEvent{}, false
	}
	return r.events[len(r.events)-1], true
}

func newTestClient(userID int64) (*Client, *recorder) {
	rec := &recorder{}
	c := &Client{userID: userID, info: ConnInfo{UserID: userID}}
	c.sendFn = rec.record
	return c, rec
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub()
	c, _ := newTestClient(1)

	hub.Join(10, c)
	require.True(t, hub.IsJoined(10, c))

	hub.Leave(10, c)
	require.False(t, hub.IsJoined(10, c))
	require.Empty(t, hub.rooms)
	require.Empty(t, hub.joined)
}

func TestHubBroadcastIncludesOriginator(t *testing.T) {
	hub := NewHub()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	hub.Join(10, a)
	hub.Join(10, b)

	hub.Broadcast(10, models.ServerEvent{Event: models.EventMessageNew})

	require.Equal(t, []string{models.EventMessageNew}, recA.names())
	require.Equal(t, []string{models.EventMessageNew}, recB.names())
}

func TestHubBroadcastExceptUser(t *testing.T) {
	hub := NewHub()
	a, recA := newTestClient(1)
	b, recB := newTestClient(2)
	hub.Join(10, a)
	hub.Join(10, b)

	hub.BroadcastExceptUser(10, 1, models.ServerEvent{Event: models.EventTypingStart})

	require.Empty(t, recA.names())
	require.Equal(t, []string{models.EventTypingStart}, recB.names())
}

func TestHubBroadcastExceptUserSkipsEveryConnection(t *testing.T) {
	hub := NewHub()
	tab1, recTab1 := newTestClient(2)
	tab2, recTab2 := newTestClient(2)
	other, recOther := newTestClient(1)
	hub.Join(10, tab1)
	hub.Join(10, tab2)
	hub.Join(10, other)

	hub.BroadcastExceptUser(10, 2, models.ServerEvent{Event: models.EventMessagesRead})

	// The reading user gets nothing on any open tab.
	require.Empty(t, recTab1.names())
	require.Empty(t, recTab2.names())
	require.Equal(t, []string{models.EventMessagesRead}, recOther.names())
}

func TestHubBroadcastSkipsNonMembers(t *testing.T) {
	hub := NewHub()
	member, recMember := newTestClient(1)
	outsider, recOutsider := newTestClient(3)
	hub.Join(10, member)
	hub.Join(11, outsider)

	hub.Broadcast(10, models.ServerEvent{Event: models.EventMessageNew})

	require.Len(t, recMember.names(), 1)
	require.Empty(t, recOutsider.names())
}

func TestHubDropClientRemovesAllMemberships(t *testing.T) {
	hub := NewHub()
	c, rec := newTestClient(1)
	hub.Join(10, c)
	hub.Join(11, c)

	hub.DropClient(c)

	hub.Broadcast(10, models.ServerEvent{Event: models.EventMessageNew})
	hub.Broadcast(11, models.ServerEvent{Event: models.EventMessageNew})
	require.Empty(t, rec.names())
	require.Empty(t, hub.rooms)
	require.Empty(t, hub.joined)
}

func TestHubDropRoom(t *testing.T) {
	hub := NewHub()
	a, _ := newTestClient(1)
	b, _ := newTestClient(2)
	hub.Join(10, a)
	hub.Join(10, b)

	hub.DropRoom(10)

	require.False(t, hub.IsJoined(10, a))
	require.False(t, hub.IsJoined(10, b))
	require.Empty(t, hub.rooms)
}
