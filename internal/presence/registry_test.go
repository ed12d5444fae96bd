package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"birthday-chat-service/internal/models"
)

type fakeSink struct {
	mu     sync.Mutex
	events []models.ServerEvent
}

func (s *fakeSink) Send(event models.ServerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) byName(name string) []models.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ServerEvent
	for _, ev := range s.events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestOnlineBroadcastOncePerUser(t *testing.T) {
	registry := NewRegistry()
	observer := &fakeSink{}
	registry.Connect(1, observer)

	tab1 := &fakeSink{}
	tab2 := &fakeSink{}
	registry.Connect(2, tab1)
	registry.Connect(2, tab2)

	// Two simultaneous sessions, exactly one user:online.
	require.Len(t, observer.byName(models.EventUserOnline), 1)

	registry.Disconnect(2, tab1)
	require.Empty(t, observer.byName(models.EventUserOffline))

	registry.Disconnect(2, tab2)
	require.Len(t, observer.byName(models.EventUserOffline), 1)
}

func TestOnlineBroadcastSkipsSelf(t *testing.T) {
	registry := NewRegistry()
	own := &fakeSink{}
	registry.Connect(5, own)
	require.Empty(t, own.events)
}

func TestListOnline(t *testing.T) {
	registry := NewRegistry()
	require.Empty(t, registry.ListOnline())

	registry.Connect(3, &fakeSink{})
	registry.Connect(1, &fakeSink{})
	sink := &fakeSink{}
	registry.Connect(2, sink)

	require.Equal(t, []int64{1, 2, 3}, registry.ListOnline())

	registry.Disconnect(2, sink)
	require.Equal(t, []int64{1, 3}, registry.ListOnline())
}

func TestIsOnline(t *testing.T) {
	registry := NewRegistry()
	sink := &fakeSink{}
	require.False(t, registry.IsOnline(9))
	registry.Connect(9, sink)
	require.True(t, registry.IsOnline(9))
	registry.Disconnect(9, sink)
	require.False(t, registry.IsOnline(9))
}

func TestDisconnectUnknownSinkIsHarmless(t *testing.T) {
	registry := NewRegistry()
	registry.Disconnect(1, &fakeSink{})
	require.Empty(t, registry.ListOnline())
}
