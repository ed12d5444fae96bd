package presence

import (
	"sort"
	"sync"

	"birthday-chat-service/internal/models"
)

// EventSink is the write side of a live connection. Implemented by ws.Client;
// kept as an interface so the registry stays transport-agnostic and testable.
type EventSink interface {
	Send(event models.ServerEvent) error
}

// Registry tracks which users currently hold live connections. It is
// process-local and rebuilt from scratch on restart; presence is best-effort,
// not authoritative. An instance is injected wherever it is needed; there is
// no package-level singleton.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[EventSink]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]map[EventSink]struct{})}
}

// Connect registers a connection for the user. A user with several open tabs
// is tracked as a connection set, so only the 0→1 transition broadcasts
// user:online to everyone else.
func (r *Registry) Connect(userID int64, sink EventSink) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[EventSink]struct{})
		r.conns[userID] = set
	}
	wentOnline := len(set) == 0
	set[sink] = struct{}{}
	var others []EventSink
	if wentOnline {
		others = r.sinksExceptLocked(userID)
	}
	r.mu.Unlock()

	if wentOnline {
		broadcast(others, models.ServerEvent{
			Event: models.EventUserOnline,
			Data:  models.UserPresencePayload{UserID: userID},
		})
	}
}

// Disconnect drops the connection. user:offline goes out only once the user's
// last connection is gone.
func (r *Registry) Disconnect(userID int64, sink EventSink) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if ok {
		delete(set, sink)
		if len(set) == 0 {
			delete(r.conns, userID)
		}
	}
	wentOffline := ok && len(set) == 0
	var others []EventSink
	if wentOffline {
		others = r.sinksExceptLocked(userID)
	}
	r.mu.Unlock()

	if wentOffline {
		broadcast(others, models.ServerEvent{
			Event: models.EventUserOffline,
			Data:  models.UserPresencePayload{UserID: userID},
		})
	}
}

// ListOnline returns the ids of every user with at least one live connection,
// for a freshly-connected client's initial sync.
func (r *Registry) ListOnline() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsOnline reports whether the user has any live connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

func (r *Registry) sinksExceptLocked(userID int64) []EventSink {
	var sinks []EventSink
	for id, set := range r.conns {
		if id == userID {
			continue
		}
		for sink := range set {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}

func broadcast(sinks []EventSink, event models.ServerEvent) {
	for _, sink := range sinks {
		// Best-effort; a failed write surfaces in the connection's own read
		// loop and tears the connection down there.
		_ = sink.Send(event)
	}
}
