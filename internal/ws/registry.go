package ws

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/parley/internal/metrics"
)

// Channel is the send side of one connected client. *Client implements it;
// tests substitute a stub.
type Channel interface {
	// Enqueue hands an event to the channel without blocking. It returns
	// false when the send buffer is full.
	Enqueue(ev Event) bool

	// CloseReplaced closes the underlying connection because a newer
	// session for the same identity took over.
	CloseReplaced()
}

// Registry is the process-local map from identity to its one active
// channel. It is constructed at startup and injected into the router and
// the websocket handler; membership is best-effort and not persisted.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Channel
	logger  zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Channel),
		logger:  logger,
	}
}

// Connect binds identity to ch and announces the join to everyone else.
// A stale channel for the same identity is explicitly closed before the
// binding is replaced, so at most one channel per identity is ever live.
func (r *Registry) Connect(identity string, ch Channel) {
	r.mu.Lock()
	stale, replaced := r.clients[identity]
	r.clients[identity] = ch
	count := len(r.clients)
	r.mu.Unlock()

	if replaced {
		stale.CloseReplaced()
	}

	metrics.WSConnections.Set(float64(count))
	metrics.PresenceEvents.WithLabelValues("online").Inc()
	r.logger.Info().Str("user", identity).Bool("replaced", replaced).Int("online", count).Msg("channel connected")

	r.Broadcast(PresenceEvent(identity, "online", time.Now().UnixMilli()), map[string]bool{identity: true})
}

// Disconnect removes the binding and announces the leave. It is a no-op
// when identity is absent or when the map already points at a newer
// channel, so a replaced session can never evict its replacement and
// deregistration happens exactly once.
func (r *Registry) Disconnect(identity string, ch Channel) {
	r.mu.Lock()
	current, ok := r.clients[identity]
	if ok && current == ch {
		delete(r.clients, identity)
	} else {
		ok = false
	}
	count := len(r.clients)
	r.mu.Unlock()

	if !ok {
		return
	}

	metrics.WSConnections.Set(float64(count))
	metrics.PresenceEvents.WithLabelValues("offline").Inc()
	r.logger.Info().Str("user", identity).Int("online", count).Msg("channel disconnected")

	r.Broadcast(PresenceEvent(identity, "offline", time.Now().UnixMilli()), map[string]bool{identity: true})
}

// SendTo delivers an event to identity's channel. It returns false without
// error when identity is not connected; callers use this to take the
// offline-notice path.
func (r *Registry) SendTo(identity string, ev Event) bool {
	r.mu.RLock()
	ch, ok := r.clients[identity]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	if !ch.Enqueue(ev) {
		// Full buffer means the peer stopped draining; the pump will
		// notice on its next write and deregister.
		r.logger.Warn().Str("user", identity).Str("event", ev.Type).Msg("send buffer full, event dropped")
	}
	return true
}

// Broadcast delivers an event to every registered identity not in exclude.
// The recipient set is snapshotted under the read lock and delivery happens
// outside it, so concurrent connects and disconnects cannot fault the
// enumeration.
func (r *Registry) Broadcast(ev Event, exclude map[string]bool) {
	r.mu.RLock()
	targets := make([]Channel, 0, len(r.clients))
	for identity, ch := range r.clients {
		if exclude[identity] {
			continue
		}
		targets = append(targets, ch)
	}
	r.mu.RUnlock()

	for _, ch := range targets {
		ch.Enqueue(ev)
	}
}

// Online reports whether identity currently has a registered channel.
func (r *Registry) Online(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[identity]
	return ok
}

// Count returns the number of registered channels.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
