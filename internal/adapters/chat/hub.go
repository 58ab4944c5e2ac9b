package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/core"
)

// Hub tracks every open connection, bound or not to a session.
// Membership is transport-level only: a conn is added on upgrade and
// removed on close, independent of session lifetime.
type Hub struct {
	mu    sync.RWMutex
	conns map[core.Connection]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[core.Connection]struct{})}
}

func (h *Hub) Add(c core.Connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	log.Info().Str("module", "chat.hub").Int("total", n).Msg("connection added")
}

func (h *Hub) Remove(c core.Connection) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	log.Info().Str("module", "chat.hub").Int("total", n).Msg("connection removed")
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast stamps env, serializes it once and best-effort delivers it
// to every open connection. Closed or slow conns are skipped silently.
// The write lock serializes fan-outs: one broadcast's delivery loop
// completes before the next begins, so every connection observes
// broadcasts in the same total order.
func (h *Hub) Broadcast(env Envelope) {
	frame, ok := h.stamp(env)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for c := range h.conns {
		if err := c.TrySend(frame); err == nil {
			sent++
		}
	}
	log.Debug().Str("module", "chat.hub").Int("sent_to", sent).Msg("broadcast")
}

// SendPrivate delivers env to exactly one connection.
func (h *Hub) SendPrivate(c core.Connection, env Envelope) {
	frame, ok := h.stamp(env)
	if !ok {
		return
	}
	_ = c.TrySend(frame)
}

func (h *Hub) stamp(env Envelope) (core.Frame, bool) {
	env.Timestamp = time.Now().Unix()
	b, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("module", "chat.hub").Msg("marshal envelope")
		return nil, false
	}
	return b, true
}

// Shutdown closes every tracked connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]core.Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[core.Connection]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	log.Info().Str("module", "chat.hub").Int("closed", len(conns)).Msg("hub shutdown")
}
