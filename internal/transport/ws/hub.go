package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"companies.ai/internal/protocol"
	"companies.ai/internal/sim/host"
)

type session struct {
	id   string
	user host.UserID
	out  chan []byte
}

// Hub pushes notices to connected sessions. It implements host.Notifier;
// users without a session simply miss the push.
type Hub struct {
	log zerolog.Logger

	mu       sync.RWMutex
	sessions map[host.UserID]map[*session]struct{}

	dropped atomic.Uint64
}

var _ host.Notifier = (*Hub)(nil)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{log: log, sessions: map[host.UserID]map[*session]struct{}{}}
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.sessions[s.user]
	if m == nil {
		m = map[*session]struct{}{}
		h.sessions[s.user] = m
	}
	m[s] = struct{}{}
}

// remove reports whether s was the user's last session.
func (h *Hub) remove(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.sessions[s.user]
	delete(m, s)
	if len(m) == 0 {
		delete(h.sessions, s.user)
		return true
	}
	return false
}

// Online reports whether u has at least one session.
func (h *Hub) Online(u host.UserID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[u]) > 0
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) Notify(u host.UserID, category, msg string) {
	b, err := json.Marshal(protocol.NewNotice(category, msg))
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions[u] {
		h.push(s, b)
	}
}

func (h *Hub) Broadcast(category, msg string) {
	b, err := json.Marshal(protocol.NewNotice(category, msg))
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.sessions {
		for s := range m {
			h.push(s, b)
		}
	}
}

// push never blocks the engine; a slow client loses notices.
func (h *Hub) push(s *session, b []byte) {
	select {
	case s.out <- b:
	default:
		h.dropped.Add(1)
		h.log.Debug().Str("session_id", s.id).Str("user_id", string(s.user)).Msg("notice dropped")
	}
}
