package player

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/quest"
	"go.uber.org/zap"
)

// Registry maintains the set of connected players.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	logger   *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

// Register adds a session. A previous session for the same player is
// displaced and returned.
func (r *Registry) Register(s *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.sessions[s.ID]
	if old != nil {
		r.logger.Info("duplicate session displaced", zap.Stringer("player_id", s.ID))
	}
	r.sessions[s.ID] = s
	r.logger.Info("player session registered",
		zap.Stringer("player_id", s.ID),
		zap.String("name", s.Name))
	return old
}

// Unregister removes the session for id.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		r.logger.Info("player session unregistered", zap.Stringer("player_id", id))
	}
}

// UnregisterSession removes s only while it is still the registered
// session for its player. A session that replaced it stays.
func (r *Registry) UnregisterSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.ID] != s {
		return false
	}
	delete(r.sessions, s.ID)
	r.logger.Info("player session unregistered", zap.Stringer("player_id", s.ID))
	return true
}

// Get returns the session for id, or nil if not connected.
func (r *Registry) Get(id uuid.UUID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// GetByName finds a session by player name (case-insensitive).
func (r *Registry) GetByName(name string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func (r *Registry) IsOnline(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Count returns the number of connected players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of all sessions sorted by name.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// State returns the live state of a connected player.
func (r *Registry) State(id uuid.UUID) (quest.PlayerState, bool) {
	s := r.Get(id)
	if s == nil {
		return quest.PlayerState{}, false
	}
	return s.State(), true
}

// UpdateState stores a new live state; false if the player is offline.
func (r *Registry) UpdateState(id uuid.UUID, st quest.PlayerState) bool {
	s := r.Get(id)
	if s == nil {
		return false
	}
	s.SetState(st)
	return true
}

// HasPermission reports whether a connected player holds node. Offline
// players hold nothing.
func (r *Registry) HasPermission(id uuid.UUID, node string) bool {
	s := r.Get(id)
	return s != nil && s.HasPermission(node)
}
