package player

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/quest"
)

// Session is a connected player as reported by the game server.
type Session struct {
	ID          uuid.UUID
	Name        string
	ConnectedAt time.Time

	mu          sync.RWMutex
	permissions map[string]struct{}
	state       quest.PlayerState
}

// NewSession creates a session with the given permission nodes.
func NewSession(id uuid.UUID, name string, permissions []string) *Session {
	s := &Session{ID: id, Name: name, ConnectedAt: time.Now()}
	s.SetPermissions(permissions)
	return s
}

// SetPermissions replaces the permission set.
func (s *Session) SetPermissions(nodes []string) {
	set := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	s.mu.Lock()
	s.permissions = set
	s.mu.Unlock()
}

// HasPermission checks node against the granted set. "*" grants
// everything and "a.b.*" grants every node under "a.b.".
func (s *Session) HasPermission(node string) bool {
	if node == "" {
		return true
	}
	node = strings.ToLower(node)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.permissions["*"]; ok {
		return true
	}
	if _, ok := s.permissions[node]; ok {
		return true
	}
	for i := len(node) - 1; i > 0; i-- {
		if node[i] == '.' {
			if _, ok := s.permissions[node[:i]+".*"]; ok {
				return true
			}
		}
	}
	return false
}

func (s *Session) Permissions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.permissions))
	for p := range s.permissions {
		out = append(out, p)
	}
	return out
}

func (s *Session) State() quest.PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(st quest.PlayerState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
