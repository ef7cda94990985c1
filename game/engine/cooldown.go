package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type cooldownKey struct {
	player uuid.UUID
	quest  string
}

// cooldowns lives in memory only: it survives reconnects, not restarts.
type cooldowns struct {
	mu    sync.Mutex
	until map[cooldownKey]time.Time
}

func newCooldowns() *cooldowns {
	return &cooldowns{until: make(map[cooldownKey]time.Time)}
}

func (c *cooldowns) arm(player uuid.UUID, questID string, until time.Time) {
	c.mu.Lock()
	c.until[cooldownKey{player, questID}] = until
	c.mu.Unlock()
}

func (c *cooldowns) remaining(player uuid.UUID, questID string, now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.until[cooldownKey{player, questID}]
	if !ok || !now.Before(until) {
		return 0, false
	}
	return until.Sub(now), true
}

func (c *cooldowns) clear(player uuid.UUID, questID string) {
	c.mu.Lock()
	delete(c.until, cooldownKey{player, questID})
	c.mu.Unlock()
}

func (c *cooldowns) clearPlayer(player uuid.UUID) {
	c.mu.Lock()
	for k := range c.until {
		if k.player == player {
			delete(c.until, k)
		}
	}
	c.mu.Unlock()
}

// prune drops elapsed cooldowns and returns how many were removed.
func (c *cooldowns) prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, until := range c.until {
		if !now.Before(until) {
			delete(c.until, k)
			n++
		}
	}
	return n
}
