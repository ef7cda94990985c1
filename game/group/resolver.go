package group

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/cache"
	"go.uber.org/zap"
)

// Resolver looks up a player's primary permission group.
type Resolver interface {
	PrimaryGroup(ctx context.Context, player uuid.UUID) (string, bool)
}

// Static resolves groups from a fixed player→group map.
type Static struct {
	groups map[uuid.UUID]string
}

// NewStatic builds a Static resolver from UUID string keys. Malformed keys
// are logged and skipped.
func NewStatic(m map[string]string, logger *zap.Logger) *Static {
	s := &Static{groups: make(map[uuid.UUID]string, len(m))}
	for k, v := range m {
		id, err := uuid.Parse(k)
		if err != nil {
			if logger != nil {
				logger.Warn("player_groups: bad uuid", zap.String("key", k))
			}
			continue
		}
		s.groups[id] = strings.ToLower(v)
	}
	return s
}

func (s *Static) PrimaryGroup(_ context.Context, player uuid.UUID) (string, bool) {
	g, ok := s.groups[player]
	return g, ok && g != ""
}

// Cached fronts another resolver with a cache entry per player.
// An empty cached value records "no group".
type Cached struct {
	next   Resolver
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Resolver, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(player uuid.UUID) string { return "quest:group:" + player.String() }

func (c *Cached) PrimaryGroup(ctx context.Context, player uuid.UUID) (string, bool) {
	key := cacheKey(player)
	if v, err := c.cache.Get(ctx, key); err == nil {
		return v, v != ""
	}
	g, ok := c.next.PrimaryGroup(ctx, player)
	if !ok {
		g = ""
	}
	if err := c.cache.Set(ctx, key, g, c.ttl); err != nil {
		c.logger.Warn("group cache set failed", zap.Stringer("player_id", player), zap.Error(err))
	}
	return g, ok
}

// Invalidate drops the cached group of player.
func (c *Cached) Invalidate(ctx context.Context, player uuid.UUID) {
	_ = c.cache.Del(ctx, cacheKey(player))
}
