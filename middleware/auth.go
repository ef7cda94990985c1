package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	"golang.org/x/crypto/bcrypt"
)

const (
	PlayerIDKey    = "player_id"
	AdminKeyHeader = "X-Admin-Key"
)

// SessionKey is the cache key marking an issued token as live.
func SessionKey(token string) string { return "session:" + token }

// PlayerAuth validates the Bearer JWT and checks that its session is still
// present in the cache. Deleting the session key revokes the token.
func PlayerAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, SessionKey(tokenStr))
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(PlayerIDKey, uuid.MustParse(claims.PlayerID))
		ctx.Next()
	}
}

// GetPlayerID retrieves the authenticated player from the Gin context.
func GetPlayerID(c *gin.Context) (uuid.UUID, bool) {
	if v, exists := c.Get(PlayerIDKey); exists {
		id, ok := v.(uuid.UUID)
		return id, ok
	}
	return uuid.Nil, false
}

// AdminAuth checks the X-Admin-Key header against a bcrypt hash. With no
// hash configured every admin and game-server route answers 503.
func AdminAuth(hash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key_hash in config"})
			return
		}
		key := c.GetHeader(AdminKeyHeader)
		if key == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin key"})
			return
		}
		c.Next()
	}
}
