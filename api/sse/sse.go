package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	"github.com/kasuganosora/questengine/game/notify"
	mw "github.com/kasuganosora/questengine/middleware"
	"go.uber.org/zap"
)

// AnnounceChannel carries server-wide announcements.
const AnnounceChannel = "quest:announce"

const keepalive = 30 * time.Second

// Handler streams quest notifications to players.
type Handler struct {
	pubsub cache.PubSub
	sec    config.SecurityConfig
	c      cache.Cache
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, c: c, sec: sec, logger: logger}
}

// authenticate accepts a Bearer header or, for EventSource clients that
// cannot set headers, ?token=<jwt>.
func (h *Handler) authenticate(c *gin.Context) (uuid.UUID, bool) {
	if id, ok := mw.GetPlayerID(c); ok {
		return id, true
	}
	tokenStr := c.Query("token")
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tokenStr = strings.TrimPrefix(header, "Bearer ")
	}
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return uuid.Nil, false
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return uuid.Nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, mw.SessionKey(tokenStr))
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return uuid.Nil, false
	}
	return uuid.MustParse(claims.PlayerID), true
}

// ServeSSE handles GET /api/me/notifications. It streams the player's
// quest notifications and server announcements until the client leaves.
func (h *Handler) ServeSSE(c *gin.Context) {
	id, ok := h.authenticate(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, notify.Channel(id), AnnounceChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Stringer("player_id", id), zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"player_id\":%q}\n\n", id.String())
	c.Writer.Flush()

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventName(msg), msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// eventName uses the notification key as the SSE event so clients can
// listen per message type.
func eventName(msg *cache.Message) string {
	if msg.Channel == AnnounceChannel {
		return "announce"
	}
	var n notify.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil || n.Key == "" {
		return "quest"
	}
	return n.Key
}

// Announce publishes an announcement to every connected stream.
func (h *Handler) Announce(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	return h.pubsub.Publish(ctx, AnnounceChannel, string(payload))
}

// AnnounceHandler handles POST /api/admin/announce.
func (h *Handler) AnnounceHandler(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required,max=512"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Announce(c.Request.Context(), req.Message); err != nil {
		h.logger.Error("announce failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
