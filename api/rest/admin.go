package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/progress"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/kasuganosora/questengine/persist"
	"github.com/kasuganosora/questengine/scheduler"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	engine *engine.Manager
	sched  *scheduler.Scheduler
	writer *persist.Writer
	cache  cache.Cache
	sec    config.SecurityConfig
	audit  *audit.Service
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	m *engine.Manager,
	sched *scheduler.Scheduler,
	writer *persist.Writer,
	c cache.Cache,
	sec config.SecurityConfig,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{engine: m, sched: sched, writer: writer, cache: c, sec: sec, logger: logger}
}

// SetAudit enables the audit trail endpoint.
func (h *AdminHandler) SetAudit(svc *audit.Service) { h.audit = svc }

// Reload re-reads the quest catalog.
// POST /api/admin/reload
func (h *AdminHandler) Reload(c *gin.Context) {
	n, err := h.engine.ReloadCatalog()
	if err != nil {
		h.logger.Error("admin reload failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.logger.Info("admin reloaded quest catalog", zap.Int("quests", n))
	c.JSON(http.StatusOK, gin.H{"ok": true, "quests": n})
}

// Give force-starts a quest, bypassing permission, cooldown and limits.
// POST /api/admin/players/:id/quests/:qid/give
func (h *AdminHandler) Give(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	questID := c.Param("qid")
	if err := h.engine.Give(c.Request.Context(), id, questID); err != nil {
		abortWithError(c, err)
		return
	}
	h.logger.Info("admin gave quest", zap.Stringer("player_id", id), zap.String("quest_id", questID))
	h.respondRecord(c, id, questID)
}

// Remove deletes a player's record. Works for offline players.
// DELETE /api/admin/players/:id/quests/:qid
func (h *AdminHandler) Remove(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	questID := c.Param("qid")
	if err := h.engine.Remove(c.Request.Context(), id, questID); err != nil {
		abortWithError(c, err)
		return
	}
	h.logger.Info("admin removed quest", zap.Stringer("player_id", id), zap.String("quest_id", questID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Complete forces completion.
// POST /api/admin/players/:id/quests/:qid/complete
func (h *AdminHandler) Complete(c *gin.Context) {
	h.mutate(c, "complete", func(ctx context.Context, id uuid.UUID, questID string) (progress.Record, error) {
		return h.engine.ForceComplete(ctx, id, questID)
	})
}

// Reset puts a record back to zero progress with a fresh timer.
// POST /api/admin/players/:id/quests/:qid/reset
func (h *AdminHandler) Reset(c *gin.Context) {
	h.mutate(c, "reset", h.engine.Reset)
}

type progressRequest struct {
	Progress *int `json:"progress" binding:"required"`
}

// SetProgress stores an explicit progress value, clamped to the target.
// PUT /api/admin/players/:id/quests/:qid/progress
func (h *AdminHandler) SetProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.mutate(c, "set progress", func(ctx context.Context, id uuid.UUID, questID string) (progress.Record, error) {
		return h.engine.SetProgress(ctx, id, questID, *req.Progress)
	})
}

func (h *AdminHandler) mutate(c *gin.Context, what string, op func(context.Context, uuid.UUID, string) (progress.Record, error)) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	questID := c.Param("qid")
	r, err := op(c.Request.Context(), id, questID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.logger.Info("admin "+what,
		zap.Stringer("player_id", id),
		zap.String("quest_id", questID),
		zap.Int("progress", r.Progress))
	c.JSON(http.StatusOK, gin.H{"ok": true, "progress": recordView(h.engine, r, h.engine.Now())})
}

func (h *AdminHandler) respondRecord(c *gin.Context, id uuid.UUID, questID string) {
	resp := gin.H{"ok": true}
	if r, err := h.engine.Find(id, questID); err == nil {
		resp["progress"] = recordView(h.engine, r, h.engine.Now())
	}
	c.JSON(http.StatusOK, resp)
}

// Purge deletes every record, statistic and cooldown of a player.
// DELETE /api/admin/players/:id
func (h *AdminHandler) Purge(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	if err := h.engine.Purge(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	h.logger.Warn("admin purged player", zap.Stringer("player_id", id))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PlayerQuests lists the loaded records of an online player.
// GET /api/admin/players/:id/quests
func (h *AdminHandler) PlayerQuests(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	if !h.engine.Players().IsOnline(id) {
		abortWithError(c, engine.ErrPlayerOffline)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": recordViews(h.engine, h.engine.Progress(id))})
}

// PlayerStats returns a player's completion history.
// GET /api/admin/players/:id/stats
func (h *AdminHandler) PlayerStats(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	stats, err := h.engine.PlayerStats(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// QuestStats returns aggregate statistics for one quest.
// GET /api/admin/quests/:qid/stats
func (h *AdminHandler) QuestStats(c *gin.Context) {
	stats, err := h.engine.QuestStats(c.Request.Context(), c.Param("qid"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GlobalStats returns engine-wide statistics and rankings.
// GET /api/admin/stats
func (h *AdminHandler) GlobalStats(c *gin.Context) {
	stats, err := h.engine.GlobalStats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_players":  h.engine.Players().Count(),
		"quests":          h.engine.Catalog().Len(),
		"persist_pending": h.writer.Pending(),
		"scheduler_tasks": len(h.sched.ListTickers()),
	})
}

// ListSchedulerTasks returns every registered ticker with its interval.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// AuditLog lists recorded admin requests, newest first.
// GET /api/admin/audit?player=<uuid>&quest=<id>&limit=<n>
func (h *AdminHandler) AuditLog(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit trail disabled"})
		return
	}
	f := audit.Filter{QuestID: c.Query("quest")}
	if p := c.Query("player"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
			return
		}
		f.PlayerID = id
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}
	logs, err := h.audit.Recent(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("audit query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs})
}

type tokenRequest struct {
	PlayerID string `json:"player_id" binding:"required,uuid"`
	Name     string `json:"name" binding:"max=64"`
	// TTL overrides security.jwt_ttl, e.g. "2h".
	TTL string `json:"ttl"`
}

// IssueToken signs a player token and opens its session.
// POST /api/admin/tokens
func (h *AdminHandler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ttl := h.sec.JWTTTL
	if req.TTL != "" {
		d, err := time.ParseDuration(req.TTL)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ttl"})
			return
		}
		ttl = d
	}
	id := uuid.MustParse(req.PlayerID)
	token, err := mw.GenerateToken(id, req.Name, h.sec.JWTSecret, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	if err := h.cache.Set(c.Request.Context(), mw.SessionKey(token), id.String(), ttl); err != nil {
		h.logger.Error("store session", zap.Stringer("player_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session store failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"player_id":  id,
		"expires_at": time.Now().Add(ttl),
	})
}

type revokeRequest struct {
	Token string `json:"token" binding:"required"`
}

// RevokeToken closes a token's session.
// POST /api/admin/tokens/revoke
func (h *AdminHandler) RevokeToken(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.cache.Del(c.Request.Context(), mw.SessionKey(req.Token)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
