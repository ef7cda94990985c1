package rest

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/progress"
	mw "github.com/kasuganosora/questengine/middleware"
	"go.uber.org/zap"
)

// QuestHandler serves the authenticated player's quest operations.
type QuestHandler struct {
	engine *engine.Manager
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(m *engine.Manager, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{engine: m, logger: logger}
}

func currentPlayer(c *gin.Context) (uuid.UUID, bool) {
	id, ok := mw.GetPlayerID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
	}
	return id, ok
}

// ListQuests handles GET /api/quests?filter=available|all.
// The default lists only the quests the player may accept now.
func (h *QuestHandler) ListQuests(c *gin.Context) {
	id, ok := currentPlayer(c)
	if !ok {
		return
	}
	if c.Query("filter") == "all" {
		all := h.engine.Catalog().All()
		out := make([]QuestView, 0, len(all))
		for _, q := range all {
			v := questView(h.engine, q)
			if left, on := h.engine.CooldownRemaining(id, q.ID); on {
				v.CooldownLeft = progress.FormatDuration(left)
			}
			out = append(out, v)
		}
		c.JSON(http.StatusOK, gin.H{"quests": out})
		return
	}
	qs, err := h.engine.Available(id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]QuestView, 0, len(qs))
	for _, q := range qs {
		out = append(out, questView(h.engine, q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	c.JSON(http.StatusOK, gin.H{"quests": out})
}

// GetQuest handles GET /api/quests/:qid. The player's record is included
// when one exists.
func (h *QuestHandler) GetQuest(c *gin.Context) {
	id, ok := currentPlayer(c)
	if !ok {
		return
	}
	q, found := h.engine.Catalog().Get(c.Param("qid"))
	if !found {
		abortWithError(c, engine.ErrQuestNotFound)
		return
	}
	v := questView(h.engine, q)
	if left, on := h.engine.CooldownRemaining(id, q.ID); on {
		v.CooldownLeft = progress.FormatDuration(left)
	}
	resp := gin.H{"quest": v}
	if r, err := h.engine.Find(id, q.ID); err == nil {
		resp["progress"] = recordView(h.engine, r, h.engine.Now())
	}
	c.JSON(http.StatusOK, resp)
}

// MyQuests handles GET /api/me/quests?state=active|completed.
func (h *QuestHandler) MyQuests(c *gin.Context) {
	id, ok := currentPlayer(c)
	if !ok {
		return
	}
	if !h.engine.Players().IsOnline(id) {
		abortWithError(c, engine.ErrPlayerOffline)
		return
	}
	var rs []progress.Record
	switch c.Query("state") {
	case "active":
		rs = h.engine.Active(id)
	case "completed":
		rs = h.engine.Completed(id)
	default:
		rs = h.engine.Progress(id)
	}
	c.JSON(http.StatusOK, gin.H{"quests": recordViews(h.engine, rs)})
}

// Accept handles POST /api/me/quests/:qid/accept.
func (h *QuestHandler) Accept(c *gin.Context) {
	h.act(c, h.engine.Accept)
}

// Abandon handles POST /api/me/quests/:qid/abandon.
func (h *QuestHandler) Abandon(c *gin.Context) {
	h.act(c, h.engine.Abandon)
}

// Claim handles POST /api/me/quests/:qid/claim.
func (h *QuestHandler) Claim(c *gin.Context) {
	h.act(c, h.engine.Claim)
}

func (h *QuestHandler) act(c *gin.Context, op func(ctx context.Context, id uuid.UUID, questID string) error) {
	id, ok := currentPlayer(c)
	if !ok {
		return
	}
	questID := c.Param("qid")
	if err := op(c.Request.Context(), id, questID); err != nil {
		abortWithError(c, err)
		return
	}
	resp := gin.H{"ok": true, "quest_id": questID}
	if r, err := h.engine.Find(id, questID); err == nil {
		resp["progress"] = recordView(h.engine, r, h.engine.Now())
	}
	c.JSON(http.StatusOK, resp)
}

// MyStats handles GET /api/me/stats.
func (h *QuestHandler) MyStats(c *gin.Context) {
	id, ok := currentPlayer(c)
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
