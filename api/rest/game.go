package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/player"
	"github.com/kasuganosora/questengine/game/quest"
	"go.uber.org/zap"
)

const maxEventBatch = 500

// GameHandler receives sessions, player state and gameplay events from
// the game server. Routes are protected by AdminAuth.
type GameHandler struct {
	engine     *engine.Manager
	structures *quest.StructureIndex
	logger     *zap.Logger
}

// NewGameHandler creates a GameHandler. structures may be nil when
// FIND_STRUCTURE quests are not used.
func NewGameHandler(m *engine.Manager, structures *quest.StructureIndex, logger *zap.Logger) *GameHandler {
	return &GameHandler{engine: m, structures: structures, logger: logger}
}

func playerParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return uuid.Nil, false
	}
	return id, true
}

type connectRequest struct {
	Name        string             `json:"name" binding:"required,max=64"`
	Permissions []string           `json:"permissions"`
	State       *quest.PlayerState `json:"state"`
}

// Connect handles POST /api/game/players/:id/connect.
func (h *GameHandler) Connect(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess := player.NewSession(id, req.Name, req.Permissions)
	if req.State != nil {
		sess.SetState(*req.State)
	}
	if err := h.engine.Connect(c.Request.Context(), sess); err != nil {
		h.logger.Error("connect player", zap.Stringer("player_id", id), zap.Error(err))
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"quests": recordViews(h.engine, h.engine.Progress(id)),
	})
}

// Disconnect handles POST /api/game/players/:id/disconnect.
func (h *GameHandler) Disconnect(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	err := h.engine.Disconnect(c.Request.Context(), id)
	if errors.Is(err, engine.ErrPlayerOffline) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "loaded": false})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "loaded": true})
}

type stateRequest struct {
	quest.PlayerState
	Permissions *[]string `json:"permissions"`
}

// UpdateState handles PUT /api/game/players/:id/state.
func (h *GameHandler) UpdateState(c *gin.Context) {
	id, ok := playerParam(c)
	if !ok {
		return
	}
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !h.engine.UpdateState(id, req.PlayerState) {
		abortWithError(c, engine.ErrPlayerOffline)
		return
	}
	if req.Permissions != nil {
		if sess := h.engine.Players().Get(id); sess != nil {
			sess.SetPermissions(*req.Permissions)
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Events handles POST /api/game/events. The body is one event object, an
// array of them, or {"events": [...]}. Undecodable events are reported
// back and the rest are still applied.
func (h *GameHandler) Events(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil || !json.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	batch, err := splitBatch(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(batch) > maxEventBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many events", "max": maxEventBatch})
		return
	}

	ctx := c.Request.Context()
	var (
		accepted, updated int
		rejected          []gin.H
	)
	for i, item := range batch {
		ev, err := DecodeEvent(item)
		if err != nil {
			rejected = append(rejected, gin.H{"index": i, "error": err.Error()})
			continue
		}
		accepted++
		updated += h.engine.HandleEvent(ctx, ev)
	}
	if accepted == 0 && len(rejected) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no valid events", "rejected": rejected})
		return
	}
	resp := gin.H{"accepted": accepted, "updated": updated}
	if len(rejected) > 0 {
		resp["rejected"] = rejected
	}
	c.JSON(http.StatusOK, resp)
}

func splitBatch(raw json.RawMessage) ([]json.RawMessage, error) {
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		err := json.Unmarshal(trimmed, &list)
		return list, err
	}
	var envelope struct {
		Type   string            `json:"type"`
		Events []json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	if envelope.Type == "" && envelope.Events != nil {
		return envelope.Events, nil
	}
	return []json.RawMessage{raw}, nil
}

type structuresRequest struct {
	Structures []struct {
		Structure string         `json:"structure" binding:"required"`
		Location  quest.Location `json:"location"`
	} `json:"structures" binding:"required,dive"`
}

// Structures handles PUT /api/game/structures.
func (h *GameHandler) Structures(c *gin.Context) {
	if h.structures == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "structure index disabled"})
		return
	}
	var req structuresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, s := range req.Structures {
		h.structures.Add(s.Structure, s.Location)
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "known": h.structures.Len()})
}
