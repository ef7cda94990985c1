package rest_test

import (
	"net/http"
	"os"
	"testing"

	"github.com/google/uuid"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAuth_WrongKey(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/api/admin/metrics", nil, map[string]string{mw.AdminKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_Metrics(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	w := e.admin(http.MethodGet, "/api/admin/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.EqualValues(t, 1, resp["online_players"])
	assert.EqualValues(t, 2, resp["quests"])
}

func TestAdmin_ListSchedulerTasks(t *testing.T) {
	e := newEnv(t)
	e.m.Start()
	w := e.admin(http.MethodGet, "/api/admin/scheduler", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tasks := decode(t, w)["tasks"].([]interface{})
	names := make([]string, 0, len(tasks))
	for _, task := range tasks {
		names = append(names, task.(map[string]interface{})["name"].(string))
	}
	assert.Contains(t, names, "quest_autosave")
	assert.Contains(t, names, "quest_expiration_sweep")
}

func TestAdmin_GiveBypassesPermission(t *testing.T) {
	e := newEnv(t)
	id, _ := e.login(t)
	base := "/api/admin/players/" + id.String() + "/quests/vip_fish"

	w := e.admin(http.MethodPost, base+"/give", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Active", decode(t, w)["progress"].(map[string]interface{})["status"])

	w = e.admin(http.MethodGet, "/api/admin/players/"+id.String()+"/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["quests"], 1)
}

func TestAdmin_ProgressCompleteReset(t *testing.T) {
	e := newEnv(t)
	id, _ := e.login(t)
	base := "/api/admin/players/" + id.String() + "/quests/chop_wood"
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, base+"/give", nil).Code)

	w := e.admin(http.MethodPut, base+"/progress", map[string]int{"progress": 99})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	prog := decode(t, w)["progress"].(map[string]interface{})
	assert.EqualValues(t, 3, prog["progress"])
	assert.Equal(t, true, prog["completed"])

	w = e.admin(http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	prog = decode(t, w)["progress"].(map[string]interface{})
	assert.EqualValues(t, 0, prog["progress"])
	assert.Equal(t, "Active", prog["status"])

	w = e.admin(http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Completed", decode(t, w)["progress"].(map[string]interface{})["status"])

	w = e.admin(http.MethodPut, base+"/progress", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_RemoveAndPurge(t *testing.T) {
	e := newEnv(t)
	id, _ := e.login(t)
	base := "/api/admin/players/" + id.String()
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, base+"/quests/chop_wood/give", nil).Code)

	assert.Equal(t, http.StatusOK, e.admin(http.MethodDelete, base+"/quests/chop_wood", nil).Code)
	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodDelete, base+"/quests/chop_wood", nil).Code)

	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodPost, base+"/quests/chop_wood/complete", nil).Code)
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, base+"/quests/chop_wood/give", nil).Code)
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, base+"/quests/chop_wood/complete", nil).Code)
	require.Equal(t, http.StatusOK, e.admin(http.MethodDelete, base, nil).Code)

	w := e.admin(http.MethodGet, base+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 0, stats["active"])
	assert.EqualValues(t, 0, stats["completed"])
	assert.Empty(t, stats["quests"])
}

func TestAdmin_Stats(t *testing.T) {
	e := newEnv(t)
	id, _ := e.login(t)
	base := "/api/admin/players/" + id.String() + "/quests/chop_wood"
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, base+"/give", nil).Code)
	require.Equal(t, http.StatusOK, e.admin(http.MethodPost, base+"/complete", nil).Code)
	require.NoError(t, e.writer.Flush(t.Context()))

	w := e.admin(http.MethodGet, "/api/admin/quests/chop_wood/stats", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusNotFound, e.admin(http.MethodGet, "/api/admin/quests/nope/stats", nil).Code)

	w = e.admin(http.MethodGet, "/api/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.EqualValues(t, 2, resp["quests"])
	assert.EqualValues(t, 1, resp["online"])
	top := resp["top_quests"].([]interface{})
	require.Len(t, top, 1)
	assert.Equal(t, "chop_wood", top[0].(map[string]interface{})["id"])
}

func TestAdmin_Reload(t *testing.T) {
	e := newEnv(t)
	w := e.admin(http.MethodPost, "/api/admin/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 2, e.m.Catalog().Len())

	require.NoError(t, os.WriteFile(e.catalogPath, []byte(`
quests:
  mine_stone:
    name: Mine Stone
    type: BREAK_BLOCK
    target: 32
    type-config:
      blocks: [STONE]
`), 0o644))
	w = e.admin(http.MethodPost, "/api/admin/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["quests"])
	_, ok := e.m.Catalog().Get("mine_stone")
	assert.True(t, ok)
}

func TestAdmin_IssueTokenValidation(t *testing.T) {
	e := newEnv(t)
	w := e.admin(http.MethodPost, "/api/admin/tokens", map[string]string{"player_id": "42"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.admin(http.MethodPost, "/api/admin/tokens", map[string]string{"player_id": uuid.NewString(), "ttl": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.admin(http.MethodPost, "/api/admin/tokens", map[string]string{"player_id": uuid.NewString(), "ttl": "5m"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["token"])
}

func TestAdmin_AuditLogDisabled(t *testing.T) {
	e := newEnv(t)
	w := e.admin(http.MethodGet, "/api/admin/audit", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
