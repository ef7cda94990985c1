package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/api/rest"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/player"
	"github.com/kasuganosora/questengine/game/quest"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/kasuganosora/questengine/persist"
	"github.com/kasuganosora/questengine/plugin/hook"
	"github.com/kasuganosora/questengine/scheduler"
	"github.com/kasuganosora/questengine/storage"
	"github.com/kasuganosora/questengine/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const adminKey = "letmein"

type env struct {
	r      *gin.Engine
	m      *engine.Manager
	writer *persist.Writer
	cache  cache.Cache
	sec    config.SecurityConfig
	index  *quest.StructureIndex

	catalogPath string
}

type nopApplier struct{}

func (nopApplier) Apply(context.Context, quest.Reward, uuid.UUID, string) error { return nil }

func chopWood() *quest.Quest {
	return &quest.Quest{
		ID: "chop_wood", Name: "Chop Wood", Type: quest.TypeBreakBlock, Target: 3, Repeatable: true,
		TypeConfig: quest.TypeConfig{"blocks": []interface{}{"OAK_LOG"}},
	}
}

func vipQuest() *quest.Quest {
	return &quest.Quest{ID: "vip_fish", Name: "VIP Fish", Type: quest.TypeFish, Target: 1, Permission: "quests.vip"}
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	c, _ := testutil.SetupTestCache(t)
	st := storage.NewGormStore(testutil.SetupTestDB(t))
	w := persist.New(st, 256, time.Second, logger)
	sched := scheduler.New(logger)
	t.Cleanup(func() {
		sched.Stop()
		w.Stop(context.Background())
	})

	cfg := config.Default().Quest
	cfg.SurviveTick = time.Hour
	cfg.CatalogPath = filepath.Join(t.TempDir(), "quests.yaml")
	index := quest.NewStructureIndex()
	m := engine.New(cfg, engine.Deps{
		Catalog:    quest.NewCatalog(logger, chopWood(), vipQuest()),
		Store:      st,
		Writer:     w,
		Players:    player.NewRegistry(logger),
		Scheduler:  sched,
		Hooks:      hook.NewHookCenter(logger),
		Rewards:    nopApplier{},
		Ranking:    c,
		Structures: index,
		Logger:     logger,
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.MinCost)
	require.NoError(t, err)
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTL: time.Hour}

	gameH := rest.NewGameHandler(m, index, logger)
	questH := rest.NewQuestHandler(m, logger)
	adminH := rest.NewAdminHandler(m, sched, w, c, sec, logger)

	r := gin.New()
	api := r.Group("/api")

	gameG := api.Group("/game", mw.AdminAuth(string(hash)))
	gameG.POST("/players/:id/connect", gameH.Connect)
	gameG.POST("/players/:id/disconnect", gameH.Disconnect)
	gameG.PUT("/players/:id/state", gameH.UpdateState)
	gameG.POST("/events", gameH.Events)
	gameG.PUT("/structures", gameH.Structures)

	api.GET("/quests", mw.PlayerAuth(sec, c), questH.ListQuests)
	api.GET("/quests/:qid", mw.PlayerAuth(sec, c), questH.GetQuest)
	meG := api.Group("/me", mw.PlayerAuth(sec, c))
	meG.GET("/quests", questH.MyQuests)
	meG.POST("/quests/:qid/accept", questH.Accept)
	meG.POST("/quests/:qid/abandon", questH.Abandon)
	meG.POST("/quests/:qid/claim", questH.Claim)
	meG.GET("/stats", questH.MyStats)

	adminG := api.Group("/admin", mw.AdminAuth(string(hash)))
	adminG.POST("/reload", adminH.Reload)
	adminG.GET("/players/:id/quests", adminH.PlayerQuests)
	adminG.POST("/players/:id/quests/:qid/give", adminH.Give)
	adminG.POST("/players/:id/quests/:qid/complete", adminH.Complete)
	adminG.POST("/players/:id/quests/:qid/reset", adminH.Reset)
	adminG.PUT("/players/:id/quests/:qid/progress", adminH.SetProgress)
	adminG.DELETE("/players/:id/quests/:qid", adminH.Remove)
	adminG.DELETE("/players/:id", adminH.Purge)
	adminG.GET("/players/:id/stats", adminH.PlayerStats)
	adminG.GET("/quests/:qid/stats", adminH.QuestStats)
	adminG.GET("/stats", adminH.GlobalStats)
	adminG.GET("/metrics", adminH.Metrics)
	adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	adminG.POST("/tokens", adminH.IssueToken)
	adminG.POST("/tokens/revoke", adminH.RevokeToken)
	adminG.GET("/audit", adminH.AuditLog)

	return &env{r: r, m: m, writer: w, cache: c, sec: sec, index: index, catalogPath: cfg.CatalogPath}
}

func (e *env) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.do(method, path, body, map[string]string{mw.AdminKeyHeader: adminKey})
}

func (e *env) player(token, method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.do(method, path, body, map[string]string{"Authorization": "Bearer " + token})
}

// login connects a player through the game routes and issues a token.
func (e *env) login(t *testing.T, perms ...string) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	w := e.admin(http.MethodPost, "/api/game/players/"+id.String()+"/connect",
		map[string]interface{}{"name": "Steve", "permissions": perms})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.admin(http.MethodPost, "/api/admin/tokens", map[string]string{"player_id": id.String(), "name": "Steve"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return id, resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func breakLog(id uuid.UUID) map[string]interface{} {
	return map[string]interface{}{"type": "block_broken", "player": id.String(), "material": "OAK_LOG"}
}
