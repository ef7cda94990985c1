package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apirest "github.com/kasuganosora/questengine/api/rest"
	"github.com/kasuganosora/questengine/api/sse"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/group"
	"github.com/kasuganosora/questengine/game/notify"
	"github.com/kasuganosora/questengine/game/player"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/game/reward"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/kasuganosora/questengine/persist"
	"github.com/kasuganosora/questengine/plugin/hook"
	"github.com/kasuganosora/questengine/scheduler"
	"github.com/kasuganosora/questengine/storage"
	"github.com/kasuganosora/questengine/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// AdminKey is the plain admin key accepted by the test server.
const AdminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with the quest engine wired the same
// way main.go wires it. Restart swaps the engine while keeping the
// database and cache.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Engine *engine.Manager
	Server *httptest.Server
	URL    string
	Sec    config.SecurityConfig

	cfg       config.QuestConfig
	adminHash string
	logger    *zap.Logger
	writer    *persist.Writer
	sched     *scheduler.Scheduler
	audit     *audit.Service
	client    *http.Client
}

// NewTestServer starts a server whose catalog is loaded from catalogYAML.
func NewTestServer(t *testing.T, catalogYAML string) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "quests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))

	hash, err := bcrypt.GenerateFromPassword([]byte(AdminKey), bcrypt.MinCost)
	require.NoError(t, err)

	c, pubsub := testutil.SetupTestCache(t)
	cfg := config.Default().Quest
	cfg.CatalogPath = path
	cfg.AutosaveEnabled = false

	ts := &TestServer{
		DB:     testutil.SetupTestDB(t),
		Cache:  c,
		PubSub: pubsub,
		Sec: config.SecurityConfig{
			JWTSecret:      "integration-test-secret",
			JWTTTL:         time.Hour,
			RateLimitRPS:   1000,
			RateLimitBurst: 2000,
		},
		cfg:       cfg,
		adminHash: string(hash),
		logger:    zap.NewNop(),
		client:    &http.Client{Timeout: 10 * time.Second},
	}
	ts.start(t)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *TestServer) start(t *testing.T) {
	t.Helper()
	logger := ts.logger

	catalog := quest.NewCatalog(logger)
	_, err := catalog.Reload(ts.cfg.CatalogPath)
	require.NoError(t, err)

	store := storage.NewGormStore(ts.DB)
	ts.writer = persist.New(store, ts.cfg.PersistQueue, ts.cfg.FlushTimeout, logger)
	ts.sched = scheduler.New(logger)

	hooks := hook.NewHookCenter(logger)
	hook.RegisterAuditLog(hooks, logger)
	hook.RegisterDisabled(hooks, ts.cfg.Disabled)

	messages := notify.NewMessages(ts.PubSub, ts.cfg.Messages, logger)
	structures := quest.NewStructureIndex()
	ts.Engine = engine.New(ts.cfg, engine.Deps{
		Catalog:    catalog,
		Store:      store,
		Writer:     ts.writer,
		Players:    player.NewRegistry(logger),
		Scheduler:  ts.sched,
		Hooks:      hooks,
		Groups:     group.NewCached(group.NewStatic(ts.cfg.PlayerGroups, logger), ts.Cache, ts.cfg.GroupCacheTTL, logger),
		Rewards:    reward.NewCommandApplier(ts.PubSub, messages, logger),
		Notifier:   messages,
		Ranking:    ts.Cache,
		Structures: structures,
		Logger:     logger,
	})
	ts.Engine.Start()

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(ts.Sec.RateLimitRPS), ts.Sec.RateLimitBurst))

	gameH := apirest.NewGameHandler(ts.Engine, structures, logger)
	questH := apirest.NewQuestHandler(ts.Engine, logger)
	adminH := apirest.NewAdminHandler(ts.Engine, ts.sched, ts.writer, ts.Cache, ts.Sec, logger)
	ts.audit = audit.New(ts.DB, logger)
	adminH.SetAudit(ts.audit)
	sseH := sse.NewHandler(ts.PubSub, ts.Cache, ts.Sec, logger)
	playerAuth := mw.PlayerAuth(ts.Sec, ts.Cache)
	adminAuth := mw.AdminAuth(ts.adminHash)

	api := r.Group("/api")
	{
		gameG := api.Group("/game", mw.IPWhitelist(nil), adminAuth)
		gameG.POST("/players/:id/connect", gameH.Connect)
		gameG.POST("/players/:id/disconnect", gameH.Disconnect)
		gameG.PUT("/players/:id/state", gameH.UpdateState)
		gameG.POST("/events", gameH.Events)
		gameG.PUT("/structures", gameH.Structures)

		questsG := api.Group("/quests", playerAuth)
		questsG.GET("", questH.ListQuests)
		questsG.GET("/:qid", questH.GetQuest)

		api.GET("/me/notifications", sseH.ServeSSE)

		meG := api.Group("/me", playerAuth, mw.RateLimitBy(rate.Limit(ts.Sec.RateLimitRPS), ts.Sec.RateLimitBurst, mw.ByPlayer))
		meG.GET("/quests", questH.MyQuests)
		meG.POST("/quests/:qid/accept", questH.Accept)
		meG.POST("/quests/:qid/abandon", questH.Abandon)
		meG.POST("/quests/:qid/claim", questH.Claim)
		meG.GET("/stats", questH.MyStats)

		adminG := api.Group("/admin", adminAuth, audit.Middleware(ts.audit))
		adminG.GET("/players/:id/quests", adminH.PlayerQuests)
		adminG.POST("/players/:id/quests/:qid/give", adminH.Give)
		adminG.GET("/audit", adminH.AuditLog)
		adminG.GET("/quests/:qid/stats", adminH.QuestStats)
		adminG.GET("/stats", adminH.GlobalStats)
		adminG.POST("/tokens", adminH.IssueToken)
		adminG.POST("/announce", sseH.AnnounceHandler)
	}

	ts.Server = httptest.NewServer(r)
	ts.URL = ts.Server.URL
}

func (ts *TestServer) stop() {
	if ts.Server == nil {
		return
	}
	ts.Server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ts.Engine.Stop(ctx)
	ts.writer.Stop(ctx)
	ts.audit.Stop(ctx)
	ts.sched.Stop()
	ts.Server = nil
}

// Restart stops the engine, flushing every loaded record, and starts a
// fresh one over the same database and cache.
func (ts *TestServer) Restart(t *testing.T) {
	t.Helper()
	ts.stop()
	ts.start(t)
}

// Close shuts down the server and the engine.
func (ts *TestServer) Close() { ts.stop() }

// --- HTTP helpers ---

// Do sends a JSON request. Headers are applied as given.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	return resp
}

// Admin sends a request carrying the admin key.
func (ts *TestServer) Admin(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.Do(t, method, path, body, map[string]string{mw.AdminKeyHeader: AdminKey})
}

// Player sends a request carrying a player token.
func (ts *TestServer) Player(t *testing.T, token, method, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.Do(t, method, path, body, map[string]string{"Authorization": "Bearer " + token})
}

// Connect registers a player session through the game routes.
func (ts *TestServer) Connect(t *testing.T, id uuid.UUID, name string, perms ...string) {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/game/players/"+id.String()+"/connect",
		map[string]interface{}{"name": name, "permissions": perms})
	RequireStatus(t, resp, http.StatusOK)
}

// Login connects a new player and returns its id and bearer token.
func (ts *TestServer) Login(t *testing.T, name string, perms ...string) (uuid.UUID, string) {
	t.Helper()
	id := uuid.New()
	ts.Connect(t, id, name, perms...)
	return id, ts.IssueToken(t, id, name)
}

// IssueToken asks the admin API for a player token.
func (ts *TestServer) IssueToken(t *testing.T, id uuid.UUID, name string) string {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/admin/tokens", map[string]string{"player_id": id.String(), "name": name})
	var out struct {
		Token string `json:"token"`
	}
	DecodeJSON(t, resp, http.StatusOK, &out)
	require.NotEmpty(t, out.Token)
	return out.Token
}

// SendEvents posts a batch of gameplay events.
func (ts *TestServer) SendEvents(t *testing.T, events ...map[string]interface{}) {
	t.Helper()
	resp := ts.Admin(t, http.MethodPost, "/api/game/events", map[string]interface{}{"events": events})
	RequireStatus(t, resp, http.StatusOK)
}

// RequireStatus asserts the status code and closes the body.
func RequireStatus(t *testing.T, resp *http.Response, status int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		require.Equal(t, status, resp.StatusCode, string(body))
	}
}

// DecodeJSON asserts the status code and decodes the body into v.
func DecodeJSON(t *testing.T, resp *http.Response, status int, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, status, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

// --- SSE client ---

// Stream is an open notification stream.
type Stream struct {
	resp *http.Response
	rd   *bufio.Reader
}

// OpenStream connects to the notification stream and waits for the
// "connected" event, after which the subscription is live.
func (ts *TestServer) OpenStream(t *testing.T, token string) *Stream {
	t.Helper()
	resp, err := ts.client.Get(ts.URL + "/api/me/notifications?token=" + token)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	s := &Stream{resp: resp, rd: bufio.NewReader(resp.Body)}
	t.Cleanup(func() { resp.Body.Close() })
	s.Await(t, "connected")
	return s
}

// Next returns the next event name and its data.
func (s *Stream) Next(t *testing.T) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := s.rd.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

// Await skips events until one named name arrives and returns its data.
func (s *Stream) Await(t *testing.T, name string) string {
	t.Helper()
	for {
		got, data := s.Next(t)
		if got == name {
			return data
		}
	}
}
