package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/questengine/api/rest"
	"github.com/kasuganosora/questengine/api/sse"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	dbadapter "github.com/kasuganosora/questengine/db"
	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/group"
	"github.com/kasuganosora/questengine/game/notify"
	"github.com/kasuganosora/questengine/game/player"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/game/reward"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/kasuganosora/questengine/model"
	"github.com/kasuganosora/questengine/persist"
	"github.com/kasuganosora/questengine/plugin/hook"
	"github.com/kasuganosora/questengine/scheduler"
	"github.com/kasuganosora/questengine/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

func main() {
	// questengine hash-admin-key <key> prints the value for server.admin_key_hash.
	if len(os.Args) == 3 && os.Args[1] == "hash-admin-key" {
		hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[2]), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash: %v", err)
		}
		fmt.Println(string(hash))
		return
	}

	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret is not set")
	}
	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKeyHash == "" {
		logger.Warn("server.admin_key_hash is not set; admin and game-server endpoints are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer dbadapter.Close(db)
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cfg.Cache)
	if err != nil {
		logger.Fatal("pubsub", zap.Error(err))
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Quest catalog ----
	catalog := quest.NewCatalog(logger)
	if n, err := catalog.Reload(cfg.Quest.CatalogPath); err != nil {
		logger.Warn("quest catalog not loaded", zap.String("path", cfg.Quest.CatalogPath), zap.Error(err))
	} else {
		logger.Info("quest catalog loaded", zap.Int("quests", n))
	}

	// ---- Persistence ----
	store := storage.NewGormStore(db)
	writer := persist.New(store, cfg.Quest.PersistQueue, cfg.Quest.FlushTimeout, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Hooks ----
	hooks := hook.NewHookCenter(logger)
	if cfg.Quest.AuditLog {
		hook.RegisterAuditLog(hooks, logger)
	}
	hook.RegisterDisabled(hooks, cfg.Quest.Disabled)

	// ---- Engine ----
	messages := notify.NewMessages(pubsub, cfg.Quest.Messages, logger)
	structures := quest.NewStructureIndex()
	groups := group.NewCached(group.NewStatic(cfg.Quest.PlayerGroups, logger), c, cfg.Quest.GroupCacheTTL, logger)
	players := player.NewRegistry(logger)

	questEngine := engine.New(cfg.Quest, engine.Deps{
		Catalog:    catalog,
		Store:      store,
		Writer:     writer,
		Players:    players,
		Scheduler:  sched,
		Hooks:      hooks,
		Groups:     groups,
		Rewards:    reward.NewCommandApplier(pubsub, messages, logger),
		Notifier:   messages,
		Ranking:    c,
		Structures: structures,
		Logger:     logger,
	})
	questEngine.Start()

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "quests": catalog.Len(), "online": players.Count()})
	})

	gameH := apirest.NewGameHandler(questEngine, structures, logger)
	questH := apirest.NewQuestHandler(questEngine, logger)
	adminH := apirest.NewAdminHandler(questEngine, sched, writer, c, cfg.Security, logger)
	var auditSvc *audit.Service
	if cfg.Server.AdminAudit {
		auditSvc = audit.New(db, logger)
		adminH.SetAudit(auditSvc)
	}
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	playerAuth := mw.PlayerAuth(cfg.Security, c)
	adminAuth := mw.AdminAuth(cfg.Server.AdminKeyHash)

	api := r.Group("/api")
	{
		gameG := api.Group("/game")
		gameG.Use(mw.IPWhitelist(cfg.Server.GameServerIPs), adminAuth)
		gameG.POST("/players/:id/connect", gameH.Connect)
		gameG.POST("/players/:id/disconnect", gameH.Disconnect)
		gameG.PUT("/players/:id/state", gameH.UpdateState)
		gameG.POST("/events", gameH.Events)
		gameG.PUT("/structures", gameH.Structures)

		questsG := api.Group("/quests")
		questsG.Use(playerAuth)
		questsG.GET("", questH.ListQuests)
		questsG.GET("/:qid", questH.GetQuest)

		// The stream authenticates itself so EventSource clients can pass ?token=.
		api.GET("/me/notifications", sseH.ServeSSE)

		meG := api.Group("/me")
		meG.Use(playerAuth, mw.RateLimitBy(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst, mw.ByPlayer))
		meG.GET("/quests", questH.MyQuests)
		meG.POST("/quests/:qid/accept", questH.Accept)
		meG.POST("/quests/:qid/abandon", questH.Abandon)
		meG.POST("/quests/:qid/claim", questH.Claim)
		meG.GET("/stats", questH.MyStats)

		adminG := api.Group("/admin")
		adminG.Use(adminAuth)
		if auditSvc != nil {
			adminG.Use(audit.Middleware(auditSvc))
		}
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
		adminG.POST("/announce", sseH.AnnounceHandler)
		adminG.GET("/audit", adminH.AuditLog)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Quest.FlushTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := questEngine.Stop(shutdownCtx); err != nil {
		logger.Error("engine stop", zap.Error(err))
	}
	writer.Stop(shutdownCtx)
	if auditSvc != nil {
		auditSvc.Stop(shutdownCtx)
	}
	logger.Info("shutdown complete")
}
