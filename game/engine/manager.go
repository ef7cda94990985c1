package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	"github.com/kasuganosora/questengine/game/group"
	"github.com/kasuganosora/questengine/game/notify"
	"github.com/kasuganosora/questengine/game/player"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/game/reward"
	"github.com/kasuganosora/questengine/persist"
	"github.com/kasuganosora/questengine/plugin/hook"
	"github.com/kasuganosora/questengine/scheduler"
	"github.com/kasuganosora/questengine/storage"
	"go.uber.org/zap"
)

// BypassLimitPermission lifts the active quest limit.
const BypassLimitPermission = "quest.bypass.limit"

// Scheduler task names.
const (
	TaskAutosave        = "quest_autosave"
	TaskExpirationSweep = "quest_expiration_sweep"
	survivePrefix       = "survive:"

	defaultSurviveTick = time.Second
)

// Ranking ZSet keys.
const (
	RankingQuests  = "quest:ranking:quests"
	RankingPlayers = "quest:ranking:players"
)

// Deps are the collaborators of a Manager. Groups, Rewards, Notifier,
// Hooks, Ranking and Structures are optional.
type Deps struct {
	Catalog    *quest.Catalog
	Store      storage.Store
	Writer     *persist.Writer
	Players    *player.Registry
	Scheduler  *scheduler.Scheduler
	Hooks      *hook.HookCenter
	Groups     group.Resolver
	Rewards    reward.Applier
	Notifier   notify.Sink
	Ranking    cache.Cache
	Structures quest.StructureLocator
	Logger     *zap.Logger
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager drives quest records through accept, progress, completion,
// claim and expiry.
type Manager struct {
	cfg       config.QuestConfig
	catalog   *quest.Catalog
	progress  *progress.Store
	store     storage.Store
	writer    *persist.Writer
	players   *player.Registry
	sched     *scheduler.Scheduler
	hooks     *hook.HookCenter
	groups    group.Resolver
	rewards   reward.Applier
	notifier  notify.Sink
	ranking   cache.Cache
	env       quest.Env
	cooldowns *cooldowns
	now       func() time.Time
	logger    *zap.Logger

	survMu    sync.Mutex
	survSeq   uint64
	survivals map[string]survival
}

// New creates a Manager. Call Start to register its background tasks.
func New(cfg config.QuestConfig, deps Deps, opts ...Option) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		catalog:   deps.Catalog,
		progress:  progress.NewStore(),
		store:     deps.Store,
		writer:    deps.Writer,
		players:   deps.Players,
		sched:     deps.Scheduler,
		hooks:     deps.Hooks,
		groups:    deps.Groups,
		rewards:   deps.Rewards,
		notifier:  deps.Notifier,
		ranking:   deps.Ranking,
		cooldowns: newCooldowns(),
		now:       time.Now,
		logger:    logger,
		survivals: make(map[string]survival),
	}
	m.env = quest.Env{Structures: deps.Structures, Timers: m}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start registers the autosave and expiration sweep tasks.
func (m *Manager) Start() {
	if m.cfg.AutosaveEnabled && m.cfg.AutosaveInterval > 0 {
		m.sched.AddTicker(TaskAutosave, m.cfg.AutosaveInterval, func() { m.Autosave() })
	}
	interval := m.cfg.ExpirationSweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	m.sched.AddTicker(TaskExpirationSweep, interval, func() { m.SweepExpired(context.Background()) })
}

// Stop removes the background tasks, saves every loaded record and waits
// for the writer to catch up.
func (m *Manager) Stop(ctx context.Context) error {
	m.sched.Remove(TaskAutosave)
	m.sched.Remove(TaskExpirationSweep)
	m.sched.RemovePrefix(survivePrefix)
	n := m.Autosave()
	m.logger.Info("quest manager stopping", zap.Int("records_saved", n))
	return m.writer.Flush(ctx)
}

// Autosave enqueues a save of every loaded record and returns the count.
// Records are copied under their player locks and enqueued afterwards, so a
// full writer queue never stalls event handling.
func (m *Manager) Autosave() int {
	var recs []progress.Record
	m.progress.Each(func(s *progress.Slot) {
		for _, r := range s.All() {
			recs = append(recs, r.Clone())
		}
	})
	for _, r := range recs {
		m.writer.Save(r)
	}
	n := len(recs)
	if n > 0 {
		m.logger.Debug("quest autosave", zap.Int("records", n))
	}
	return n
}

// Catalog returns the quest catalog.
func (m *Manager) Catalog() *quest.Catalog { return m.catalog }

// Players returns the connected-player registry.
func (m *Manager) Players() *player.Registry { return m.players }

// Now is the engine clock.
func (m *Manager) Now() time.Time { return m.now() }

// Describe returns the objective text of a quest.
func (m *Manager) Describe(q *quest.Quest) string {
	mt, err := quest.NewMatcher(q, quest.Env{Structures: m.env.Structures})
	if err != nil {
		return ""
	}
	return mt.Describe()
}

// effects collects side effects to run once the player lock is released.
type effects []func()

func (e *effects) add(fn func()) { *e = append(*e, fn) }

func (e effects) run() {
	for _, fn := range e {
		fn()
	}
}

func (m *Manager) notify(ctx context.Context, id uuid.UUID, key string, ph map[string]string) {
	if m.notifier != nil {
		m.notifier.Notify(ctx, id, key, ph)
	}
}

func (m *Manager) trigger(ctx context.Context, event string, r *progress.Record) error {
	if m.hooks == nil {
		return nil
	}
	_, err := m.hooks.Trigger(ctx, event, hook.QuestEvent{
		PlayerID: r.PlayerID,
		QuestID:  r.QuestID,
		Progress: r.Progress,
		Target:   r.Target,
	})
	return err
}

// matcherFor returns the matcher cached on r, building it when q changed.
func (m *Manager) matcherFor(r *progress.Record, q *quest.Quest) (quest.Matcher, bool) {
	if mt, ok := r.Matcher(q); ok {
		return mt, true
	}
	mt, err := quest.NewMatcher(q, m.env)
	if err != nil {
		m.logger.Error("build matcher", zap.String("quest_id", q.ID), zap.Error(err))
		return nil, false
	}
	r.BindMatcher(q, mt)
	return mt, true
}

// safely runs a matcher callback, logging a panic instead of propagating it.
func (m *Manager) safely(what string, id uuid.UUID, questID string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("matcher panicked",
				zap.String("call", what),
				zap.Stringer("player_id", id),
				zap.String("quest_id", questID),
				zap.Any("recover", rec))
		}
	}()
	fn()
}

func (m *Manager) delta(mt quest.Matcher, id uuid.UUID, ev quest.Event, questID string) (d int) {
	m.safely("CheckProgress", id, questID, func() { d = mt.CheckProgress(id, ev) })
	if d < 0 {
		d = 0
	}
	return d
}

func questPlaceholders(q *quest.Quest, r *progress.Record) map[string]string {
	return map[string]string{
		"quest":   q.Name,
		"id":      q.ID,
		"current": strconv.Itoa(r.Progress),
		"target":  strconv.Itoa(r.Target),
	}
}
