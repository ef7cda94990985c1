package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/storage"
	"go.uber.org/zap"
)

// Available lists the quests an online player may accept right now.
func (m *Manager) Available(id uuid.UUID) ([]*quest.Quest, error) {
	sess := m.players.Get(id)
	if sess == nil {
		return nil, ErrPlayerOffline
	}
	occupied := make(map[string]bool)
	for _, r := range m.progress.Get(id) {
		if r.Occupying() {
			occupied[r.QuestID] = true
		}
	}
	now := m.now()
	out := []*quest.Quest{}
	for _, q := range m.catalog.All() {
		if occupied[q.ID] || !sess.HasPermission(q.Permission) {
			continue
		}
		if _, on := m.cooldowns.remaining(id, q.ID, now); on {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// Progress returns a snapshot of every loaded record of the player.
// Records of quests no longer in the catalog are left out.
func (m *Manager) Progress(id uuid.UUID) []progress.Record {
	out := []progress.Record{}
	for _, r := range m.progress.Get(id) {
		if _, ok := m.catalog.Get(r.QuestID); ok {
			out = append(out, r)
		}
	}
	return out
}

// Active returns the records still in progress and not expired.
func (m *Manager) Active(id uuid.UUID) []progress.Record {
	now := m.now()
	return filter(m.Progress(id), func(r *progress.Record) bool { return r.Active() && !r.Expired(now) })
}

// Completed returns the completed records, claimed or not.
func (m *Manager) Completed(id uuid.UUID) []progress.Record {
	return filter(m.Progress(id), func(r *progress.Record) bool { return r.Completed })
}

// Find returns one record of a loaded player.
func (m *Manager) Find(id uuid.UUID, questID string) (progress.Record, error) {
	if _, ok := m.catalog.Get(questID); !ok {
		return progress.Record{}, ErrQuestNotFound
	}
	if !m.progress.Loaded(id) {
		return progress.Record{}, ErrPlayerOffline
	}
	for _, r := range m.progress.Get(id) {
		if r.QuestID == questID {
			return r, nil
		}
	}
	return progress.Record{}, ErrProgressNotFound
}

// CooldownRemaining reports the cooldown left on a quest for a player.
func (m *Manager) CooldownRemaining(id uuid.UUID, questID string) (time.Duration, bool) {
	return m.cooldowns.remaining(id, questID, m.now())
}

func filter(in []progress.Record, keep func(*progress.Record) bool) []progress.Record {
	out := []progress.Record{}
	for i := range in {
		if keep(&in[i]) {
			out = append(out, in[i])
		}
	}
	return out
}

// PlayerStats summarises a player's quest history.
type PlayerStats struct {
	PlayerID  uuid.UUID                 `json:"player_id"`
	Online    bool                      `json:"online"`
	Active    int64                     `json:"active"`
	Completed int64                     `json:"completed"`
	Quests    []storage.PlayerQuestStat `json:"quests"`
}

// PlayerStats counts active quests from memory when the player is online
// and from storage otherwise.
func (m *Manager) PlayerStats(ctx context.Context, id uuid.UUID) (PlayerStats, error) {
	out := PlayerStats{PlayerID: id}
	active := 0
	out.Online = m.progress.With(id, func(s *progress.Slot) { active = s.CountActive() })
	if out.Online {
		out.Active = int64(active)
	} else {
		n, err := m.store.CountActive(ctx, id)
		if err != nil {
			return out, err
		}
		out.Active = n
	}
	n, err := m.store.CountCompleted(ctx, id)
	if err != nil {
		return out, err
	}
	out.Completed = n
	if out.Quests, err = m.store.PlayerStatistics(ctx, id); err != nil {
		return out, err
	}
	return out, nil
}

// QuestStats returns aggregate statistics of a catalog quest.
func (m *Manager) QuestStats(ctx context.Context, questID string) (storage.QuestStats, error) {
	if _, ok := m.catalog.Get(questID); !ok {
		return storage.QuestStats{}, ErrQuestNotFound
	}
	return m.store.QuestStatistics(ctx, questID)
}

// RankEntry is one row of a completion ranking.
type RankEntry struct {
	ID          string `json:"id"`
	Completions int64  `json:"completions"`
}

// GlobalStats describes the whole engine.
type GlobalStats struct {
	storage.GlobalStats
	Quests        int         `json:"quests"`
	Online        int         `json:"online"`
	LoadedPlayers int         `json:"loaded_players"`
	TopQuests     []RankEntry `json:"top_quests"`
	TopPlayers    []RankEntry `json:"top_players"`
}

const topN = 10

func (m *Manager) GlobalStats(ctx context.Context) (GlobalStats, error) {
	out := GlobalStats{
		Quests:        m.catalog.Len(),
		Online:        m.players.Count(),
		LoadedPlayers: m.progress.Len(),
		TopQuests:     []RankEntry{},
		TopPlayers:    []RankEntry{},
	}
	gs, err := m.store.GlobalStatistics(ctx)
	if err != nil {
		return out, err
	}
	out.GlobalStats = gs
	if m.ranking != nil {
		out.TopQuests = m.top(ctx, RankingQuests)
		out.TopPlayers = m.top(ctx, RankingPlayers)
	}
	return out, nil
}

func (m *Manager) top(ctx context.Context, key string) []RankEntry {
	out := []RankEntry{}
	members, err := m.ranking.ZRevRange(ctx, key, 0, topN-1)
	if err != nil {
		m.logger.Warn("read ranking", zap.String("key", key), zap.Error(err))
		return out
	}
	for _, id := range members {
		score, err := m.ranking.ZScore(ctx, key, id)
		if err != nil {
			continue
		}
		out = append(out, RankEntry{ID: id, Completions: int64(score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Completions > out[j].Completions })
	return out
}

// ReloadCatalog re-reads the catalog file. Running SURVIVE timers restart
// with the new definitions; records of removed quests stay untouched.
func (m *Manager) ReloadCatalog() (int, error) {
	if m.cfg.CatalogPath == "" {
		return 0, errors.New("no catalog path configured")
	}
	n, err := m.catalog.Reload(m.cfg.CatalogPath)
	if err != nil {
		return 0, err
	}
	for _, id := range m.progress.Players() {
		m.resumeSurvival(id)
	}
	m.logger.Info("quest catalog reloaded", zap.Int("quests", n))
	return n, nil
}

func (m *Manager) resumeSurvival(id uuid.UUID) {
	m.progress.With(id, func(s *progress.Slot) {
		for _, r := range s.All() {
			if !r.Active() {
				continue
			}
			q, ok := m.catalog.Get(r.QuestID)
			if !ok || q.Type != quest.TypeSurvive {
				m.StopSurvival(id, r.QuestID)
				continue
			}
			if mt, ok := m.matcherFor(r, q); ok {
				m.safely("OnResume", id, q.ID, func() { mt.OnResume(id) })
			}
		}
	})
}
