package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/game/quest"
	"go.uber.org/zap"
)

// survival identifies the current timer of one SURVIVE record; a tick
// from a replaced timer sees a different gen and stops.
type survival struct {
	gen  uint64
	rule *quest.SurviveRule
}

func surviveTask(id uuid.UUID, questID string) string {
	return survivePrefix + id.String() + ":" + questID
}

// StartSurvival schedules the per-tick evaluation of a SURVIVE record.
// Starting again under the same name replaces the previous timer.
func (m *Manager) StartSurvival(id uuid.UUID, questID string, rule *quest.SurviveRule) {
	name := surviveTask(id, questID)
	m.survMu.Lock()
	m.survSeq++
	gen := m.survSeq
	m.survivals[name] = survival{gen: gen, rule: rule}
	m.survMu.Unlock()

	interval := m.cfg.SurviveTick
	if interval <= 0 {
		interval = defaultSurviveTick
	}
	m.sched.AddTickerUntil(name, interval, func() bool {
		return m.surviveTick(id, questID, rule, gen)
	})
}

// StopSurvival cancels the timer of a SURVIVE record, if any.
func (m *Manager) StopSurvival(id uuid.UUID, questID string) {
	name := surviveTask(id, questID)
	m.survMu.Lock()
	_, ok := m.survivals[name]
	delete(m.survivals, name)
	m.survMu.Unlock()
	if ok {
		m.sched.Remove(name)
	}
}

func (m *Manager) stopPlayerSurvival(id uuid.UUID) int {
	prefix := survivePrefix + id.String() + ":"
	m.survMu.Lock()
	for name := range m.survivals {
		if strings.HasPrefix(name, prefix) {
			delete(m.survivals, name)
		}
	}
	m.survMu.Unlock()
	return m.sched.RemovePrefix(prefix)
}

func (m *Manager) survivalCurrent(id uuid.UUID, questID string, gen uint64) bool {
	m.survMu.Lock()
	defer m.survMu.Unlock()
	cur, ok := m.survivals[surviveTask(id, questID)]
	return ok && cur.gen == gen
}

// surviveTick advances one SURVIVE record by one tick. It returns false
// once the timer should stop: the record is gone or finished, or the
// player went offline.
func (m *Manager) surviveTick(id uuid.UUID, questID string, rule *quest.SurviveRule, gen uint64) bool {
	if !m.survivalCurrent(id, questID, gen) {
		return false
	}
	state, online := m.players.State(id)
	if !online {
		return false
	}
	ctx := context.Background()
	keep := false
	var fx effects
	m.progress.With(id, func(s *progress.Slot) {
		r, ok := s.Find(questID)
		if !ok || !r.Active() {
			return
		}
		q, ok := m.catalog.Get(questID)
		if !ok {
			return
		}
		now := m.now()
		keep = true
		if r.Expired(now) {
			return
		}
		if r.Survive == nil {
			r.Survive = &quest.SurviveState{}
		}
		t := rule.Tick(state, r.Survive.Seconds)
		r.Survive.Seconds = t.Seconds
		if t.Done {
			m.complete(ctx, r, q, now, &fx)
			keep = false
			return
		}
		// Progress never rolls back when the clock restarts.
		if t.Progress > r.Progress {
			r.Set(t.Progress)
			m.progressed(ctx, r, q, now, &fx)
		}
	})
	fx.run()
	if !keep {
		m.logger.Debug("survive timer finished", zap.Stringer("player_id", id), zap.String("quest_id", questID))
	}
	return keep
}
