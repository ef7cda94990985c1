package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/notify"
	"github.com/kasuganosora/questengine/game/player"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/plugin/hook"
	"github.com/kasuganosora/questengine/storage"
	"go.uber.org/zap"
)

// Accept starts questID for an online player.
func (m *Manager) Accept(ctx context.Context, id uuid.UUID, questID string) error {
	return m.accept(ctx, id, questID, false)
}

// Give starts questID skipping the permission, limit and cooldown checks.
func (m *Manager) Give(ctx context.Context, id uuid.UUID, questID string) error {
	return m.accept(ctx, id, questID, true)
}

func (m *Manager) accept(ctx context.Context, id uuid.UUID, questID string, force bool) error {
	q, ok := m.catalog.Get(questID)
	if !ok {
		return ErrQuestNotFound
	}
	sess := m.players.Get(id)
	if sess == nil {
		return ErrPlayerOffline
	}

	limit := -1
	if !force {
		if !sess.HasPermission(q.Permission) {
			return deny(q.ID, ErrNoPermission)
		}
		if left, on := m.cooldowns.remaining(id, q.ID, m.now()); on {
			d := deny(q.ID, ErrOnCooldown)
			d.Remaining = left
			return d
		}
		limit = m.limitFor(ctx, sess)
	}

	probe := &progress.Record{PlayerID: id, QuestID: q.ID, Target: q.Target}
	if err := m.trigger(ctx, hook.BeforeQuestAccept, probe); errors.Is(err, hook.ErrInterrupt) {
		return deny(q.ID, ErrHookRejected)
	}

	var (
		err  error
		snap progress.Record
	)
	loaded := m.progress.With(id, func(s *progress.Slot) {
		now := m.now()
		r, exists := s.Find(q.ID)
		if exists && r.Occupying() {
			err = deny(q.ID, ErrAlreadyActive)
			return
		}
		if limit >= 0 && s.CountActive() >= limit {
			d := deny(q.ID, ErrQuestLimit)
			d.Limit = limit
			err = d
			return
		}
		if exists {
			// A claimed repeatable record is reused for the new run.
			r.Reset(q, now)
			if q.Type == quest.TypeSurvive && r.Survive == nil {
				r.Survive = &quest.SurviveState{}
			}
		} else {
			r = progress.New(id, q, now)
			s.Upsert(r)
		}
		snap = r.Clone()
		m.writer.Save(snap)
		if mt, ok := m.matcherFor(r, q); ok {
			m.safely("OnAccept", id, q.ID, func() { mt.OnAccept(id) })
		}
	})
	if !loaded {
		return ErrPlayerOffline
	}
	if err != nil {
		return err
	}

	ph := questPlaceholders(q, &snap)
	if left, ok := snap.Remaining(m.now()); ok {
		ph["time"] = progress.FormatDuration(left)
	}
	m.notify(ctx, id, notify.KeyQuestAccepted, ph)
	_ = m.trigger(ctx, hook.OnQuestAccept, &snap)
	m.logger.Info("quest accepted",
		zap.Stringer("player_id", id),
		zap.String("quest_id", q.ID),
		zap.Bool("forced", force))
	return nil
}

// limitFor returns the active quest limit of sess, or -1 for none.
func (m *Manager) limitFor(ctx context.Context, sess *player.Session) int {
	if !m.cfg.Limits.Enabled || sess.HasPermission(BypassLimitPermission) {
		return -1
	}
	if m.groups != nil {
		if g, ok := m.groups.PrimaryGroup(ctx, sess.ID); ok {
			return m.cfg.Limits.LimitForGroup(g)
		}
	}
	return m.cfg.Limits.Default
}

// HandleEvent feeds a gameplay event to every active quest of its actor
// and returns how many records advanced.
func (m *Manager) HandleEvent(ctx context.Context, ev quest.Event) int {
	if ev == nil {
		return 0
	}
	id := ev.Actor()
	changed := 0
	var fx effects
	m.progress.With(id, func(s *progress.Slot) {
		now := m.now()
		for _, r := range s.All() {
			if !r.Active() || r.Expired(now) {
				continue
			}
			q, ok := m.catalog.Get(r.QuestID)
			if !ok {
				continue
			}
			mt, ok := m.matcherFor(r, q)
			if !ok {
				continue
			}
			d := m.delta(mt, id, ev, q.ID)
			if d == 0 {
				continue
			}
			before := r.Progress
			if r.Add(d) {
				m.complete(ctx, r, q, now, &fx)
				changed++
				continue
			}
			if r.Progress != before {
				m.progressed(ctx, r, q, now, &fx)
				changed++
			}
		}
	})
	fx.run()
	return changed
}

// progressed persists a non-completing change and queues its notification.
func (m *Manager) progressed(ctx context.Context, r *progress.Record, q *quest.Quest, now time.Time, fx *effects) {
	snap := r.Clone()
	m.writer.Save(snap)
	notifyNow := r.AllowNotify(now, m.cfg.ProgressNotifyInterval)
	fx.add(func() {
		if notifyNow {
			m.notify(ctx, snap.PlayerID, notify.KeyQuestProgress, questPlaceholders(q, &snap))
		}
		_ = m.trigger(ctx, hook.OnQuestProgress, &snap)
	})
}

// complete moves an active record to Completed. Callers hold the player lock.
func (m *Manager) complete(ctx context.Context, r *progress.Record, q *quest.Quest, now time.Time, fx *effects) {
	if r.Completed {
		return
	}
	r.MarkCompleted(now)
	snap := r.Clone()
	m.writer.Stat(r.PlayerID, r.QuestID, r.CompletionTime(), now)
	m.writer.Save(snap)
	if q.HasCooldown() {
		m.cooldowns.arm(r.PlayerID, q.ID, now.Add(q.Cooldown))
	}
	if mt, ok := m.matcherFor(r, q); ok {
		m.safely("OnComplete", r.PlayerID, q.ID, func() { mt.OnComplete(r.PlayerID) })
	}
	m.StopSurvival(r.PlayerID, q.ID)

	fx.add(func() {
		m.rank(ctx, snap.PlayerID, q.ID)
		m.notify(ctx, snap.PlayerID, notify.KeyQuestCompleted, questPlaceholders(q, &snap))
		_ = m.trigger(ctx, hook.OnQuestComplete, &snap)
		m.logger.Info("quest completed",
			zap.Stringer("player_id", snap.PlayerID),
			zap.String("quest_id", q.ID),
			zap.Duration("took", snap.CompletionTime()))
	})
}

func (m *Manager) rank(ctx context.Context, id uuid.UUID, questID string) {
	if m.ranking == nil {
		return
	}
	if _, err := m.ranking.ZIncrBy(ctx, RankingQuests, 1, questID); err != nil {
		m.logger.Warn("quest ranking update failed", zap.Error(err))
	}
	if _, err := m.ranking.ZIncrBy(ctx, RankingPlayers, 1, id.String()); err != nil {
		m.logger.Warn("player ranking update failed", zap.Error(err))
	}
}

// Claim grants the reward of a completed quest. Only one of several
// concurrent claims succeeds. The claim is reserved under the player lock
// and the reward runs outside it; a failed reward releases the reservation.
func (m *Manager) Claim(ctx context.Context, id uuid.UUID, questID string) error {
	sess := m.players.Get(id)
	if sess == nil {
		return ErrPlayerOffline
	}
	var (
		err  error
		prev progress.Record
		q    *quest.Quest
	)
	loaded := m.progress.With(id, func(s *progress.Slot) {
		r, ok := s.Find(questID)
		if !ok {
			err = ErrProgressNotFound
			return
		}
		if q, ok = m.catalog.Get(questID); !ok {
			err = ErrQuestNotFound
			return
		}
		if !r.Completed || r.Claimed {
			err = ErrNotClaimable
			return
		}
		prev = r.Clone()
		r.Claimed = true
	})
	if !loaded {
		return ErrPlayerOffline
	}
	if err != nil {
		return err
	}

	if m.rewards != nil {
		if rerr := m.rewards.Apply(ctx, q.Reward, id, sess.Name); rerr != nil {
			m.releaseClaim(id, prev)
			err = fmt.Errorf("%w: %v", ErrRewardFailed, rerr)
			m.logger.Error("reward failed",
				zap.Stringer("player_id", id), zap.String("quest_id", questID), zap.Error(err))
			return err
		}
	}

	snap := prev
	snap.Claimed = true
	m.progress.With(id, func(s *progress.Slot) {
		r, ok := s.Find(questID)
		if !ok {
			return
		}
		if !q.Repeatable {
			s.Remove(questID)
			return
		}
		snap = r.Clone()
	})
	if !q.Repeatable {
		m.writer.Delete(id, questID)
	} else {
		m.writer.Save(snap)
	}

	m.notify(ctx, id, notify.KeyRewardClaimed, questPlaceholders(q, &snap))
	_ = m.trigger(ctx, hook.OnQuestClaim, &snap)
	m.logger.Info("quest reward claimed", zap.Stringer("player_id", id), zap.String("quest_id", questID))
	return nil
}

// releaseClaim undoes a claim reservation after its reward failed. When the
// player left meanwhile the unclaimed copy is written over the saved one.
func (m *Manager) releaseClaim(id uuid.UUID, prev progress.Record) {
	reverted := false
	loaded := m.progress.With(id, func(s *progress.Slot) {
		if r, ok := s.Find(prev.QuestID); ok && r.Claimed {
			r.Claimed = false
			reverted = true
		}
	})
	if !loaded {
		m.writer.Save(prev)
		return
	}
	if !reverted {
		m.logger.Warn("claim reservation vanished before release",
			zap.Stringer("player_id", id), zap.String("quest_id", prev.QuestID))
	}
}

// Abandon drops a quest the player is working on or has not yet claimed.
func (m *Manager) Abandon(ctx context.Context, id uuid.UUID, questID string) error {
	var (
		err  error
		snap progress.Record
	)
	loaded := m.progress.With(id, func(s *progress.Slot) {
		r, ok := s.Find(questID)
		if !ok {
			err = ErrProgressNotFound
			return
		}
		if !r.Occupying() {
			err = ErrNotActive
			return
		}
		snap = r.Clone()
		m.drop(s, r)
	})
	if !loaded {
		return ErrPlayerOffline
	}
	if err != nil {
		return err
	}
	name := questID
	if q, ok := m.catalog.Get(questID); ok {
		name = q.Name
	}
	m.notify(ctx, id, notify.KeyQuestAbandoned, map[string]string{"quest": name, "id": questID})
	_ = m.trigger(ctx, hook.OnQuestAbandon, &snap)
	return nil
}

// drop removes r from memory and storage. Callers hold the player lock.
func (m *Manager) drop(s *progress.Slot, r *progress.Record) {
	s.Remove(r.QuestID)
	m.StopSurvival(r.PlayerID, r.QuestID)
	m.writer.Delete(r.PlayerID, r.QuestID)
}

// Remove deletes a record in any state. Offline players are handled
// directly against storage.
func (m *Manager) Remove(ctx context.Context, id uuid.UUID, questID string) error {
	var err error
	loaded := m.progress.With(id, func(s *progress.Slot) {
		r, ok := s.Find(questID)
		if !ok {
			err = ErrProgressNotFound
			return
		}
		m.drop(s, r)
	})
	if loaded {
		return err
	}
	if _, gerr := m.store.GetProgress(ctx, id, questID); gerr != nil {
		if errors.Is(gerr, storage.ErrNotFound) {
			return ErrProgressNotFound
		}
		return gerr
	}
	m.writer.Delete(id, questID)
	return nil
}

// SetProgress overrides the progress of an active record, clamped to
// [0, target]. Reaching the target completes the quest.
func (m *Manager) SetProgress(ctx context.Context, id uuid.UUID, questID string, value int) (progress.Record, error) {
	return m.mutate(ctx, id, questID, func(r *progress.Record, q *quest.Quest, now time.Time, fx *effects) error {
		if !r.Active() {
			return ErrNotActive
		}
		if r.Set(value) {
			m.complete(ctx, r, q, now, fx)
			return nil
		}
		m.progressed(ctx, r, q, now, fx)
		return nil
	})
}

// ForceComplete completes an active record regardless of its progress.
func (m *Manager) ForceComplete(ctx context.Context, id uuid.UUID, questID string) (progress.Record, error) {
	return m.mutate(ctx, id, questID, func(r *progress.Record, q *quest.Quest, now time.Time, fx *effects) error {
		if !r.Active() {
			return ErrNotActive
		}
		m.complete(ctx, r, q, now, fx)
		return nil
	})
}

// Reset returns a record in any state to a fresh run of its quest.
func (m *Manager) Reset(ctx context.Context, id uuid.UUID, questID string) (progress.Record, error) {
	return m.mutate(ctx, id, questID, func(r *progress.Record, q *quest.Quest, now time.Time, _ *effects) error {
		m.StopSurvival(id, q.ID)
		r.Reset(q, now)
		if q.Type == quest.TypeSurvive && r.Survive == nil {
			r.Survive = &quest.SurviveState{}
		}
		m.writer.Save(r.Clone())
		if mt, ok := m.matcherFor(r, q); ok {
			m.safely("OnAccept", id, q.ID, func() { mt.OnAccept(id) })
		}
		return nil
	})
}

type mutation func(r *progress.Record, q *quest.Quest, now time.Time, fx *effects) error

// mutate runs fn on a loaded record whose quest still exists.
func (m *Manager) mutate(ctx context.Context, id uuid.UUID, questID string, fn mutation) (progress.Record, error) {
	var (
		err  error
		snap progress.Record
		fx   effects
	)
	loaded := m.progress.With(id, func(s *progress.Slot) {
		r, ok := s.Find(questID)
		if !ok {
			err = ErrProgressNotFound
			return
		}
		q, ok := m.catalog.Get(questID)
		if !ok {
			err = ErrQuestNotFound
			return
		}
		if err = fn(r, q, m.now(), &fx); err == nil {
			snap = r.Clone()
		}
	})
	if !loaded {
		return snap, ErrPlayerOffline
	}
	fx.run()
	return snap, err
}

// Purge deletes every durable row of a player and, when online, its
// loaded records and cooldowns.
func (m *Manager) Purge(ctx context.Context, id uuid.UUID) error {
	m.progress.With(id, func(s *progress.Slot) {
		for _, r := range s.All() {
			s.Remove(r.QuestID)
			m.StopSurvival(id, r.QuestID)
		}
	})
	m.cooldowns.clearPlayer(id)
	m.writer.DeletePlayer(id)
	if err := m.writer.Flush(ctx); err != nil {
		return err
	}
	m.logger.Info("player quest data purged", zap.Stringer("player_id", id))
	return nil
}
