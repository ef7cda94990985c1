package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/player"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/persist"
	"github.com/kasuganosora/questengine/plugin/hook"
	"go.uber.org/zap"
)

// Connect registers a player session and loads its records. Events for the
// player wait until loading finishes. Active SURVIVE records resume their
// timers.
func (m *Manager) Connect(ctx context.Context, sess *player.Session) error {
	id := sess.ID
	if old := m.players.Register(sess); old != nil {
		m.logger.Info("session replaced", zap.Stringer("player_id", id))
	}
	loaded, err := m.progress.Load(ctx, id, func(ctx context.Context) ([]*progress.Record, error) {
		// Saves queued by an earlier disconnect must land before reading.
		if err := m.flush(ctx); err != nil && !errors.Is(err, persist.ErrStopped) {
			return nil, fmt.Errorf("flush pending writes: %w", err)
		}
		return m.store.LoadProgress(ctx, id)
	})
	if err != nil {
		m.players.UnregisterSession(sess)
		return fmt.Errorf("load progress: %w", err)
	}
	m.writer.Player(id, sess.Name, m.now())
	if loaded {
		m.resume(id)
	}
	if m.hooks != nil {
		_, _ = m.hooks.Trigger(ctx, hook.OnPlayerLogin, hook.QuestEvent{PlayerID: id})
	}
	m.logger.Info("player connected",
		zap.Stringer("player_id", id),
		zap.String("name", sess.Name),
		zap.Bool("loaded", loaded))
	return nil
}

// resume rebuilds matchers of active records and fires OnResume.
func (m *Manager) resume(id uuid.UUID) {
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
			if q.Type == quest.TypeSurvive && r.Survive == nil {
				r.Survive = &quest.SurviveState{}
			}
			if mt, ok := m.matcherFor(r, q); ok {
				m.safely("OnResume", id, q.ID, func() { mt.OnResume(id) })
			}
		}
	})
}

// Disconnect cancels the player's timers, waits for in-flight updates,
// flushes every record and drops the session.
func (m *Manager) Disconnect(ctx context.Context, id uuid.UUID) error {
	sess := m.players.Get(id)
	timers := m.stopPlayerSurvival(id)
	unloaded := m.progress.Unload(id, func(recs []progress.Record) {
		for _, r := range recs {
			m.writer.Save(r)
		}
	})
	if sess != nil {
		m.players.UnregisterSession(sess)
	}
	if !unloaded {
		return ErrPlayerOffline
	}

	if err := m.flush(ctx); err != nil {
		m.logger.Warn("flush on disconnect", zap.Stringer("player_id", id), zap.Error(err))
	}
	if m.hooks != nil {
		_, _ = m.hooks.Trigger(ctx, hook.OnPlayerLogout, hook.QuestEvent{PlayerID: id})
	}
	m.logger.Info("player disconnected", zap.Stringer("player_id", id), zap.Int("timers_cancelled", timers))
	return nil
}

// flush waits for every queued write, bounded by FlushTimeout.
func (m *Manager) flush(ctx context.Context) error {
	if m.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.FlushTimeout)
		defer cancel()
	}
	return m.writer.Flush(ctx)
}

// UpdateState stores the live state used by SURVIVE timers.
func (m *Manager) UpdateState(id uuid.UUID, st quest.PlayerState) bool {
	return m.players.UpdateState(id, st)
}
