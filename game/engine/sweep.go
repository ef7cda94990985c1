package engine

import (
	"context"

	"github.com/kasuganosora/questengine/game/notify"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/plugin/hook"
	"go.uber.org/zap"
)

// SweepExpired removes every loaded record whose expiry has passed,
// whatever its state, and returns how many were removed.
func (m *Manager) SweepExpired(ctx context.Context) int {
	removed := 0
	var fx effects
	m.progress.Each(func(s *progress.Slot) {
		now := m.now()
		for _, r := range s.All() {
			if !r.Expired(now) {
				continue
			}
			snap := r.Clone()
			q, known := m.catalog.Get(r.QuestID)
			if known {
				if mt, ok := m.matcherFor(r, q); ok {
					m.safely("OnExpire", r.PlayerID, q.ID, func() { mt.OnExpire(r.PlayerID) })
				}
			}
			m.drop(s, r)
			removed++

			name := snap.QuestID
			if known {
				name = q.Name
			}
			fx.add(func() {
				if m.players.IsOnline(snap.PlayerID) {
					m.notify(ctx, snap.PlayerID, notify.KeyQuestExpired, map[string]string{"quest": name, "id": snap.QuestID})
				}
				_ = m.trigger(ctx, hook.OnQuestExpire, &snap)
			})
		}
	})
	fx.run()
	pruned := m.cooldowns.prune(m.now())
	if removed > 0 || pruned > 0 {
		m.logger.Info("quest expiration sweep",
			zap.Int("expired", removed),
			zap.Int("cooldowns_pruned", pruned))
	}
	return removed
}
