package hook

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LifecycleEvents lists every quest lifecycle event in firing order.
var LifecycleEvents = []string{
	BeforeQuestAccept, OnQuestAccept, OnQuestProgress, OnQuestComplete,
	OnQuestClaim, OnQuestExpire, OnQuestAbandon, OnPlayerLogin, OnPlayerLogout,
}

const (
	auditHook    = "audit_log"
	disabledHook = "disabled_quests"
)

// RegisterAuditLog logs every lifecycle event except progress ticks. It
// runs last so earlier handlers can still veto.
func RegisterAuditLog(hc *HookCenter, logger *zap.Logger) {
	for _, ev := range LifecycleEvents {
		if ev == OnQuestProgress {
			continue
		}
		hc.Register(ev, 1000, auditHook, func(_ context.Context, event string, data interface{}) (interface{}, error) {
			if qe, ok := data.(QuestEvent); ok {
				logger.Info("quest event",
					zap.String("event", event),
					zap.Stringer("player_id", qe.PlayerID),
					zap.String("quest_id", qe.QuestID),
					zap.Int("progress", qe.Progress),
					zap.Int("target", qe.Target))
			}
			return data, nil
		})
	}
}

// RegisterDisabled vetoes acceptance of the listed quest ids. Calling it
// again replaces the previous list.
func RegisterDisabled(hc *HookCenter, ids []string) {
	hc.Unregister(BeforeQuestAccept, disabledHook)
	if len(ids) == 0 {
		return
	}
	blocked := make(map[string]bool, len(ids))
	for _, id := range ids {
		blocked[strings.ToLower(strings.TrimSpace(id))] = true
	}
	hc.Register(BeforeQuestAccept, 0, disabledHook, func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		if qe, ok := data.(QuestEvent); ok && blocked[strings.ToLower(qe.QuestID)] {
			return data, ErrInterrupt
		}
		return data, nil
	})
}
