package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/cache"
	"go.uber.org/zap"
)

// Message keys sent to players.
const (
	KeyQuestAccepted      = "quest-accepted"
	KeyQuestProgress      = "quest-progress"
	KeyQuestCompleted     = "quest-completed"
	KeyQuestExpired       = "quest-expired"
	KeyRewardClaimed      = "reward-claimed"
	KeyRewardMessage      = "reward-message"
	KeyQuestAbandoned     = "quest-abandoned"
	KeyQuestTimeLeft      = "quest-time-left"
	KeyQuestNotFound      = "quest-not-found"
	KeyQuestAlreadyActive = "quest-already-active"
	KeyQuestLimit         = "quest-limit-reached"
	KeyQuestOnCooldown    = "quest-on-cooldown"
	KeyQuestNotActive     = "quest-not-active"
	KeyNoPermission       = "no-permission"
)

var defaultMessages = map[string]string{
	KeyQuestAccepted:      "Quest accepted: {quest}",
	KeyQuestProgress:      "{quest}: {current}/{target}",
	KeyQuestCompleted:     "Quest completed: {quest}! Claim your reward.",
	KeyQuestExpired:       "Quest expired: {quest}",
	KeyRewardClaimed:      "Reward claimed for {quest}",
	KeyRewardMessage:      "{message}",
	KeyQuestAbandoned:     "Quest abandoned: {quest}",
	KeyQuestTimeLeft:      "Time left: {time}",
	KeyQuestNotFound:      "Quest not found.",
	KeyQuestAlreadyActive: "You already have this quest.",
	KeyQuestLimit:         "You have reached your active quest limit.",
	KeyQuestOnCooldown:    "This quest is on cooldown.",
	KeyQuestNotActive:     "That quest is not active.",
	KeyNoPermission:       "You do not have permission.",
}

// Sink delivers a keyed message to a player.
type Sink interface {
	Notify(ctx context.Context, player uuid.UUID, key string, placeholders map[string]string)
}

// Channel returns the pub/sub channel carrying a player's notifications.
func Channel(player uuid.UUID) string { return "quest:notify:" + player.String() }

// Notification is the JSON payload published per message.
type Notification struct {
	PlayerID     uuid.UUID         `json:"player_id"`
	Key          string            `json:"key"`
	Text         string            `json:"text"`
	Placeholders map[string]string `json:"placeholders,omitempty"`
	At           time.Time         `json:"at"`
}

// Messages renders templates and publishes the result.
type Messages struct {
	mu        sync.RWMutex
	templates map[string]string
	ps        cache.PubSub
	logger    *zap.Logger
}

// NewMessages starts from the built-in templates and applies overrides.
func NewMessages(ps cache.PubSub, overrides map[string]string, logger *zap.Logger) *Messages {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Messages{ps: ps, logger: logger}
	m.SetOverrides(overrides)
	return m
}

// SetOverrides resets templates to the defaults plus overrides.
func (m *Messages) SetOverrides(overrides map[string]string) {
	t := make(map[string]string, len(defaultMessages)+len(overrides))
	for k, v := range defaultMessages {
		t[k] = v
	}
	for k, v := range overrides {
		t[strings.ToLower(k)] = v
	}
	m.mu.Lock()
	m.templates = t
	m.mu.Unlock()
}

// Render substitutes {name} placeholders into the template for key.
func (m *Messages) Render(key string, placeholders map[string]string) string {
	m.mu.RLock()
	tpl, ok := m.templates[key]
	m.mu.RUnlock()
	if !ok {
		return "Missing message: " + key
	}
	if len(placeholders) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(placeholders)*2)
	for k, v := range placeholders {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

func (m *Messages) Notify(ctx context.Context, player uuid.UUID, key string, placeholders map[string]string) {
	n := Notification{
		PlayerID:     player,
		Key:          key,
		Text:         m.Render(key, placeholders),
		Placeholders: placeholders,
		At:           time.Now(),
	}
	raw, err := json.Marshal(n)
	if err != nil {
		m.logger.Error("marshal notification", zap.Error(err))
		return
	}
	if err := m.ps.Publish(ctx, Channel(player), string(raw)); err != nil {
		m.logger.Warn("publish notification failed",
			zap.Stringer("player_id", player),
			zap.String("key", key),
			zap.Error(err))
	}
}
