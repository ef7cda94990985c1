package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/game/notify"
	"github.com/kasuganosora/questengine/game/quest"
	"go.uber.org/zap"
)

// CommandChannel carries reward commands for the game server to execute.
const CommandChannel = "quest:commands"

// Applier grants a quest reward to a player.
type Applier interface {
	Apply(ctx context.Context, r quest.Reward, player uuid.UUID, name string) error
}

// Command is the payload published on CommandChannel.
type Command struct {
	PlayerID uuid.UUID `json:"player_id"`
	Player   string    `json:"player"`
	Command  string    `json:"command"`
	At       time.Time `json:"at"`
}

// CommandApplier publishes each reward command with the player's name
// substituted, then sends the reward message.
type CommandApplier struct {
	ps     cache.PubSub
	sink   notify.Sink
	logger *zap.Logger
}

func NewCommandApplier(ps cache.PubSub, sink notify.Sink, logger *zap.Logger) *CommandApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandApplier{ps: ps, sink: sink, logger: logger}
}

// Substitute replaces the player placeholders in cmd.
func Substitute(cmd, name string) string {
	return strings.NewReplacer("<player>", name, "{player}", name, "%player%", name).Replace(cmd)
}

func (a *CommandApplier) Apply(ctx context.Context, r quest.Reward, player uuid.UUID, name string) error {
	now := time.Now()
	for _, c := range r.Commands {
		c = strings.TrimPrefix(strings.TrimSpace(Substitute(c, name)), "/")
		if c == "" {
			continue
		}
		raw, err := json.Marshal(Command{PlayerID: player, Player: name, Command: c, At: now})
		if err != nil {
			return err
		}
		if err := a.ps.Publish(ctx, CommandChannel, string(raw)); err != nil {
			return fmt.Errorf("publish reward command: %w", err)
		}
		a.logger.Debug("reward command published",
			zap.Stringer("player_id", player), zap.String("command", c))
	}
	if r.Message != "" && a.sink != nil {
		a.sink.Notify(ctx, player, notify.KeyRewardMessage, map[string]string{
			"message": Substitute(r.Message, name),
			"player":  name,
		})
	}
	return nil
}
