package quest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type collectMatcher struct {
	base
	items allowList
}

func newCollectMatcher(q *Quest, _ Env) Matcher {
	return &collectMatcher{base: base{q}, items: newAllowList(q.TypeConfig, "materials", "any-item")}
}

func (m *collectMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(ItemCollected)
	if !ok || e.Player != player || e.Amount <= 0 {
		return 0
	}
	if m.items.allows(e.Material) {
		return e.Amount
	}
	return 0
}

func (m *collectMatcher) Describe() string {
	return m.items.describe("Collect", m.target(), "of any items")
}

type killMobMatcher struct {
	base
	mobs allowList
}

func newKillMobMatcher(q *Quest, _ Env) Matcher {
	return &killMobMatcher{base: base{q}, mobs: newAllowList(q.TypeConfig, "mobs", "any-mob")}
}

// EntityTypePlayer marks kills of players, which never count as mob kills.
const EntityTypePlayer = "PLAYER"

func (m *killMobMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(EntityKilled)
	if !ok || e.Killer != player {
		return 0
	}
	if e.Victim != uuid.Nil || strings.EqualFold(e.EntityType, EntityTypePlayer) {
		return 0
	}
	if m.mobs.allows(e.EntityType) {
		return 1
	}
	return 0
}

func (m *killMobMatcher) Describe() string {
	return m.mobs.describe("Kill", m.target(), "mobs")
}

type fishMatcher struct {
	base
	items allowList
}

func newFishMatcher(q *Quest, _ Env) Matcher {
	return &fishMatcher{base: base{q}, items: newAllowList(q.TypeConfig, "items", "any-fish")}
}

func (m *fishMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(FishCaught)
	if !ok || e.Player != player || !e.Caught || e.Amount <= 0 {
		return 0
	}
	if m.items.allows(e.Item) {
		return e.Amount
	}
	return 0
}

func (m *fishMatcher) Describe() string {
	return m.items.describe("Fish", m.target(), "items")
}

type breakBlockMatcher struct {
	base
	blocks allowList
}

func newBreakBlockMatcher(q *Quest, _ Env) Matcher {
	return &breakBlockMatcher{base: base{q}, blocks: newAllowList(q.TypeConfig, "blocks", "any-block")}
}

func (m *breakBlockMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(BlockBroken)
	if !ok || e.Player != player {
		return 0
	}
	if m.blocks.allows(e.Material) {
		return 1
	}
	return 0
}

func (m *breakBlockMatcher) Describe() string {
	return m.blocks.describe("Break", m.target(), "blocks")
}

type killPlayerMatcher struct{ base }

func newKillPlayerMatcher(q *Quest, _ Env) Matcher { return &killPlayerMatcher{base{q}} }

func (m *killPlayerMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(EntityKilled)
	if !ok || e.Killer != player || e.Victim == uuid.Nil || e.Victim == player {
		return 0
	}
	return 1
}

func (m *killPlayerMatcher) Describe() string {
	return fmt.Sprintf("Kill %d players", m.target())
}

// EntityTypeVillager is the entity and merchant type villager quests count.
const EntityTypeVillager = "VILLAGER"

type villagerInteractMatcher struct{ base }

func newVillagerInteractMatcher(q *Quest, _ Env) Matcher { return &villagerInteractMatcher{base{q}} }

func (m *villagerInteractMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(EntityInteracted)
	if !ok || e.Player != player || !strings.EqualFold(e.EntityType, EntityTypeVillager) {
		return 0
	}
	return 1
}

func (m *villagerInteractMatcher) Describe() string {
	return fmt.Sprintf("Interact with %d villagers", m.target())
}

type villagerTradeMatcher struct{ base }

func newVillagerTradeMatcher(q *Quest, _ Env) Matcher { return &villagerTradeMatcher{base{q}} }

func (m *villagerTradeMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(TradeCompleted)
	if !ok || e.Player != player || !strings.EqualFold(e.MerchantType, EntityTypeVillager) {
		return 0
	}
	return 1
}

func (m *villagerTradeMatcher) Describe() string {
	return fmt.Sprintf("Complete %d trades with villagers", m.target())
}
