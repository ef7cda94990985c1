package quest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Matcher decides how much an event advances one quest for one player.
// CheckProgress is pure and never negative.
type Matcher interface {
	Type() Type
	CheckProgress(player uuid.UUID, ev Event) int
	Describe() string

	OnAccept(player uuid.UUID)
	// OnResume runs when an active record is loaded for a reconnecting player.
	OnResume(player uuid.UUID)
	OnComplete(player uuid.UUID)
	OnExpire(player uuid.UUID)
}

// StructureLocator finds generated structures near a point.
type StructureLocator interface {
	Nearest(world string, at Location, structure string, radius int) (Location, bool)
}

// SurvivalTimers runs the once-per-second evaluation of SURVIVE quests.
type SurvivalTimers interface {
	StartSurvival(player uuid.UUID, questID string, rule *SurviveRule)
	StopSurvival(player uuid.UUID, questID string)
}

// Env carries the world collaborators matchers may consult.
type Env struct {
	Structures StructureLocator
	Timers     SurvivalTimers
}

// base provides the quest reference and no-op lifecycle hooks.
type base struct {
	quest *Quest
}

func (b base) Type() Type { return b.quest.Type }
func (b base) OnAccept(uuid.UUID) {}
func (b base) OnResume(uuid.UUID) {}
func (b base) OnComplete(uuid.UUID) {}
func (b base) OnExpire(uuid.UUID) {}
func (b base) target() int { return b.quest.Target }
func (b base) cfg() TypeConfig { return b.quest.TypeConfig }

type factory func(q *Quest, env Env) Matcher

var factories = map[Type]factory{
	TypeCollect:          newCollectMatcher,
	TypeKillMob:          newKillMobMatcher,
	TypeVisitLocation:    newVisitLocationMatcher,
	TypeFish:             newFishMatcher,
	TypeBreakBlock:       newBreakBlockMatcher,
	TypeKillPlayer:       newKillPlayerMatcher,
	TypeReachAltitude:    newReachAltitudeMatcher,
	TypeFindStructure:    newFindStructureMatcher,
	TypeVillagerInteract: newVillagerInteractMatcher,
	TypeVillagerTrade:    newVillagerTradeMatcher,
	TypeSurvive:          newSurviveMatcher,
	TypeTravel:           newTravelMatcher,
	TypeJump:             newJumpMatcher,
}

// NewMatcher builds the matcher for q's type.
func NewMatcher(q *Quest, env Env) (Matcher, error) {
	f, ok := factories[q.Type]
	if !ok {
		return nil, fmt.Errorf("no matcher for quest type %q", q.Type)
	}
	return f(q, env), nil
}

// prettyName turns OAK_LOG into "oak log".
func prettyName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", " ")
}

// prettyList renders a set sorted, joined by sep.
func prettyList(set map[string]struct{}, sep string) string {
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, prettyName(k))
	}
	sort.Strings(names)
	return strings.Join(names, sep)
}

func onlyName(set map[string]struct{}) string {
	for k := range set {
		return prettyName(k)
	}
	return ""
}

// allowList is a case-insensitive set where empty or "any" matches everything.
type allowList struct {
	set map[string]struct{}
	any bool
}

func newAllowList(cfg TypeConfig, listKey, anyKey string) allowList {
	return allowList{set: cfg.UpperSet(listKey), any: cfg.Bool(anyKey, false)}
}

func (a allowList) matchesAll() bool { return a.any || len(a.set) == 0 }

func (a allowList) allows(name string) bool {
	if a.matchesAll() {
		return true
	}
	_, ok := a.set[strings.ToUpper(name)]
	return ok
}

// describe renders "<verb> <n> <all>" / "<verb> <n> <one>" / "<verb> <n> of: a, b".
func (a allowList) describe(verb string, n int, all string) string {
	switch {
	case a.matchesAll():
		return fmt.Sprintf("%s %d %s", verb, n, all)
	case len(a.set) == 1:
		return fmt.Sprintf("%s %d %s", verb, n, onlyName(a.set))
	default:
		return fmt.Sprintf("%s %d of: %s", verb, n, prettyList(a.set, ", "))
	}
}
