package quest

import (
	"fmt"
	"strings"
	"time"
)

// Type is the kind of gameplay a quest tracks.
type Type string

const (
	TypeCollect          Type = "COLLECT"
	TypeKillMob          Type = "KILL_MOB"
	TypeVisitLocation    Type = "VISIT_LOCATION"
	TypeFish             Type = "FISH"
	TypeBreakBlock       Type = "BREAK_BLOCK"
	TypeKillPlayer       Type = "KILL_PLAYER"
	TypeReachAltitude    Type = "REACH_ALTITUDE"
	TypeFindStructure    Type = "FIND_STRUCTURE"
	TypeVillagerInteract Type = "VILLAGER_INTERACT"
	TypeVillagerTrade    Type = "VILLAGER_TRADE"
	TypeSurvive          Type = "SURVIVE"
	TypeTravel           Type = "TRAVEL"
	TypeJump             Type = "JUMP"
)

var displayNames = map[Type]string{
	TypeCollect:          "Collect Items",
	TypeKillMob:          "Kill Mobs",
	TypeVisitLocation:    "Visit Location",
	TypeFish:             "Fish Items",
	TypeBreakBlock:       "Break Blocks",
	TypeKillPlayer:       "Kill Players",
	TypeReachAltitude:    "Reach Altitude",
	TypeFindStructure:    "Find Structure",
	TypeVillagerInteract: "Interact with Villager",
	TypeVillagerTrade:    "Trade with Villager",
	TypeSurvive:          "Survive",
	TypeTravel:           "Travel Distance",
	TypeJump:             "Jump",
}

// Types returns every known quest type in declaration order.
func Types() []Type {
	return []Type{
		TypeCollect, TypeKillMob, TypeVisitLocation, TypeFish, TypeBreakBlock,
		TypeKillPlayer, TypeReachAltitude, TypeFindStructure, TypeVillagerInteract,
		TypeVillagerTrade, TypeSurvive, TypeTravel, TypeJump,
	}
}

// ParseType resolves a case-insensitive type name.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := displayNames[t]
	return t, ok
}

func (t Type) DisplayName() string {
	if n, ok := displayNames[t]; ok {
		return n
	}
	return string(t)
}

// Reward is what a player receives on claim.
type Reward struct {
	Commands []string `json:"commands,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Quest is an immutable catalog entry.
type Quest struct {
	ID          string
	Name        string
	Description string
	Lore        []string
	DisplayItem string
	Type        Type
	Target      int
	Reward      Reward
	Permission  string        // empty = unrestricted
	TimeLimit   time.Duration // 0 = unlimited
	Repeatable  bool
	Cooldown    time.Duration
	TypeConfig  TypeConfig
}

func (q *Quest) HasTimeLimit() bool { return q.TimeLimit > 0 }
func (q *Quest) HasCooldown() bool  { return q.Cooldown > 0 }

// Validate reports the first structural problem with q.
func (q *Quest) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("empty id")
	}
	if _, ok := displayNames[q.Type]; !ok {
		return fmt.Errorf("unknown type %q", q.Type)
	}
	if q.Target <= 0 {
		return fmt.Errorf("target must be positive, got %d", q.Target)
	}
	if q.TimeLimit < 0 || q.Cooldown < 0 {
		return fmt.Errorf("negative time-limit or cooldown")
	}
	return nil
}

// ConfigError reports a catalog entry that could not be loaded.
type ConfigError struct {
	ID  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("quest %q: %v", e.ID, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
