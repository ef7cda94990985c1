package quest

import (
	"math"

	"github.com/google/uuid"
)

// Location is a point in a named world.
type Location struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

func (l Location) BlockX() int { return int(math.Floor(l.X)) }
func (l Location) BlockY() int { return int(math.Floor(l.Y)) }
func (l Location) BlockZ() int { return int(math.Floor(l.Z)) }

// SameBlock reports whether both points fall in the same block.
func (l Location) SameBlock(o Location) bool {
	return l.World == o.World && l.BlockX() == o.BlockX() && l.BlockY() == o.BlockY() && l.BlockZ() == o.BlockZ()
}

// SameChunk reports whether both points fall in the same 16x16 column.
func (l Location) SameChunk(o Location) bool {
	return l.World == o.World && l.BlockX()>>4 == o.BlockX()>>4 && l.BlockZ()>>4 == o.BlockZ()>>4
}

// Distance is the euclidean distance; points in different worlds are
// infinitely far apart.
func (l Location) Distance(o Location) float64 {
	if l.World != o.World {
		return math.Inf(1)
	}
	dx, dy, dz := l.X-o.X, l.Y-o.Y, l.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// PlayerState is the live condition of a connected player, as last reported
// by the game server.
type PlayerState struct {
	Health    float64  `json:"health"`
	FoodLevel int      `json:"food_level"`
	Location  Location `json:"location"`
	Biome     string   `json:"biome"`
}

// Event is a gameplay occurrence attributed to one player.
type Event interface {
	Actor() uuid.UUID
}

// Collection sources.
const (
	SourcePickup  = "pickup"
	SourceCraft   = "craft"
	SourceFurnace = "furnace"
)

type ItemCollected struct {
	Player   uuid.UUID `json:"player"`
	Material string    `json:"material"`
	Amount   int       `json:"amount"`
	Source   string    `json:"source"`
}

func (e ItemCollected) Actor() uuid.UUID { return e.Player }

// EntityKilled is credited to Killer. Victim is set only when a player died.
type EntityKilled struct {
	Killer     uuid.UUID `json:"killer"`
	EntityType string    `json:"entity_type"`
	Victim     uuid.UUID `json:"victim"`
}

func (e EntityKilled) Actor() uuid.UUID { return e.Killer }

type BlockBroken struct {
	Player   uuid.UUID `json:"player"`
	Material string    `json:"material"`
}

func (e BlockBroken) Actor() uuid.UUID { return e.Player }

// FishCaught is emitted for every fishing state change; only Caught counts.
type FishCaught struct {
	Player uuid.UUID `json:"player"`
	Item   string    `json:"item"`
	Amount int       `json:"amount"`
	Caught bool      `json:"caught"`
}

func (e FishCaught) Actor() uuid.UUID { return e.Player }

// PlayerMoved carries the movement flags as they were at the start of the step.
type PlayerMoved struct {
	Player   uuid.UUID `json:"player"`
	From     Location  `json:"from"`
	To       Location  `json:"to"`
	ToBiome  string    `json:"to_biome"`
	Swimming bool      `json:"swimming"`
	Gliding  bool      `json:"gliding"`
	Flying   bool      `json:"flying"`
	OnGround bool      `json:"on_ground"`
}

func (e PlayerMoved) Actor() uuid.UUID { return e.Player }

type EntityInteracted struct {
	Player     uuid.UUID `json:"player"`
	EntityType string    `json:"entity_type"`
}

func (e EntityInteracted) Actor() uuid.UUID { return e.Player }

type TradeCompleted struct {
	Player       uuid.UUID `json:"player"`
	MerchantType string    `json:"merchant_type"`
}

func (e TradeCompleted) Actor() uuid.UUID { return e.Player }
