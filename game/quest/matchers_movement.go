package quest

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

type visitLocationMatcher struct {
	base
	biomes  map[string]struct{}
	world   string
	x, y, z float64
	radius  float64
}

// ignoreY in the y coordinate matches the location at any height.
const ignoreY = -1

func newVisitLocationMatcher(q *Quest, _ Env) Matcher {
	c := q.TypeConfig
	return &visitLocationMatcher{
		base:   base{q},
		biomes: c.UpperSet("biomes"),
		world:  c.String("world", ""),
		x:      c.Float("x", 0),
		y:      c.Float("y", ignoreY),
		z:      c.Float("z", 0),
		radius: c.Float("radius", 10),
	}
}

func (m *visitLocationMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(PlayerMoved)
	if !ok || e.Player != player || e.From.SameBlock(e.To) {
		return 0
	}
	if len(m.biomes) > 0 {
		if _, ok := m.biomes[strings.ToUpper(e.ToBiome)]; ok {
			return 1
		}
		return 0
	}
	if m.world != "" && m.world != e.To.World {
		return 0
	}
	point := Location{World: e.To.World, X: m.x, Y: m.y, Z: m.z}
	if m.y == ignoreY {
		point.Y = e.To.Y
	}
	if e.To.Distance(point) <= m.radius {
		return 1
	}
	return 0
}

func (m *visitLocationMatcher) Describe() string {
	if len(m.biomes) == 1 {
		return fmt.Sprintf("Visit the %s biome", onlyName(m.biomes))
	}
	if len(m.biomes) > 1 {
		return "Visit one of these biomes: " + prettyList(m.biomes, ", ")
	}
	world := ""
	if m.world != "" {
		world = " in " + m.world
	}
	if m.y == ignoreY {
		return fmt.Sprintf("Visit coordinates %.0f, %.0f%s (within %.0f blocks)", m.x, m.z, world, m.radius)
	}
	return fmt.Sprintf("Visit coordinates %.0f, %.0f, %.0f%s (within %.0f blocks)", m.x, m.y, m.z, world, m.radius)
}

type reachAltitudeMatcher struct {
	base
	altitude float64
}

func newReachAltitudeMatcher(q *Quest, _ Env) Matcher {
	return &reachAltitudeMatcher{base: base{q}, altitude: q.TypeConfig.Float("altitude", 200)}
}

func (m *reachAltitudeMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(PlayerMoved)
	if !ok || e.Player != player || e.To.Y < m.altitude {
		return 0
	}
	return 1
}

func (m *reachAltitudeMatcher) Describe() string {
	return fmt.Sprintf("Reach altitude Y=%s", formatNumber(m.altitude))
}

// structureProximity is how close a located structure must be to count as found.
const structureProximity = 50.0

type findStructureMatcher struct {
	base
	structures []string
	radius     int
	locator    StructureLocator
}

func newFindStructureMatcher(q *Quest, env Env) Matcher {
	var names []string
	for _, s := range q.TypeConfig.Strings("structures") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			names = append(names, s)
		}
	}
	return &findStructureMatcher{
		base:       base{q},
		structures: names,
		radius:     q.TypeConfig.Int("search-radius", 100),
		locator:    env.Structures,
	}
}

func (m *findStructureMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(PlayerMoved)
	if !ok || e.Player != player || m.locator == nil || e.From.SameChunk(e.To) {
		return 0
	}
	for _, s := range m.structures {
		loc, found := m.locator.Nearest(e.To.World, e.To, s, m.radius)
		if found && loc.Distance(e.To) <= structureProximity {
			return 1
		}
	}
	return 0
}

func (m *findStructureMatcher) Describe() string {
	if len(m.structures) == 1 {
		return "Find a " + prettyName(m.structures[0])
	}
	names := make([]string, len(m.structures))
	for i, s := range m.structures {
		names[i] = prettyName(s)
	}
	return "Find one of these structures: " + strings.Join(names, ", ")
}

// Travel modes.
const (
	TravelWalk = "WALK"
	TravelSwim = "SWIM"
	TravelFly  = "FLY"
	TravelAny  = "ANY"
)

// travelMatcher credits distance in hundredths of a block per step.
type travelMatcher struct {
	base
	mode     string
	distance float64
}

func newTravelMatcher(q *Quest, _ Env) Matcher {
	mode := strings.ToUpper(q.TypeConfig.String("type", TravelAny))
	switch mode {
	case TravelWalk, TravelSwim, TravelFly, TravelAny:
	default:
		mode = TravelAny
	}
	return &travelMatcher{
		base:     base{q},
		mode:     mode,
		distance: q.TypeConfig.Float("distance", float64(q.Target)),
	}
}

func (m *travelMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(PlayerMoved)
	if !ok || e.Player != player || !m.modeMatches(e) {
		return 0
	}
	d := e.From.Distance(e.To)
	if math.IsInf(d, 0) {
		return 0
	}
	return int(d * 100)
}

func (m *travelMatcher) modeMatches(e PlayerMoved) bool {
	switch m.mode {
	case TravelWalk:
		return !e.Swimming && !e.Gliding && !e.Flying
	case TravelSwim:
		return e.Swimming
	case TravelFly:
		return e.Gliding || e.Flying
	default:
		return true
	}
}

func (m *travelMatcher) Describe() string {
	verb := map[string]string{TravelWalk: "Walk", TravelSwim: "Swim", TravelFly: "Fly"}[m.mode]
	if verb == "" {
		verb = "Travel"
	}
	return fmt.Sprintf("%s %d blocks", verb, int(m.distance))
}

// jumpMatcher counts a step as a jump when the player left the ground and
// rose by a plausible jump height. Stairs and slabs can still be miscounted.
type jumpMatcher struct{ base }

func newJumpMatcher(q *Quest, _ Env) Matcher { return &jumpMatcher{base{q}} }

func (m *jumpMatcher) CheckProgress(player uuid.UUID, ev Event) int {
	e, ok := ev.(PlayerMoved)
	if !ok || e.Player != player || !e.OnGround {
		return 0
	}
	if dy := e.To.Y - e.From.Y; dy > 0.1 && dy < 2.0 {
		return 1
	}
	return 0
}

func (m *jumpMatcher) Describe() string {
	return fmt.Sprintf("Jump %d times", m.target())
}
