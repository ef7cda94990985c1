package quest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SurviveState is the per-record scratch data of a SURVIVE quest.
type SurviveState struct {
	Seconds int `json:"seconds_survived"`
}

// SurviveRule holds the conditions a player must keep satisfying.
type SurviveRule struct {
	QuestID      string
	Target       int
	Required     int // seconds
	MinHealth    float64
	MinFoodLevel int
	Biomes       map[string]struct{}
	Area         *Location
	AreaRadius   float64
}

// SurviveTick is the outcome of one evaluation.
type SurviveTick struct {
	Seconds  int
	Progress int
	Done     bool
}

func newSurviveRule(q *Quest) *SurviveRule {
	c := q.TypeConfig
	r := &SurviveRule{
		QuestID:      q.ID,
		Target:       q.Target,
		Required:     c.Int("time-seconds", 300),
		MinHealth:    c.Float("min-health", 1.0),
		MinFoodLevel: c.Int("min-food-level", 0),
		Biomes:       c.UpperSet("biomes"),
	}
	if r.Required <= 0 {
		r.Required = 1
	}
	if loc := c.Sub("location"); loc != nil {
		r.Area = &Location{
			World: loc.String("world", ""),
			X:     loc.Float("x", 0),
			Y:     loc.Float("y", 0),
			Z:     loc.Float("z", 0),
		}
		r.AreaRadius = loc.Float("radius", 50)
	}
	return r
}

// Holds reports whether st satisfies every condition.
func (r *SurviveRule) Holds(st PlayerState) bool {
	if st.Health < r.MinHealth || st.FoodLevel < r.MinFoodLevel {
		return false
	}
	if len(r.Biomes) > 0 {
		if _, ok := r.Biomes[strings.ToUpper(st.Biome)]; !ok {
			return false
		}
	}
	if r.Area != nil {
		area := *r.Area
		if area.World == "" {
			area.World = st.Location.World
		}
		if st.Location.Distance(area) > r.AreaRadius {
			return false
		}
	}
	return true
}

// Tick advances the survival clock by one second. Breaking a condition
// restarts the clock; progress is derived from the clock and capped at target.
func (r *SurviveRule) Tick(st PlayerState, seconds int) SurviveTick {
	if !r.Holds(st) {
		return SurviveTick{}
	}
	seconds++
	if seconds >= r.Required {
		return SurviveTick{Seconds: seconds, Progress: r.Target, Done: true}
	}
	p := seconds * r.Target / r.Required
	if p > r.Target {
		p = r.Target
	}
	return SurviveTick{Seconds: seconds, Progress: p}
}

func (r *SurviveRule) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Survive for %d seconds", r.Required)
	if r.MinHealth > 1.0 {
		fmt.Fprintf(&b, " with at least %s health", formatNumber(r.MinHealth))
	}
	if r.MinFoodLevel > 0 {
		fmt.Fprintf(&b, " with at least %d food level", r.MinFoodLevel)
	}
	if len(r.Biomes) > 0 {
		b.WriteString(" in " + prettyList(r.Biomes, " or "))
	}
	if r.Area != nil {
		fmt.Fprintf(&b, " near %.0f, %.0f, %.0f", r.Area.X, r.Area.Y, r.Area.Z)
	}
	return b.String()
}

type surviveMatcher struct {
	base
	rule   *SurviveRule
	timers SurvivalTimers
}

func newSurviveMatcher(q *Quest, env Env) Matcher {
	return &surviveMatcher{base: base{q}, rule: newSurviveRule(q), timers: env.Timers}
}

// CheckProgress is always zero; progress comes from the timer.
func (m *surviveMatcher) CheckProgress(uuid.UUID, Event) int { return 0 }

func (m *surviveMatcher) Describe() string { return m.rule.Describe() }

func (m *surviveMatcher) OnAccept(player uuid.UUID) { m.start(player) }
func (m *surviveMatcher) OnResume(player uuid.UUID) { m.start(player) }
func (m *surviveMatcher) OnComplete(player uuid.UUID) { m.stop(player) }
func (m *surviveMatcher) OnExpire(player uuid.UUID) { m.stop(player) }

func (m *surviveMatcher) start(player uuid.UUID) {
	if m.timers != nil {
		m.timers.StartSurvival(player, m.quest.ID, m.rule)
	}
}

func (m *surviveMatcher) stop(player uuid.UUID) {
	if m.timers != nil {
		m.timers.StopSurvival(player, m.quest.ID)
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
