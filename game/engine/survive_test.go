package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/config"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func surviveQuest() *quest.Quest {
	return &quest.Quest{
		ID: "survive_night", Name: "Survive", Type: quest.TypeSurvive, Target: 10, Repeatable: true,
		TypeConfig: quest.TypeConfig{"time-seconds": 10, "min-health": 5},
	}
}

// tick runs one evaluation of the current timer, as the scheduler would.
func (h *harness) tick(t *testing.T, id uuid.UUID, questID string) bool {
	t.Helper()
	h.m.survMu.Lock()
	cur, ok := h.m.survivals[surviveTask(id, questID)]
	h.m.survMu.Unlock()
	require.True(t, ok, "no survival timer")
	return h.m.surviveTick(id, questID, cur.rule, cur.gen)
}

func (h *harness) setHealth(id uuid.UUID, health float64) {
	h.m.UpdateState(id, quest.PlayerState{Health: health, FoodLevel: 20})
}

func TestSurvive_ResetOnConditionBreak(t *testing.T) {
	h := newHarness(t, []*quest.Quest{surviveQuest()})
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "survive_night"))
	assert.True(t, h.sched.Has(surviveTask(id, "survive_night")))

	h.setHealth(id, 20)
	for i := 0; i < 4; i++ {
		require.True(t, h.tick(t, id, "survive_night"))
	}
	r, _ := h.record(id, "survive_night")
	assert.Equal(t, 4, r.Progress)
	assert.Equal(t, 4, r.Survive.Seconds)

	h.setHealth(id, 3)
	require.True(t, h.tick(t, id, "survive_night"))
	r, _ = h.record(id, "survive_night")
	assert.Zero(t, r.Survive.Seconds)
	assert.Equal(t, 4, r.Progress, "progress does not roll back")

	h.setHealth(id, 20)
	for i := 0; i < 9; i++ {
		require.True(t, h.tick(t, id, "survive_night"))
	}
	r, _ = h.record(id, "survive_night")
	assert.False(t, r.Completed)
	assert.Equal(t, 9, r.Progress)

	assert.False(t, h.tick(t, id, "survive_night"))
	r, _ = h.record(id, "survive_night")
	assert.True(t, r.Completed)
	assert.Equal(t, 10, r.Progress)
	assert.False(t, h.sched.Has(surviveTask(id, "survive_night")))
}

func TestSurvive_NoTimerAccumulation(t *testing.T) {
	h := newHarness(t, []*quest.Quest{surviveQuest()})
	ctx := context.Background()
	id := h.connect(t)
	for i := 0; i < 20; i++ {
		require.NoError(t, h.m.Accept(ctx, id, "survive_night"))
		require.NoError(t, h.m.Abandon(ctx, id, "survive_night"))
	}
	assert.Empty(t, h.sched.ListTickers())

	require.NoError(t, h.m.Accept(ctx, id, "survive_night"))
	assert.Equal(t, []string{surviveTask(id, "survive_night")}, h.sched.ListTickers())
}

func TestSurvive_StaleTimerStops(t *testing.T) {
	h := newHarness(t, []*quest.Quest{surviveQuest()})
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "survive_night"))

	h.m.survMu.Lock()
	old := h.m.survivals[surviveTask(id, "survive_night")]
	h.m.survMu.Unlock()

	_, err := h.m.Reset(ctx, id, "survive_night")
	require.NoError(t, err)
	h.setHealth(id, 20)
	assert.False(t, h.m.surviveTick(id, "survive_night", old.rule, old.gen))
	assert.True(t, h.tick(t, id, "survive_night"))
}

func TestSurvive_StopsWhenOffline(t *testing.T) {
	h := newHarness(t, []*quest.Quest{surviveQuest()})
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "survive_night"))

	h.m.survMu.Lock()
	cur := h.m.survivals[surviveTask(id, "survive_night")]
	h.m.survMu.Unlock()

	require.NoError(t, h.m.Disconnect(ctx, id))
	assert.False(t, h.sched.Has(surviveTask(id, "survive_night")))
	assert.False(t, h.m.surviveTick(id, "survive_night", cur.rule, cur.gen))
}

func TestSurvive_ResumesOnReconnect(t *testing.T) {
	h := newHarness(t, []*quest.Quest{surviveQuest()})
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "survive_night"))
	h.setHealth(id, 20)
	for i := 0; i < 3; i++ {
		h.tick(t, id, "survive_night")
	}
	require.NoError(t, h.m.Disconnect(ctx, id))

	require.NoError(t, h.m.Connect(ctx, newSession(id)))
	assert.True(t, h.sched.Has(surviveTask(id, "survive_night")))
	r, ok := h.record(id, "survive_night")
	require.True(t, ok)
	require.NotNil(t, r.Survive)
	assert.Equal(t, 3, r.Survive.Seconds)
	assert.Equal(t, 3, r.Progress)
}

func TestSurvive_CatalogReloadRestartsTimerWithNewRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quests.yml")
	h := newHarness(t, []*quest.Quest{surviveQuest()}, func(c *config.QuestConfig, _ *Deps) {
		c.CatalogPath = path
	})
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "survive_night"))
	h.setHealth(id, 20)
	require.True(t, h.tick(t, id, "survive_night"))
	require.True(t, h.tick(t, id, "survive_night"))

	h.m.survMu.Lock()
	before := h.m.survivals[surviveTask(id, "survive_night")]
	h.m.survMu.Unlock()
	require.Equal(t, 10, before.rule.Required)

	require.NoError(t, os.WriteFile(path, []byte(`quests:
  survive_night:
    name: Survive
    type: SURVIVE
    target: 10
    type-config:
      time-seconds: 4
      min-health: 5
`), 0o644))
	n, err := h.m.ReloadCatalog()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	h.m.survMu.Lock()
	after := h.m.survivals[surviveTask(id, "survive_night")]
	h.m.survMu.Unlock()
	assert.Equal(t, 4, after.rule.Required)
	assert.NotEqual(t, before.gen, after.gen)
	assert.False(t, h.m.surviveTick(id, "survive_night", before.rule, before.gen), "old timer retires")

	require.True(t, h.tick(t, id, "survive_night"))
	assert.False(t, h.tick(t, id, "survive_night"))
	r, _ := h.record(id, "survive_night")
	assert.True(t, r.Completed)
}
