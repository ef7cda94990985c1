package quest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMatcher(t *testing.T, typ Type, target int, cfg TypeConfig, env Env) Matcher {
	t.Helper()
	m, err := NewMatcher(&Quest{ID: "q", Type: typ, Target: target, TypeConfig: cfg}, env)
	require.NoError(t, err)
	return m
}

func TestNewMatcher_EveryTypeHasFactory(t *testing.T) {
	for _, typ := range Types() {
		m, err := NewMatcher(&Quest{ID: "q", Type: typ, Target: 5}, Env{})
		require.NoError(t, err, typ)
		assert.Equal(t, typ, m.Type())
		assert.NotEmpty(t, m.Describe(), typ)
	}
	_, err := NewMatcher(&Quest{ID: "q", Type: "DANCE", Target: 1}, Env{})
	assert.Error(t, err)
}

func TestCollectMatcher(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeCollect, 64, TypeConfig{"materials": []interface{}{"oak_log", "BIRCH_LOG"}}, Env{})

	assert.Equal(t, 3, m.CheckProgress(p, ItemCollected{Player: p, Material: "OAK_LOG", Amount: 3, Source: SourcePickup}))
	assert.Equal(t, 2, m.CheckProgress(p, ItemCollected{Player: p, Material: "birch_log", Amount: 2, Source: SourceCraft}))
	assert.Equal(t, 0, m.CheckProgress(p, ItemCollected{Player: p, Material: "STONE", Amount: 5}))
	assert.Equal(t, 0, m.CheckProgress(p, ItemCollected{Player: uuid.New(), Material: "OAK_LOG", Amount: 5}))
	assert.Equal(t, 0, m.CheckProgress(p, BlockBroken{Player: p, Material: "OAK_LOG"}))
	assert.Equal(t, "Collect 64 of: birch log, oak log", m.Describe())

	anyM := mustMatcher(t, TypeCollect, 5, nil, Env{})
	assert.Equal(t, 4, anyM.CheckProgress(p, ItemCollected{Player: p, Material: "DIRT", Amount: 4}))
	assert.Equal(t, "Collect 5 of any items", anyM.Describe())

	flag := mustMatcher(t, TypeCollect, 5, TypeConfig{"materials": []interface{}{"DIAMOND"}, "any-item": true}, Env{})
	assert.Equal(t, 1, flag.CheckProgress(p, ItemCollected{Player: p, Material: "DIRT", Amount: 1}))
}

func TestKillMobMatcher(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeKillMob, 5, TypeConfig{"mobs": []interface{}{"ZOMBIE"}}, Env{})

	assert.Equal(t, 1, m.CheckProgress(p, EntityKilled{Killer: p, EntityType: "ZOMBIE"}))
	assert.Equal(t, 0, m.CheckProgress(p, EntityKilled{Killer: p, EntityType: "SKELETON"}))
	assert.Equal(t, "Kill 5 zombie", m.Describe())

	anyM := mustMatcher(t, TypeKillMob, 5, TypeConfig{"any-mob": true}, Env{})
	assert.Equal(t, 1, anyM.CheckProgress(p, EntityKilled{Killer: p, EntityType: "CREEPER"}))
	assert.Equal(t, 0, anyM.CheckProgress(p, EntityKilled{Killer: p, EntityType: "PLAYER", Victim: uuid.New()}), "players are not mobs")
	assert.Equal(t, "Kill 5 mobs", anyM.Describe())
}

func TestKillPlayerMatcher(t *testing.T) {
	p, other := uuid.New(), uuid.New()
	m := mustMatcher(t, TypeKillPlayer, 3, nil, Env{})

	assert.Equal(t, 1, m.CheckProgress(p, EntityKilled{Killer: p, EntityType: "PLAYER", Victim: other}))
	assert.Equal(t, 0, m.CheckProgress(p, EntityKilled{Killer: p, EntityType: "PLAYER", Victim: p}), "self kill")
	assert.Equal(t, 0, m.CheckProgress(p, EntityKilled{Killer: p, EntityType: "ZOMBIE"}))
	assert.Equal(t, 0, m.CheckProgress(p, EntityKilled{Killer: other, EntityType: "PLAYER", Victim: p}))
	assert.Equal(t, "Kill 3 players", m.Describe())
}

func TestFishMatcher(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeFish, 3, TypeConfig{"items": []interface{}{"COD", "SALMON"}}, Env{})

	assert.Equal(t, 1, m.CheckProgress(p, FishCaught{Player: p, Item: "COD", Amount: 1, Caught: true}))
	assert.Equal(t, 0, m.CheckProgress(p, FishCaught{Player: p, Item: "COD", Amount: 1, Caught: false}))
	assert.Equal(t, 0, m.CheckProgress(p, FishCaught{Player: p, Item: "BOOT", Amount: 1, Caught: true}))
	assert.Equal(t, "Fish 3 of: cod, salmon", m.Describe())
}

func TestBreakBlockMatcher(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeBreakBlock, 10, TypeConfig{"blocks": []interface{}{"OAK_LOG"}}, Env{})

	assert.Equal(t, 1, m.CheckProgress(p, BlockBroken{Player: p, Material: "OAK_LOG"}))
	assert.Equal(t, 0, m.CheckProgress(p, BlockBroken{Player: p, Material: "STONE"}))
	assert.Equal(t, "Break 10 oak log", m.Describe())
}

func TestVillagerMatchers(t *testing.T) {
	p := uuid.New()
	interact := mustMatcher(t, TypeVillagerInteract, 2, nil, Env{})
	trade := mustMatcher(t, TypeVillagerTrade, 2, nil, Env{})

	assert.Equal(t, 1, interact.CheckProgress(p, EntityInteracted{Player: p, EntityType: "villager"}))
	assert.Equal(t, 0, interact.CheckProgress(p, EntityInteracted{Player: p, EntityType: "COW"}))
	assert.Equal(t, 1, trade.CheckProgress(p, TradeCompleted{Player: p, MerchantType: "VILLAGER"}))
	assert.Equal(t, 0, trade.CheckProgress(p, TradeCompleted{Player: p, MerchantType: "WANDERING_TRADER"}))
	assert.Equal(t, "Complete 2 trades with villagers", trade.Describe())
}

func move(p uuid.UUID, from, to Location) PlayerMoved {
	return PlayerMoved{Player: p, From: from, To: to, OnGround: true}
}

func TestVisitLocationMatcher_Coordinates(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeVisitLocation, 1, TypeConfig{"world": "world", "x": 100, "z": -50, "radius": 10}, Env{})

	near := Location{World: "world", X: 105, Y: 80, Z: -48}
	assert.Equal(t, 1, m.CheckProgress(p, move(p, Location{World: "world", X: 95, Y: 80, Z: -48}, near)), "y ignored")
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{World: "world", X: 105.2, Y: 80, Z: -48}, near)), "same block")
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{World: "world"}, Location{World: "world", X: 200})))
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{World: "nether"}, Location{World: "nether", X: 100, Z: -50})))
	assert.Equal(t, "Visit coordinates 100, -50 in world (within 10 blocks)", m.Describe())
}

func TestVisitLocationMatcher_Biome(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeVisitLocation, 1, TypeConfig{"biomes": []interface{}{"DESERT"}}, Env{})

	ev := move(p, Location{World: "world", X: 0}, Location{World: "world", X: 1})
	ev.ToBiome = "desert"
	assert.Equal(t, 1, m.CheckProgress(p, ev))
	ev.ToBiome = "PLAINS"
	assert.Equal(t, 0, m.CheckProgress(p, ev))
	assert.Equal(t, "Visit the desert biome", m.Describe())
}

func TestReachAltitudeMatcher(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeReachAltitude, 1, nil, Env{})

	assert.Equal(t, 1, m.CheckProgress(p, move(p, Location{Y: 199}, Location{Y: 200})))
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{Y: 150}, Location{Y: 199.9})))
	assert.Equal(t, "Reach altitude Y=200", m.Describe())
}

func TestFindStructureMatcher(t *testing.T) {
	p := uuid.New()
	idx := NewStructureIndex()
	idx.Add("village", Location{World: "world", X: 40, Y: 64, Z: 0})
	m := mustMatcher(t, TypeFindStructure, 1, TypeConfig{"structures": []interface{}{"VILLAGE"}}, Env{Structures: idx})

	from := Location{World: "world", X: -1, Y: 64, Z: 0}
	to := Location{World: "world", X: 1, Y: 64, Z: 0}
	assert.Equal(t, 1, m.CheckProgress(p, move(p, from, to)), "chunk boundary crossed near a village")
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{World: "world", X: 2, Y: 64}, Location{World: "world", X: 3, Y: 64})), "same chunk")
	far := Location{World: "world", X: 300, Y: 64}
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{World: "world", X: 260, Y: 64}, far)))
	assert.Equal(t, "Find a village", m.Describe())

	noLocator := mustMatcher(t, TypeFindStructure, 1, TypeConfig{"structures": []interface{}{"village"}}, Env{})
	assert.Equal(t, 0, noLocator.CheckProgress(p, move(p, from, to)))
}

func TestTravelMatcher(t *testing.T) {
	p := uuid.New()
	walk := mustMatcher(t, TypeTravel, 500, TypeConfig{"type": "walk"}, Env{})

	step := move(p, Location{World: "w", X: 0}, Location{World: "w", X: 1.5})
	assert.Equal(t, 150, walk.CheckProgress(p, step))
	step.Swimming = true
	assert.Equal(t, 0, walk.CheckProgress(p, step))
	assert.Equal(t, "Walk 500 blocks", walk.Describe())

	swim := mustMatcher(t, TypeTravel, 500, TypeConfig{"type": "SWIM", "distance": 20}, Env{})
	assert.Equal(t, 150, swim.CheckProgress(p, step))
	assert.Equal(t, "Swim 20 blocks", swim.Describe())

	odd := mustMatcher(t, TypeTravel, 9, TypeConfig{"type": "teleport"}, Env{})
	assert.Equal(t, "Travel 9 blocks", odd.Describe())

	cross := move(p, Location{World: "a"}, Location{World: "b"})
	assert.Equal(t, 0, odd.CheckProgress(p, cross))
}

func TestJumpMatcher(t *testing.T) {
	p := uuid.New()
	m := mustMatcher(t, TypeJump, 10, nil, Env{})

	assert.Equal(t, 1, m.CheckProgress(p, move(p, Location{Y: 64}, Location{Y: 64.42})))
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{Y: 64}, Location{Y: 64.05})), "too small")
	assert.Equal(t, 0, m.CheckProgress(p, move(p, Location{Y: 64}, Location{Y: 67})), "too large")
	airborne := move(p, Location{Y: 64}, Location{Y: 64.42})
	airborne.OnGround = false
	assert.Equal(t, 0, m.CheckProgress(p, airborne))
	assert.Equal(t, "Jump 10 times", m.Describe())
}

func TestLocation_Blocks(t *testing.T) {
	l := Location{World: "w", X: -0.5, Y: 64.9, Z: 15.99}
	assert.Equal(t, -1, l.BlockX())
	assert.Equal(t, 64, l.BlockY())
	assert.True(t, l.SameChunk(Location{World: "w", X: -16, Z: 0}))
	assert.False(t, l.SameChunk(Location{World: "w", X: 0, Z: 0}))
}
