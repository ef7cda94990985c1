package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/questengine/game/progress"
	"github.com/kasuganosora/questengine/config"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/persist"
	"github.com/kasuganosora/questengine/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnect_LoadsStoredProgress(t *testing.T) {
	h := newHarness(t, []*quest.Quest{chopWood()})
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, h.store.SaveProgress(ctx, progress.Record{
		PlayerID: id, QuestID: "chop_wood", Target: 10, Progress: 6, StartedAt: time.Now(),
	}))

	require.NoError(t, h.m.Connect(ctx, newSession(id)))
	assert.True(t, h.players.IsOnline(id))
	for _, ev := range breakBlocks(id, "OAK_LOG", 4) {
		h.m.HandleEvent(ctx, ev)
	}
	r, _ := h.record(id, "chop_wood")
	assert.True(t, r.Completed)

	h.flush(t)
	gs, err := h.store.GlobalStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gs.Players)
}

type failingStore struct {
	storage.Store
}

func (failingStore) LoadProgress(context.Context, uuid.UUID) ([]*progress.Record, error) {
	return nil, errors.New("db down")
}

func TestConnect_LoadFailureLeavesPlayerOffline(t *testing.T) {
	h := newHarness(t, nil)
	h.m.store = failingStore{h.store}
	id := uuid.New()
	assert.Error(t, h.m.Connect(context.Background(), newSession(id)))
	assert.False(t, h.players.IsOnline(id))
	assert.False(t, h.m.progress.Loaded(id))
}

func TestDisconnect_FlushesAndReconnectKeepsCooldown(t *testing.T) {
	daily := gather("daily", 1)
	daily.Cooldown = time.Hour
	h := newHarness(t, []*quest.Quest{chopWood(), daily})
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "chop_wood"))
	require.NoError(t, h.m.Accept(ctx, id, "daily"))
	for _, ev := range breakBlocks(id, "OAK_LOG", 3) {
		h.m.HandleEvent(ctx, ev)
	}
	h.m.HandleEvent(ctx, quest.ItemCollected{Player: id, Amount: 1})
	require.NoError(t, h.m.Claim(ctx, id, "daily"))

	require.NoError(t, h.m.Disconnect(ctx, id))
	assert.False(t, h.players.IsOnline(id))
	assert.Empty(t, h.m.Progress(id))
	assert.ErrorIs(t, h.m.Disconnect(ctx, id), ErrPlayerOffline)

	stored, err := h.store.GetProgress(ctx, id, "chop_wood")
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Progress)

	require.NoError(t, h.m.Connect(ctx, newSession(id)))
	r, ok := h.record(id, "chop_wood")
	require.True(t, ok)
	assert.Equal(t, 3, r.Progress)
	assert.ErrorIs(t, h.m.Accept(ctx, id, "daily"), ErrOnCooldown)
}

func TestDisconnect_RacingEventsAreNotLost(t *testing.T) {
	h := newHarness(t, []*quest.Quest{gather("dirt", 1_000_000)})
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "dirt"))

	var applied int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if h.m.HandleEvent(ctx, quest.ItemCollected{Player: id, Amount: 1}) == 1 {
					mu.Lock()
					applied++
					mu.Unlock()
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	require.NoError(t, h.m.Disconnect(ctx, id))
	wg.Wait()

	stored, err := h.store.GetProgress(ctx, id, "dirt")
	require.NoError(t, err)
	assert.Equal(t, int(applied), stored.Progress)
}

// gatedStore holds progress saves while its gate is closed.
type gatedStore struct {
	*storage.GormStore
	mu   sync.Mutex
	gate chan struct{}
}

// hold closes the gate; the returned func opens it again.
func (s *gatedStore) hold() func() {
	g := make(chan struct{})
	s.mu.Lock()
	s.gate = g
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.gate = nil
		s.mu.Unlock()
		close(g)
	}
}

func (s *gatedStore) SaveProgress(ctx context.Context, r progress.Record) error {
	s.mu.Lock()
	g := s.gate
	s.mu.Unlock()
	if g != nil {
		<-g
	}
	return s.GormStore.SaveProgress(ctx, r)
}

func withGatedWriter(t *testing.T, queue int, out **gatedStore) harnessOpt {
	return func(_ *config.QuestConfig, d *Deps) {
		gs := &gatedStore{GormStore: d.Store.(*storage.GormStore)}
		w := persist.New(gs, queue, 5*time.Second, zap.NewNop())
		t.Cleanup(func() { w.Stop(context.Background()) })
		d.Writer = w
		*out = gs
	}
}

func TestConnect_WaitsForSavesOfRacingDisconnect(t *testing.T) {
	var gs *gatedStore
	h := newHarness(t, []*quest.Quest{gather("dirt", 100)}, withGatedWriter(t, 1024, &gs))
	h.writer = h.m.writer
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "dirt"))
	h.m.HandleEvent(ctx, quest.ItemCollected{Player: id, Amount: 5})
	h.flush(t)

	release := gs.hold()
	h.m.HandleEvent(ctx, quest.ItemCollected{Player: id, Amount: 3})

	done := make(chan error, 1)
	go func() { done <- h.m.Disconnect(ctx, id) }()
	require.Eventually(t, func() bool {
		return !h.m.progress.Loaded(id) && !h.players.IsOnline(id)
	}, time.Second, time.Millisecond)

	// The disconnect's saves are still queued behind the gate.
	time.AfterFunc(50*time.Millisecond, release)
	require.NoError(t, h.m.Connect(ctx, newSession(id)))
	require.NoError(t, <-done)

	r, ok := h.record(id, "dirt")
	require.True(t, ok)
	assert.Equal(t, 8, r.Progress)
	assert.True(t, h.players.IsOnline(id))

	h.m.Autosave()
	h.flush(t)
	stored, err := h.store.GetProgress(ctx, id, "dirt")
	require.NoError(t, err)
	assert.Equal(t, 8, stored.Progress)
}

func TestClaim_DeleteSurvivesFullWriteQueue(t *testing.T) {
	once := gather("once", 1)
	once.Repeatable = false
	var gs *gatedStore
	h := newHarness(t, []*quest.Quest{once, gather("dirt", 100)}, withGatedWriter(t, 2, &gs))
	h.writer = h.m.writer
	ctx := context.Background()
	id := h.connect(t)
	require.NoError(t, h.m.Accept(ctx, id, "once"))
	require.NoError(t, h.m.Accept(ctx, id, "dirt"))
	h.m.HandleEvent(ctx, quest.ItemCollected{Player: id, Amount: 1})
	h.flush(t)

	release := gs.hold()
	done := make(chan error, 1)
	go func() {
		// Two records per autosave overflow a queue of two.
		for i := 0; i < 3; i++ {
			h.m.Autosave()
		}
		done <- h.m.Claim(ctx, id, "once")
	}()
	time.AfterFunc(50*time.Millisecond, release)
	require.NoError(t, <-done)

	require.NoError(t, h.m.Disconnect(ctx, id))
	require.NoError(t, h.m.Connect(ctx, newSession(id)))
	_, found := h.record(id, "once")
	assert.False(t, found)
	_, err := h.store.GetProgress(ctx, id, "once")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQueries(t *testing.T) {
	vip := gather("vip", 1)
	vip.Permission = "quest.vip"
	h := newHarness(t, []*quest.Quest{chopWood(), gather("dirt", 1), vip})
	ctx := context.Background()
	id := h.connect(t)

	avail, err := h.m.Available(id)
	require.NoError(t, err)
	require.Len(t, avail, 2)
	assert.Equal(t, "chop_wood", avail[0].ID)
	assert.Equal(t, "dirt", avail[1].ID)
	_, err = h.m.Available(uuid.New())
	assert.ErrorIs(t, err, ErrPlayerOffline)

	require.NoError(t, h.m.Accept(ctx, id, "chop_wood"))
	require.NoError(t, h.m.Accept(ctx, id, "dirt"))
	h.m.HandleEvent(ctx, quest.ItemCollected{Player: id, Amount: 1})

	assert.Len(t, h.m.Active(id), 1)
	assert.Len(t, h.m.Completed(id), 1)
	avail, _ = h.m.Available(id)
	assert.Empty(t, avail)

	r, err := h.m.Find(id, "dirt")
	require.NoError(t, err)
	assert.True(t, r.Completed)
	_, err = h.m.Find(id, "vip")
	assert.ErrorIs(t, err, ErrProgressNotFound)

	h.flush(t)
	ps, err := h.m.PlayerStats(ctx, id)
	require.NoError(t, err)
	assert.True(t, ps.Online)
	assert.Equal(t, int64(1), ps.Active)
	assert.Equal(t, int64(1), ps.Completed)
	require.Len(t, ps.Quests, 1)

	qs, err := h.m.QuestStats(ctx, "dirt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), qs.Completions)
	_, err = h.m.QuestStats(ctx, "unknown")
	assert.ErrorIs(t, err, ErrQuestNotFound)

	gs, err := h.m.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, gs.Quests)
	assert.Equal(t, 1, gs.Online)
	require.Len(t, gs.TopQuests, 1)
	assert.Equal(t, RankEntry{ID: "dirt", Completions: 1}, gs.TopQuests[0])
	require.Len(t, gs.TopPlayers, 1)
	assert.Equal(t, id.String(), gs.TopPlayers[0].ID)

	require.NoError(t, h.m.Disconnect(ctx, id))
	ps, err = h.m.PlayerStats(ctx, id)
	require.NoError(t, err)
	assert.False(t, ps.Online)
	assert.Equal(t, int64(1), ps.Active)
}
