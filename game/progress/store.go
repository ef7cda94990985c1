package progress

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Slot holds the records of one loaded player. Its methods must only be
// called from inside Store.With / Store.Each, which hold the slot lock.
type Slot struct {
	mu      sync.Mutex
	player  uuid.UUID
	records map[string]*Record
	closed  bool
}

func (s *Slot) Player() uuid.UUID { return s.player }

func (s *Slot) Find(questID string) (*Record, bool) {
	r, ok := s.records[questID]
	return r, ok
}

// Upsert stores r, replacing any record for the same quest.
func (s *Slot) Upsert(r *Record) {
	s.records[r.QuestID] = r
}

func (s *Slot) Remove(questID string) (*Record, bool) {
	r, ok := s.records[questID]
	if ok {
		delete(s.records, questID)
	}
	return r, ok
}

// All returns the live records sorted by quest id.
func (s *Slot) All() []*Record {
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestID < out[j].QuestID })
	return out
}

func (s *Slot) Len() int { return len(s.records) }

// CountActive counts records that are neither completed nor claimed.
func (s *Slot) CountActive() int {
	n := 0
	for _, r := range s.records {
		if r.Active() {
			n++
		}
	}
	return n
}

func (s *Slot) snapshot() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.All() {
		out = append(out, r.Clone())
	}
	return out
}

// Store keeps the progress of every loaded player. Each player has its own
// lock so updates for different players never contend.
type Store struct {
	mu    sync.RWMutex
	slots map[uuid.UUID]*Slot
}

func NewStore() *Store {
	return &Store{slots: make(map[uuid.UUID]*Slot)}
}

// Loader fetches a player's durable records.
type Loader func(ctx context.Context) ([]*Record, error)

// Load creates the slot for id and fills it from loader. Callers touching
// the player while the loader runs wait for it to finish. A failed load
// leaves no slot behind. It returns false if the player was already loaded.
func (st *Store) Load(ctx context.Context, id uuid.UUID, loader Loader) (bool, error) {
	for {
		st.mu.Lock()
		if existing, ok := st.slots[id]; ok {
			st.mu.Unlock()
			// A closed slot is being unloaded; wait for it to detach.
			existing.mu.Lock()
			closed := existing.closed
			existing.mu.Unlock()
			if !closed {
				return false, nil
			}
			continue
		}
		slot := &Slot{player: id, records: make(map[string]*Record)}
		slot.mu.Lock()
		st.slots[id] = slot
		st.mu.Unlock()

		recs, err := loader(ctx)
		if err != nil {
			slot.closed = true
			st.detach(id, slot)
			slot.mu.Unlock()
			return false, err
		}
		for _, r := range recs {
			slot.records[r.QuestID] = r
		}
		slot.mu.Unlock()
		return true, nil
	}
}

// Unload waits for in-flight updates on id, closes the slot, hands a
// snapshot to flush and then detaches the slot. It returns false if the
// player was not loaded.
func (st *Store) Unload(id uuid.UUID, flush func([]Record)) bool {
	st.mu.RLock()
	slot, ok := st.slots[id]
	st.mu.RUnlock()
	if !ok {
		return false
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.closed {
		return false
	}
	slot.closed = true
	if flush != nil {
		flush(slot.snapshot())
	}
	st.detach(id, slot)
	return true
}

func (st *Store) detach(id uuid.UUID, slot *Slot) {
	st.mu.Lock()
	if st.slots[id] == slot {
		delete(st.slots, id)
	}
	st.mu.Unlock()
}

// With runs fn with exclusive access to id's records. It returns false if
// the player is not loaded.
func (st *Store) With(id uuid.UUID, fn func(*Slot)) bool {
	st.mu.RLock()
	slot, ok := st.slots[id]
	st.mu.RUnlock()
	if !ok {
		return false
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.closed {
		return false
	}
	fn(slot)
	return true
}

// Get returns a snapshot of id's records; empty for unknown players.
func (st *Store) Get(id uuid.UUID) []Record {
	out := []Record{}
	st.With(id, func(s *Slot) { out = s.snapshot() })
	return out
}

func (st *Store) Loaded(id uuid.UUID) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	_, ok := st.slots[id]
	return ok
}

// Players returns the ids of all loaded players.
func (st *Store) Players() []uuid.UUID {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(st.slots))
	for id := range st.slots {
		out = append(out, id)
	}
	return out
}

// Each visits every loaded player, locking one slot at a time.
func (st *Store) Each(fn func(*Slot)) {
	for _, id := range st.Players() {
		st.With(id, fn)
	}
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.slots)
}
