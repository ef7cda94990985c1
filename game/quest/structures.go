package quest

import (
	"math"
	"strings"
	"sync"
)

// StructureIndex is an in-memory StructureLocator fed by the game server
// with the positions of generated structures.
type StructureIndex struct {
	mu    sync.RWMutex
	known map[string][]Location // world + "/" + structure → positions
}

func NewStructureIndex() *StructureIndex {
	return &StructureIndex{known: make(map[string][]Location)}
}

func structureKey(world, structure string) string {
	return world + "/" + strings.ToLower(structure)
}

// Add records a structure position. Duplicate positions are ignored.
func (s *StructureIndex) Add(structure string, at Location) {
	key := structureKey(at.World, structure)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.known[key] {
		if l == at {
			return
		}
	}
	s.known[key] = append(s.known[key], at)
}

// Len returns the number of recorded positions.
func (s *StructureIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.known {
		n += len(l)
	}
	return n
}

// Nearest returns the closest recorded structure of the given kind within
// radius blocks (horizontal distance) of at.
func (s *StructureIndex) Nearest(world string, at Location, structure string, radius int) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best, bestD := Location{}, math.Inf(1)
	for _, l := range s.known[structureKey(world, structure)] {
		dx, dz := l.X-at.X, l.Z-at.Z
		if d := math.Sqrt(dx*dx + dz*dz); d <= float64(radius) && d < bestD {
			best, bestD = l, d
		}
	}
	return best, !math.IsInf(bestD, 1)
}
