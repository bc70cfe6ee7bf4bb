// Package testutil provides deterministic fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates per-model sequential record ids: "planet-1",
// "planet-2", "moon-1" and so on.
//
// The same scenario run twice with a fresh SequentialIDs produces identical
// ids, and therefore identical transform ids and golden traces.
//
// Thread-safety: SequentialIDs is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu   sync.Mutex
	next map[string]int
}

// NewSequentialIDs creates a generator with every counter at zero.
func NewSequentialIDs() *SequentialIDs {
	return &SequentialIDs{next: make(map[string]int)}
}

// Generate returns the next id for model.
//
// Implements memsource.IDGenerator.
func (g *SequentialIDs) Generate(model string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next[model]++
	return fmt.Sprintf("%s-%d", model, g.next[model])
}

// Reset sets every counter back to zero.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = make(map[string]int)
}
