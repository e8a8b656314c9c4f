package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates predictable identifiers: prefix-1, prefix-2, ...
//
// This enables deterministic test execution and golden trace comparison.
// Thread-safety: SequenceGenerator is safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator for the given prefix.
// If prefix is empty, "task" is used.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "task"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next identifier.
//
// Implements task.IDGenerator interface.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// FixedGenerator returns the same identifier every time. Used for sync
// session ids that must appear verbatim in golden logs.
type FixedGenerator struct {
	id string
}

// NewFixedGenerator creates a generator that always returns id.
func NewFixedGenerator(id string) *FixedGenerator {
	return &FixedGenerator{id: id}
}

// Generate returns the fixed identifier.
func (g *FixedGenerator) Generate() string {
	return g.id
}
