package evidence

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces bundle ids. Implemented by UUIDv7Generator
// (production) and FixedGenerator (tests), mirroring the orchestrator's
// own generator-injection shape so tests can assert on an exact bundle id
// without making Emit depend on wall-clock randomness.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 bundle ids.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 as a hyphenated string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids in order, for deterministic
// tests and golden-file comparisons.
type FixedGenerator struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewFixedGenerator builds a generator that yields ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id. Panics if exhausted — a
// test asked for more bundles than it provisioned ids for.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.next >= len(g.ids) {
		panic("evidence: FixedGenerator exhausted")
	}
	id := g.ids[g.next]
	g.next++
	return id
}
