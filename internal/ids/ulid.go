// Package ids generates sortable giveaway identifiers.
package ids

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces monotonic ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator creates a generator seeded from the current time.
func NewGenerator() *Generator {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Generator{
		entropy: ulid.Monotonic(src, 0),
	}
}

// New returns a new ULID string.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), g.entropy).String()
}

// Valid reports whether s is a well-formed ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
