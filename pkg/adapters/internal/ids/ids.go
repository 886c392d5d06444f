// Package ids generates store-assigned note identifiers.
package ids

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces lexically sortable ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *rand.Rand
}

// NewGenerator seeds a generator from the current time.
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// New returns a fresh identifier.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}
