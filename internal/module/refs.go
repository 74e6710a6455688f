package module

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// DefaultOrigin is the origin segment of minted references.
const DefaultOrigin = "tiny-engine"

// RefGenerator mints references for published modules.
// Implemented by UUIDRefs (production) and SequentialRefs (tests).
type RefGenerator interface {
	NewRef() ir.Reference
}

// UUIDRefs mints object-URL style references: "blob:<origin>/<uuidv7>".
//
// UUIDv7 embeds a timestamp in the most significant bits, so references sort
// by publish time. This is helpful when reading the compile log.
//
// Thread-safety: UUIDRefs is stateless and safe for concurrent use.
type UUIDRefs struct {
	Origin string
}

// NewRef creates a new reference.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDRefs) NewRef() ir.Reference {
	origin := g.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	return ir.Reference(Scheme + origin + "/" + uuid.Must(uuid.NewV7()).String())
}

// SequentialRefs mints "blob:<origin>/<n>" references in order.
//
// This enables deterministic test execution and golden trace comparison.
//
// Thread-safety: SequentialRefs is safe for concurrent use via internal mutex.
type SequentialRefs struct {
	mu     sync.Mutex
	origin string
	n      int
}

// NewSequentialRefs creates a sequential generator for origin.
func NewSequentialRefs(origin string) *SequentialRefs {
	if origin == "" {
		origin = DefaultOrigin
	}
	return &SequentialRefs{origin: origin}
}

// NewRef returns the next reference.
func (g *SequentialRefs) NewRef() ir.Reference {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return ir.Reference(fmt.Sprintf("%s%s/%d", Scheme, g.origin, g.n))
}
