// Package ident generates the short identifiers used to scope compiled blocks.
package ident

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// Length is the number of characters in a generated id.
const Length = 10

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Generator produces block ids.
// Implemented by Random (production) and Sequence (tests).
type Generator interface {
	NewID() string
}

// Random generates base-36 ids from the runtime's random source.
//
// Ids are URL-safe and practically non-colliding within one process. They
// are not required to be unique across restarts.
//
// Thread-safety: Random is stateless and safe for concurrent use.
type Random struct{}

// NewID returns a fresh 10-character base-36 id.
func (Random) NewID() string {
	return NewID()
}

// NewID returns a fresh 10-character base-36 id.
func NewID() string {
	b := make([]byte, Length)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// Sequence returns predictable ids for deterministic tests and golden traces.
//
// Example:
//
//	seq := NewSequence("blk")
//	seq.NewID() // "blk0000001"
//	seq.NewID() // "blk0000002"
//
// Thread-safety: Sequence is safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a sequence generator with the given prefix.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// NewID returns the next id, zero-padded to Length characters when the
// prefix leaves room.
func (s *Sequence) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.n++
	width := Length - len(s.prefix)
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%s%0*d", s.prefix, width, s.n)
}
