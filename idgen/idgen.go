// Package idgen provides the stable integer identities used to key scheduler
// entries.
package idgen

import "sync/atomic"

// Generator produces unique identifiers.
type Generator interface {
	Generate() int
}

// New returns a sequential generator whose first emitted ID is 1. Zero is
// never emitted, so callers can use it as "unassigned".
func New() Generator {
	return &sequentialGenerator{}
}

type sequentialGenerator struct {
	next atomic.Int64
}

func (g *sequentialGenerator) Generate() int {
	return int(g.next.Add(1))
}
