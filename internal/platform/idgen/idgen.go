package idgen

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces identifiers for records created by the approval core.
type Generator interface {
	NewID() string
}

// UUID generates random v4 identifiers.
type UUID struct{}

func (UUID) NewID() string { return uuid.New().String() }

// Sequence generates prefix-1, prefix-2, ... and is meant for tests.
type Sequence struct {
	Prefix string
	n      atomic.Int64
}

func (s *Sequence) NewID() string {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1))
}
