package testfixtures

import (
	"fmt"
	"sync"
)

// IDSequence hands out deterministic identifiers shared by every service of
// a test stack. Numbers are zero padded so that lexical order equals issue
// order, which keeps the (created_at, id) listing order predictable while the
// clock is frozen.
type IDSequence struct {
	mu     sync.Mutex
	prefix string
	issued int
}

// NewIDSequence returns a sequence yielding prefix-000001, prefix-000002 and
// so on. An empty prefix means "id".
func NewIDSequence(prefix string) *IDSequence {
	if prefix == "" {
		prefix = "id"
	}
	return &IDSequence{prefix: prefix}
}

// Next returns the next identifier.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return fmt.Sprintf("%s-%06d", s.prefix, s.issued)
}

// NextFunc adapts the sequence to the func() string id generators the
// services take.
func (s *IDSequence) NextFunc() func() string {
	return s.Next
}

// Issued reports how many identifiers were handed out.
func (s *IDSequence) Issued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issued
}
