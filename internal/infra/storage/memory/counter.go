package memory

import (
	"context"
	"sync"

	"carshare/internal/app/policies"
)

type Sequence struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewSequence() *Sequence {
	return &Sequence{values: make(map[string]int64)}
}

func (s *Sequence) Next(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name]++
	return s.values[name], nil
}

var _ policies.Sequence = (*Sequence)(nil)
