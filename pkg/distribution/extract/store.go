package extract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/docker/model-extract/pkg/distribution/safetensors"
)

// Store accumulates extracted tensors under their new names. It is safe for
// concurrent Put calls.
type Store struct {
	mu      sync.Mutex
	tensors map[string]safetensors.Tensor
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{tensors: make(map[string]safetensors.Tensor)}
}

// Put adds a tensor. Names are unique; adding one twice is an error.
func (s *Store) Put(name string, t safetensors.Tensor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.tensors[name]; dup {
		return fmt.Errorf("tensor %q extracted twice", name)
	}
	s.tensors[name] = t
	return nil
}

// Get returns the tensor stored under name.
func (s *Store) Get(name string) (safetensors.Tensor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tensors[name]
	return t, ok
}

// Len returns the number of tensors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tensors)
}

// Names returns the tensor names, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tensors))
	for name := range s.tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tensors returns a copy of the name to tensor mapping.
func (s *Store) Tensors() map[string]safetensors.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]safetensors.Tensor, len(s.tensors))
	for name, t := range s.tensors {
		out[name] = t
	}
	return out
}

// ByteSizes returns each tensor's footprint (element count times element width).
func (s *Store) ByteSizes() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make(map[string]int64, len(s.tensors))
	for name, t := range s.tensors {
		sizes[name] = t.ByteSize()
	}
	return sizes
}

// TotalSize returns the sum of all tensor footprints.
func (s *Store) TotalSize() int64 {
	var total int64
	for _, size := range s.ByteSizes() {
		total += size
	}
	return total
}
