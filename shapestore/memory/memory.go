// Package memory provides an in-process shapestore.Store. Descriptors are
// kept in canonical form and decoded on every Get, so callers never share
// trees with the store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ggoodman/optshape/shape"
	"github.com/ggoodman/optshape/shapestore"
)

// Store implements shapestore.Store with a map guarded by a RWMutex.
type Store struct {
	mu     sync.RWMutex
	shapes map[string][]byte
}

var _ shapestore.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{shapes: make(map[string][]byte)}
}

func (s *Store) Put(ctx context.Context, name string, sh shape.Shape) (string, error) {
	b, fp, err := shapestore.Encode(name, sh)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.shapes[name] = b
	s.mu.Unlock()
	return fp, nil
}

func (s *Store) Get(ctx context.Context, name string) (shape.Shape, error) {
	s.mu.RLock()
	b, ok := s.shapes[name]
	s.mu.RUnlock()
	if !ok {
		return nil, shapestore.ErrNotFound
	}
	return shape.Unmarshal(b)
}

func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shapes[name]; !ok {
		return shapestore.ErrNotFound
	}
	delete(s.shapes, name)
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	names := make([]string, 0, len(s.shapes))
	for n := range s.shapes {
		names = append(names, n)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
