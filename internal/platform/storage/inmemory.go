package storage

import (
	"context"
	"sync"
)

type object struct {
	data        []byte
	contentType string
}

// InMemoryStorage is the test/dev blob store.
type InMemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{objects: make(map[string]object)}
}

func (s *InMemoryStorage) Upload(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = object{data: cp, contentType: contentType}
	return nil
}

func (s *InMemoryStorage) Download(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, obj.contentType, nil
}

func (s *InMemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}
