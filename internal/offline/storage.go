package offline

import (
	"context"
	"sync"
)

type (
	// Bucket is one named cache generation's key-value store.
	Bucket interface {
		// Match returns the stored entry for a request key, if any.
		Match(ctx context.Context, key string) (*Entry, bool, error)

		// Put stores an entry under a request key. Concurrent writers for
		// the same key race and the last write wins; no locking per key.
		Put(ctx context.Context, key string, e *Entry) error
	}

	// Storage manages named buckets across generations.
	Storage interface {
		// Open returns the bucket with the given name, creating it if absent.
		Open(ctx context.Context, name string) (Bucket, error)

		// Delete removes a bucket and everything in it. Reports whether the
		// bucket existed.
		Delete(ctx context.Context, name string) (bool, error)

		// Names lists all existing bucket names.
		Names(ctx context.Context) ([]string, error)
	}
)

// MemoryStorage is an in-memory Storage, used in tests and as the
// default when no cache path is configured.
type MemoryStorage struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{buckets: make(map[string]*memoryBucket)}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[name]
	if !ok {
		b = &memoryBucket{entries: make(map[string]*Entry)}
		s.buckets[name] = b
	}
	return b, nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.buckets[name]
	delete(s.buckets, name)
	return ok, nil
}

func (s *MemoryStorage) Names(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	return names, nil
}

type memoryBucket struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func (b *memoryBucket) Match(_ context.Context, key string) (*Entry, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (b *memoryBucket) Put(_ context.Context, key string, e *Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[key] = e.Clone()
	return nil
}
