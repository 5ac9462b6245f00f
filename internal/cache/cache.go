package cache

import (
	"log/slog"
	"time"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Flush()
	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager runs periodic expiry cleanup across registered caches.
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewManager creates a new cache manager
func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			total := 0
			for _, cache := range m.caches {
				total += cache.CleanExpired()
			}
			if total > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", total)
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	if m.stopCleanup != nil {
		close(m.stopCleanup)
		<-m.cleanupDone
	}
}
