package cache

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a typed key/value store with a fixed TTL per instance.
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// DeletePrefix removes every key starting with prefix and returns how many
	// were removed.
	DeletePrefix(prefix string) int

	// Size returns the current number of items in the cache
	Size() int
}

// Backend names accepted by CACHE_BACKEND.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Factory builds the per-namespace caches of one process, all on the same
// backend.
type Factory struct {
	redis   redis.UniversalClient
	size    int
	manager *Manager
}

// NewMemoryFactory builds in-process LRU caches holding at most size entries
// each. Expired entries are reclaimed by the manager.
func NewMemoryFactory(size int, manager *Manager) *Factory {
	return &Factory{size: size, manager: manager}
}

// NewRedisFactory builds caches shared by every replica through client.
func NewRedisFactory(client redis.UniversalClient) *Factory {
	return &Factory{redis: client}
}

// New returns the cache for namespace. Keys are only unique within a
// namespace.
func New[T any](f *Factory, namespace string, ttl time.Duration) Cache[T] {
	if f.redis != nil {
		return NewRedisCache[T](f.redis, namespace, ttl)
	}
	c := NewLRUCache[T](f.size, ttl)
	if f.manager != nil {
		f.manager.Register(c)
	}
	return c
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup. It must be called before
// StartCleanup.
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
			cleaned := m.CleanAll()
			if cleaned > 0 {
				slog.Debug("Expired cache entries removed", "count", cleaned, "caches", len(m.caches))
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// CleanAll removes expired entries from every registered cache.
func (m *Manager) CleanAll() int {
	total := 0
	for _, cache := range m.caches {
		total += cache.CleanExpired()
	}
	return total
}

// Stop gracefully stops the cleanup routine. Only call it after StartCleanup.
func (m *Manager) Stop() {
	if m.stopCleanup != nil {
		close(m.stopCleanup)
		<-m.cleanupDone
		m.stopCleanup = nil
	}
}
