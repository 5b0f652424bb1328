package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Manager assigns consistent buckets to actor identifiers. The event store
// writes the bucket into its ClickHouse ordering key so one actor's rows
// sort together within a part.
type Manager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(eventBuckets int) *Manager {
	if eventBuckets <= 0 {
		eventBuckets = 64
	}
	m := &Manager{eventBuckets: eventBuckets}

	// Pool of hashers to avoid per-call allocation on the hot path
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return m
}

// EventBucket returns a consistent bucket for an identifier (0 to n-1).
func (m *Manager) EventBucket(identifier string) int {
	return int(m.hash(identifier) % uint64(m.eventBuckets))
}

// EventBuckets returns the configured bucket count.
func (m *Manager) EventBuckets() int {
	return m.eventBuckets
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
