package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBucketIsStable(t *testing.T) {
	m := NewManager(64)

	first := m.EventBucket("bob@example.com")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.EventBucket("bob@example.com"))
	}
}

func TestEventBucketStaysInRange(t *testing.T) {
	m := NewManager(16)

	for i := 0; i < 1000; i++ {
		bucket := m.EventBucket(fmt.Sprintf("user-%d", i))
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 16)
	}
}

func TestEventBucketSpreadsIdentifiers(t *testing.T) {
	m := NewManager(16)

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		seen[m.EventBucket(fmt.Sprintf("203.0.113.%d", i))] = true
	}
	// murmur3 should touch most buckets with a thousand identifiers
	assert.GreaterOrEqual(t, len(seen), 12)
}

func TestDefaultBucketCount(t *testing.T) {
	assert.Equal(t, 64, NewManager(0).EventBuckets())
	assert.Equal(t, 64, NewManager(-5).EventBuckets())
}
