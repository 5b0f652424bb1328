package remediation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPSetAddContainsRemove(t *testing.T) {
	s := NewIPSet()

	assert.False(t, s.Contains("203.0.113.5"))
	s.Add("203.0.113.5")
	assert.True(t, s.Contains("203.0.113.5"))
	assert.Equal(t, 1, s.Len())

	s.Remove("203.0.113.5")
	assert.False(t, s.Contains("203.0.113.5"))
	assert.Equal(t, 0, s.Len())
}

func TestIPSetTTLExpiry(t *testing.T) {
	s := NewIPSet()

	s.AddWithTTL("203.0.113.5", 20*time.Millisecond)
	assert.True(t, s.Contains("203.0.113.5"))

	time.Sleep(40 * time.Millisecond)
	assert.False(t, s.Contains("203.0.113.5"))
}

func TestIPSetPermanentEntryNeverDowngraded(t *testing.T) {
	s := NewIPSet()

	s.Add("203.0.113.5")
	s.AddWithTTL("203.0.113.5", time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.True(t, s.Contains("203.0.113.5"))
}

func TestIPSetSnapshotOmitsExpired(t *testing.T) {
	s := NewIPSet()

	s.Add("198.51.100.1")
	s.AddWithTTL("198.51.100.2", time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	snapshot := s.Snapshot()
	assert.Equal(t, []string{"198.51.100.1"}, snapshot)
}

func TestIPSetSweepRemovesExpired(t *testing.T) {
	s := NewIPSet()

	s.Add("198.51.100.1")
	for i := 0; i < 5; i++ {
		s.AddWithTTL(fmt.Sprintf("203.0.113.%d", i), time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 5, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestIPSetConcurrentAccess(t *testing.T) {
	s := NewIPSet()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ip := fmt.Sprintf("10.0.%d.%d", n, j)
				s.Add(ip)
				s.Contains(ip)
				s.Snapshot()
				if j%2 == 0 {
					s.Remove(ip)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8*100, s.Len())
}
