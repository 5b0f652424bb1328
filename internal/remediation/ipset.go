package remediation

import (
	"sync"
	"time"
)

// IPSet is a concurrency-safe set of IP addresses with optional per-entry
// expiry. It sits on the request hot path: every inbound request checks
// membership, while writes arrive rarely from the async pipeline, so reads
// take the shared lock.
type IPSet struct {
	mu      sync.RWMutex
	entries map[string]time.Time // zero time = permanent
}

func NewIPSet() *IPSet {
	return &IPSet{entries: make(map[string]time.Time)}
}

// Add inserts ip permanently. Re-adding an expiring entry upgrades it to
// permanent.
func (s *IPSet) Add(ip string) {
	if ip == "" {
		return
	}
	s.mu.Lock()
	s.entries[ip] = time.Time{}
	s.mu.Unlock()
}

// AddWithTTL inserts ip with an expiry. A permanent entry is never
// downgraded to an expiring one.
func (s *IPSet) AddWithTTL(ip string, ttl time.Duration) {
	if ip == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[ip]; ok && existing.IsZero() {
		return
	}
	s.entries[ip] = time.Now().Add(ttl)
}

// Contains reports membership. Expired entries read as absent; they are
// physically removed by the next write or Sweep.
func (s *IPSet) Contains(ip string) bool {
	s.mu.RLock()
	expiry, ok := s.entries[ip]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return expiry.IsZero() || time.Now().Before(expiry)
}

// Remove deletes ip from the set.
func (s *IPSet) Remove(ip string) {
	s.mu.Lock()
	delete(s.entries, ip)
	s.mu.Unlock()
}

// Snapshot returns the live (non-expired) members.
func (s *IPSet) Snapshot() []string {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	ips := make([]string, 0, len(s.entries))
	for ip, expiry := range s.entries {
		if expiry.IsZero() || now.Before(expiry) {
			ips = append(ips, ip)
		}
	}
	return ips
}

// Len returns the number of live members.
func (s *IPSet) Len() int {
	return len(s.Snapshot())
}

// Sweep removes expired entries and returns how many were dropped.
func (s *IPSet) Sweep() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for ip, expiry := range s.entries {
		if !expiry.IsZero() && !now.Before(expiry) {
			delete(s.entries, ip)
			removed++
		}
	}
	return removed
}
