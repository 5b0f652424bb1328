package notifier

import (
	"sync"

	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
)

// AlertRing is a fixed-capacity ring buffer of recent alerts. The async
// detection pipeline appends while the reporting API reads snapshots, so
// all access goes through the lock. Oldest entries are evicted first.
type AlertRing struct {
	mu   sync.RWMutex
	buf  []*models.Alert
	next int
	full bool
}

func NewAlertRing(capacity int) *AlertRing {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AlertRing{buf: make([]*models.Alert, capacity)}
}

// Append stores one alert, evicting the oldest when full.
func (r *AlertRing) Append(alert *models.Alert) {
	r.mu.Lock()
	r.buf[r.next] = alert
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// Recent returns up to limit alerts, most recent first. limit <= 0 or
// beyond the retained count returns everything retained.
func (r *AlertRing) Recent(limit int) []*models.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]*models.Alert, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := r.next - i
		if idx < 0 {
			idx += len(r.buf)
		}
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of retained alerts.
func (r *AlertRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}
