package notifier

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
)

func alertNamed(title string) *models.Alert {
	return &models.Alert{Title: title}
}

func TestAlertRingNewestFirst(t *testing.T) {
	ring := NewAlertRing(10)

	for i := 0; i < 5; i++ {
		ring.Append(alertNamed(fmt.Sprintf("alert-%d", i)))
	}

	recent := ring.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "alert-4", recent[0].Title)
	assert.Equal(t, "alert-3", recent[1].Title)
	assert.Equal(t, "alert-2", recent[2].Title)
}

func TestAlertRingEvictsOldest(t *testing.T) {
	ring := NewAlertRing(1000)

	for i := 0; i < 2500; i++ {
		ring.Append(alertNamed(fmt.Sprintf("alert-%d", i)))
	}

	assert.Equal(t, 1000, ring.Len())

	recent := ring.Recent(1000)
	require.Len(t, recent, 1000)
	assert.Equal(t, "alert-2499", recent[0].Title)
	assert.Equal(t, "alert-1500", recent[999].Title)
}

func TestAlertRingRecentLimit(t *testing.T) {
	ring := NewAlertRing(1000)

	for i := 0; i < 200; i++ {
		ring.Append(alertNamed(fmt.Sprintf("alert-%d", i)))
	}

	assert.Len(t, ring.Recent(50), 50)
	assert.Len(t, ring.Recent(500), 200)
	// non-positive limits fall back to everything retained
	assert.Len(t, ring.Recent(0), 200)
}

func TestAlertRingConcurrentAppendAndRead(t *testing.T) {
	ring := NewAlertRing(100)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				ring.Append(alertNamed("alert"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				ring.Recent(50)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, ring.Len())
}
