package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/auth"
	"github.com/glorisonglotech/omnibiz-sub004/internal/config"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/notifier"
	"github.com/glorisonglotech/omnibiz-sub004/internal/remediation"
	"github.com/glorisonglotech/omnibiz-sub004/internal/repository/events"
)

// memStore implements events.Store in memory with working list, resolve
// and stats semantics.
type memStore struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (m *memStore) Insert(_ context.Context, event *models.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) CountRecent(context.Context, string, models.EventType, time.Duration) (int, error) {
	return 0, nil
}

func (m *memStore) List(_ context.Context, filter events.Filter, page, limit int) (*events.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	m.mu.Lock()
	matched := make([]*models.SecurityEvent, 0, len(m.events))
	for _, e := range m.events {
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		if filter.EventType != "" && e.EventType != filter.EventType {
			continue
		}
		if filter.Resolved != nil && e.Resolved != *filter.Resolved {
			continue
		}
		if filter.StartDate != nil && e.Timestamp.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && e.Timestamp.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, e)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := uint64(len(matched))
	totalPages := (len(matched) + limit - 1) / limit
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return &events.Page{
		Logs:        matched[start:end],
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, events.ErrNotFound
}

func (m *memStore) Resolve(_ context.Context, id uuid.UUID, resolvedBy, resolution string) (*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			now := time.Now().UTC()
			e.Resolved = true
			e.ResolvedBy = resolvedBy
			e.ResolvedAt = &now
			e.Resolution = resolution
			return e, nil
		}
	}
	return nil, events.ErrNotFound
}

func (m *memStore) Stats(_ context.Context, since time.Time) (*events.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &events.Stats{BySeverity: make(map[models.Severity]uint64)}
	for _, e := range m.events {
		if e.Timestamp.Before(since) {
			continue
		}
		stats.TotalEvents++
		stats.BySeverity[e.Severity]++
	}
	return stats, nil
}

func (m *memStore) HealthCheck(context.Context) error { return nil }

type fixture struct {
	store    *memStore
	engine   *remediation.Engine
	notifier *notifier.Notifier
	router   chi.Router
}

func newFixture() *fixture {
	logger := zap.NewNop()
	store := &memStore{}
	cfg := config.SecurityConfig{
		AccountLockDuration: 30 * time.Minute,
		RateLimitDuration:   time.Minute,
	}
	engine := remediation.NewEngine(store, nil, nil, cfg, logger)
	hub := notifier.NewHub(logger)
	not := notifier.NewNotifier(hub, nil, "", logger)

	h := NewSecurityHandler(store, engine, not, hub, logger)
	router := chi.NewRouter()
	router.Use(auth.Middleware)
	h.RegisterRoutes(router)

	return &fixture{store: store, engine: engine, notifier: not, router: router}
}

func (f *fixture) request(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, target, reader)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Auth-User-Id", "admin-1")
	r.Header.Set("X-Auth-User-Email", "admin@example.com")
	r.Header.Set("X-Auth-User-Role", "admin")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "error: %s", envelope.Error)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func seedEvents(t *testing.T, store *memStore, n int, severity models.Severity, eventType models.EventType) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.Insert(context.Background(), &models.SecurityEvent{
			EventType:   eventType,
			Severity:    severity,
			Description: fmt.Sprintf("event %d", i),
			IPAddress:   "203.0.113.5",
			Timestamp:   time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		}))
	}
}

func TestListLogsPagination(t *testing.T) {
	f := newFixture()
	seedEvents(t, f.store, 25, models.SeverityLow, models.EventAPIRequest)

	rec := f.request(t, http.MethodGet, "/security/logs?page=2&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page events.Page
	decodeData(t, rec, &page)
	assert.Equal(t, uint64(25), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Len(t, page.Logs, 10)
	// newest first: page 2 starts at the 11th most recent
	assert.Equal(t, "event 10", page.Logs[0].Description)
}

func TestListLogsSeverityFilter(t *testing.T) {
	f := newFixture()
	seedEvents(t, f.store, 5, models.SeverityLow, models.EventAPIRequest)
	seedEvents(t, f.store, 3, models.SeverityHigh, models.EventFailedRequest)

	rec := f.request(t, http.MethodGet, "/security/logs?severity=high", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page events.Page
	decodeData(t, rec, &page)
	require.Len(t, page.Logs, 3)
	for _, log := range page.Logs {
		assert.Equal(t, models.SeverityHigh, log.Severity)
	}
}

func TestListLogsRejectsUnknownSeverity(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodGet, "/security/logs?severity=apocalyptic", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStats(t *testing.T) {
	f := newFixture()
	seedEvents(t, f.store, 4, models.SeverityLow, models.EventAPIRequest)
	seedEvents(t, f.store, 2, models.SeverityCritical, models.EventSuspiciousActivity)
	require.NoError(t, f.engine.ApplyAutoFix(context.Background(), models.FixIPBlock, &models.SecurityEvent{
		ID:        uuid.New(),
		IPAddress: "198.51.100.9",
	}))

	rec := f.request(t, http.MethodGet, "/security/stats?timeRange=24", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report StatsReport
	decodeData(t, rec, &report)
	// 6 seeded plus the auto-fix audit event
	assert.Equal(t, uint64(7), report.TotalEvents)
	assert.Equal(t, uint64(2), report.BySeverity[models.SeverityCritical])
	assert.Contains(t, report.BlockedIPs, "198.51.100.9")
	assert.Equal(t, 24, report.TimeRangeHrs)
}

func TestGetStatsRejectsBadTimeRange(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodGet, "/security/stats?timeRange=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAlerts(t *testing.T) {
	f := newFixture()
	for i := 0; i < 3; i++ {
		f.notifier.Broadcast(context.Background(), models.Finding{
			Type:     models.AnomalySQLInjectionAttempt,
			Severity: models.SeverityCritical,
		}, &models.SecurityEvent{ID: uuid.New(), IPAddress: "203.0.113.5"})
	}

	rec := f.request(t, http.MethodGet, "/security/alerts?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var alerts []*models.Alert
	decodeData(t, rec, &alerts)
	assert.Len(t, alerts, 2)
}

func TestResolveLog(t *testing.T) {
	f := newFixture()
	event := &models.SecurityEvent{
		EventType: models.EventSuspiciousActivity,
		Severity:  models.SeverityCritical,
	}
	require.NoError(t, f.store.Insert(context.Background(), event))

	rec := f.request(t, http.MethodPatch,
		"/security/logs/"+event.ID.String()+"/resolve",
		map[string]string{"resolution": "false positive"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved models.SecurityEvent
	decodeData(t, rec, &resolved)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "admin@example.com", resolved.ResolvedBy)
	assert.Equal(t, "false positive", resolved.Resolution)
	assert.NotNil(t, resolved.ResolvedAt)
}

func TestResolveLogIdempotent(t *testing.T) {
	f := newFixture()
	event := &models.SecurityEvent{EventType: models.EventSuspiciousActivity, Severity: models.SeverityHigh}
	require.NoError(t, f.store.Insert(context.Background(), event))

	target := "/security/logs/" + event.ID.String() + "/resolve"
	rec := f.request(t, http.MethodPatch, target, map[string]string{"resolution": "first pass"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodPatch, target, map[string]string{"resolution": "second pass"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved models.SecurityEvent
	decodeData(t, rec, &resolved)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "second pass", resolved.Resolution)
}

func TestResolveLogNotFound(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPatch,
		"/security/logs/"+uuid.NewString()+"/resolve",
		map[string]string{"resolution": "anything"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveLogRequiresResolution(t *testing.T) {
	f := newFixture()
	event := &models.SecurityEvent{EventType: models.EventSuspiciousActivity, Severity: models.SeverityHigh}
	require.NoError(t, f.store.Insert(context.Background(), event))

	rec := f.request(t, http.MethodPatch,
		"/security/logs/"+event.ID.String()+"/resolve",
		map[string]string{"resolution": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnblockIP(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.engine.ApplyAutoFix(context.Background(), models.FixIPBlock, &models.SecurityEvent{
		ID:        uuid.New(),
		IPAddress: "203.0.113.5",
	}))
	require.True(t, f.engine.IsIPBlocked("203.0.113.5"))

	rec := f.request(t, http.MethodPost, "/security/unblock-ip",
		map[string]string{"ipAddress": "203.0.113.5"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, f.engine.IsIPBlocked("203.0.113.5"))
}

func TestUnblockUnknownIPSucceeds(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPost, "/security/unblock-ip",
		map[string]string{"ipAddress": "192.0.2.200"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnblockIPRequiresAddress(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPost, "/security/unblock-ip", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBlockedIPs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.engine.ApplyAutoFix(ctx, models.FixIPBlock, &models.SecurityEvent{
		ID: uuid.New(), IPAddress: "203.0.113.5",
	}))
	require.NoError(t, f.engine.ApplyAutoFix(ctx, models.FixRateLimit, &models.SecurityEvent{
		ID: uuid.New(), IPAddress: "198.51.100.9",
	}))

	rec := f.request(t, http.MethodGet, "/security/blocked-ips", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		BlockedIPs      []string `json:"blockedIPs"`
		SuspiciousIPs   []string `json:"suspiciousIPs"`
		TotalBlocked    int      `json:"totalBlocked"`
		TotalSuspicious int      `json:"totalSuspicious"`
	}
	decodeData(t, rec, &result)
	assert.Equal(t, []string{"203.0.113.5"}, result.BlockedIPs)
	assert.Equal(t, []string{"198.51.100.9"}, result.SuspiciousIPs)
	assert.Equal(t, 1, result.TotalBlocked)
	assert.Equal(t, 1, result.TotalSuspicious)
}

func TestRoutesRequireAdminRole(t *testing.T) {
	f := newFixture()

	// No identity at all
	r := httptest.NewRequest(http.MethodGet, "/security/logs", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Authenticated but not an admin
	r = httptest.NewRequest(http.MethodGet, "/security/logs", nil)
	r.Header.Set("X-Auth-User-Id", "user-1")
	r.Header.Set("X-Auth-User-Role", "member")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Super admin passes
	r = httptest.NewRequest(http.MethodGet, "/security/logs", nil)
	r.Header.Set("X-Auth-User-Id", "root-1")
	r.Header.Set("X-Auth-User-Role", "super_admin")
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}
