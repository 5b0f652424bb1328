package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/config"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
)

// fakeCounter returns canned counts keyed by identifier+eventType.
type fakeCounter struct {
	counts map[string]int
	err    error
}

func (f *fakeCounter) CountRecent(_ context.Context, identifier string, eventType models.EventType, _ time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[identifier+"/"+string(eventType)], nil
}

func testConfig() config.SecurityConfig {
	return config.SecurityConfig{
		LoginFailureThreshold:  5,
		LoginFailureWindow:     5 * time.Minute,
		APIRateThreshold:       100,
		APIRateWindow:          time.Minute,
		FailedRequestThreshold: 20,
		FailedRequestWindow:    5 * time.Minute,
		UnusualHoursStart:      2,
		UnusualHoursEnd:        6,
		SensitivePaths:         []string{"/admin", "/config", "/env", "/.git", "/backup"},
	}
}

// newTestDetector pins the clock to noon so the access-time advisory stays
// quiet unless a test moves it.
func newTestDetector(counter *fakeCounter) *Detector {
	d := NewDetector(counter, testConfig(), zap.NewNop())
	d.now = func() time.Time {
		return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return d
}

func findingOfType(findings []models.Finding, typ models.AnomalyType) *models.Finding {
	for i := range findings {
		if findings[i].Type == typ {
			return &findings[i]
		}
	}
	return nil
}

func TestEvaluateLoginFailures(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int{
		"bob@example.com/login_failed": 5,
	}}
	d := newTestDetector(counter)

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType: models.EventLoginFailed,
		UserEmail: "bob@example.com",
		IPAddress: "198.51.100.7",
	})

	finding := findingOfType(findings, models.AnomalyExcessiveLoginFailures)
	require.NotNil(t, finding)
	assert.Equal(t, models.SeverityHigh, finding.Severity)
	assert.Equal(t, models.FixTemporaryBlock, finding.AutoFix)
}

func TestEvaluateLoginFailuresBelowThreshold(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int{
		"bob@example.com/login_failed": 4,
	}}
	d := newTestDetector(counter)

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType: models.EventLoginFailed,
		UserEmail: "bob@example.com",
	})

	assert.Nil(t, findingOfType(findings, models.AnomalyExcessiveLoginFailures))
}

func TestEvaluateAPIRate(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int{
		"user-1/api_request": 100,
	}}
	d := newTestDetector(counter)

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType: models.EventAPIRequest,
		UserID:    "user-1",
		IPAddress: "198.51.100.7",
	})

	finding := findingOfType(findings, models.AnomalyAPIRateLimitExceeded)
	require.NotNil(t, finding)
	assert.Equal(t, models.SeverityMedium, finding.Severity)
	assert.Equal(t, models.FixRateLimit, finding.AutoFix)
}

func TestEvaluateFailedRequestsFallsBackToIP(t *testing.T) {
	// 21 failed requests from one IP with no user id, as from an
	// unauthenticated scanner.
	counter := &fakeCounter{counts: map[string]int{
		"203.0.113.5/failed_request": 21,
	}}
	d := newTestDetector(counter)

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType:  models.EventFailedRequest,
		IPAddress:  "203.0.113.5",
		StatusCode: 404,
	})

	finding := findingOfType(findings, models.AnomalyExcessiveFailedRequests)
	require.NotNil(t, finding)
	assert.Equal(t, models.SeverityHigh, finding.Severity)
	assert.Equal(t, models.FixIPBlock, finding.AutoFix)
}

func TestEvaluateFailedRequestsIgnoresSuccessStatus(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int{
		"203.0.113.5/failed_request": 50,
	}}
	d := newTestDetector(counter)

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType:  models.EventAPIRequest,
		IPAddress:  "203.0.113.5",
		StatusCode: 200,
	})

	assert.Nil(t, findingOfType(findings, models.AnomalyExcessiveFailedRequests))
}

func TestEvaluateUnusualAccessTime(t *testing.T) {
	d := newTestDetector(&fakeCounter{})
	event := &models.SecurityEvent{EventType: models.EventAPIRequest, IPAddress: "198.51.100.7"}

	tests := []struct {
		hour int
		want bool
	}{
		{1, false},
		{2, true}, // window start is inclusive
		{4, true},
		{5, true},
		{6, false}, // window end is exclusive
		{12, false},
	}
	for _, tt := range tests {
		d.now = func() time.Time {
			return time.Date(2024, 3, 15, tt.hour, 30, 0, 0, time.UTC)
		}
		finding := findingOfType(d.Evaluate(context.Background(), event), models.AnomalyUnusualAccessTime)
		if tt.want {
			require.NotNil(t, finding, "hour %d", tt.hour)
			assert.Equal(t, models.FixNone, finding.AutoFix)
		} else {
			assert.Nil(t, finding, "hour %d", tt.hour)
		}
	}
}

func TestEvaluateSensitiveEndpoint(t *testing.T) {
	d := newTestDetector(&fakeCounter{})

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType: models.EventAPIRequest,
		Endpoint:  "/api/v1/admin/settings",
		IPAddress: "198.51.100.7",
	})

	finding := findingOfType(findings, models.AnomalySuspiciousEndpoint)
	require.NotNil(t, finding)
	assert.Equal(t, models.SeverityCritical, finding.Severity)
	assert.Equal(t, models.FixIPBlock, finding.AutoFix)
}

func TestEvaluateInjectionSignatures(t *testing.T) {
	d := newTestDetector(&fakeCounter{})

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType: models.EventAPIRequest,
		Endpoint:  `/api/users?id=1' OR '1'='1`,
		IPAddress: "198.51.100.7",
	})
	finding := findingOfType(findings, models.AnomalySQLInjectionAttempt)
	require.NotNil(t, finding)
	assert.Equal(t, models.FixIPBlock, finding.AutoFix)

	findings = d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType: models.EventAPIRequest,
		Endpoint:  "/comment?text=<script>alert(1)</script>",
		IPAddress: "198.51.100.7",
	})
	finding = findingOfType(findings, models.AnomalyXSSAttempt)
	require.NotNil(t, finding)
	assert.Equal(t, models.SeverityCritical, finding.Severity)
}

func TestEvaluateMultipleFindingsFromOneEvent(t *testing.T) {
	// A sensitive path carrying an injection payload trips both rules.
	d := newTestDetector(&fakeCounter{})

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType: models.EventAPIRequest,
		Endpoint:  `/admin/users?id=1' OR '1'='1`,
		IPAddress: "198.51.100.7",
	})

	assert.NotNil(t, findingOfType(findings, models.AnomalySuspiciousEndpoint))
	assert.NotNil(t, findingOfType(findings, models.AnomalySQLInjectionAttempt))
	assert.GreaterOrEqual(t, len(findings), 2)
}

func TestEvaluateRuleErrorDoesNotAbortOthers(t *testing.T) {
	// The window counter fails, but the signature rules still run.
	counter := &fakeCounter{err: errors.New("store unavailable")}
	d := newTestDetector(counter)

	findings := d.Evaluate(context.Background(), &models.SecurityEvent{
		EventType:  models.EventLoginFailed,
		UserEmail:  "bob@example.com",
		Endpoint:   "/login?next=<script>alert(1)</script>",
		StatusCode: 401,
	})

	assert.Nil(t, findingOfType(findings, models.AnomalyExcessiveLoginFailures))
	assert.NotNil(t, findingOfType(findings, models.AnomalyXSSAttempt))
}
