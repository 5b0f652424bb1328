package detector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/config"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

// Counter is the sliding-window view of the event log the rules depend on.
// Satisfied by the events store; tests substitute an in-memory fake.
type Counter interface {
	CountRecent(ctx context.Context, identifier string, eventType models.EventType, window time.Duration) (int, error)
}

// rule is one independent detection check. Rules never short-circuit each
// other; a single event may produce several findings.
type rule struct {
	name  models.AnomalyType
	apply func(ctx context.Context, event *models.SecurityEvent) (*models.Finding, error)
}

// Detector evaluates every incoming security event against the ordered
// rule set: threshold checks over sliding windows, static signature
// checks, and the access-time advisory.
type Detector struct {
	store  Counter
	cfg    config.SecurityConfig
	logger *zap.Logger
	now    func() time.Time
	rules  []rule
}

func NewDetector(store Counter, cfg config.SecurityConfig, logger *zap.Logger) *Detector {
	d := &Detector{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	d.rules = []rule{
		{models.AnomalyExcessiveLoginFailures, d.checkLoginFailures},
		{models.AnomalyAPIRateLimitExceeded, d.checkAPIRate},
		{models.AnomalyExcessiveFailedRequests, d.checkFailedRequests},
		{models.AnomalyUnusualAccessTime, d.checkAccessTime},
		{models.AnomalySuspiciousEndpoint, d.checkSensitiveEndpoint},
		{models.AnomalySQLInjectionAttempt, d.checkSQLInjection},
		{models.AnomalyXSSAttempt, d.checkXSS},
	}
	return d
}

// Evaluate runs every rule against the event and returns all findings.
// A failing rule is logged and skipped; it never aborts the remaining
// rules, since each is independent.
func (d *Detector) Evaluate(ctx context.Context, event *models.SecurityEvent) []models.Finding {
	findings := make([]models.Finding, 0, 2)

	for _, r := range d.rules {
		finding, err := r.apply(ctx, event)
		if err != nil {
			d.logger.Error("Detection rule failed",
				util.String("rule", string(r.name)),
				util.String("event_id", event.ID.String()),
				util.ErrorField(err),
			)
			continue
		}
		if finding != nil {
			findings = append(findings, *finding)
		}
	}

	if len(findings) > 0 {
		d.logger.Warn("Anomalies detected",
			util.String("event_id", event.ID.String()),
			util.Int("findings", len(findings)),
			util.String("ip", event.IPAddress),
		)
	}
	return findings
}

func (d *Detector) checkLoginFailures(ctx context.Context, event *models.SecurityEvent) (*models.Finding, error) {
	if event.EventType != models.EventLoginFailed || event.UserEmail == "" {
		return nil, nil
	}

	count, err := d.store.CountRecent(ctx, event.UserEmail, models.EventLoginFailed, d.cfg.LoginFailureWindow)
	if err != nil {
		return nil, err
	}
	if count < d.cfg.LoginFailureThreshold {
		return nil, nil
	}

	return &models.Finding{
		Type:     models.AnomalyExcessiveLoginFailures,
		Severity: models.SeverityHigh,
		Description: fmt.Sprintf("%d failed login attempts for %s within %s",
			count, event.UserEmail, d.cfg.LoginFailureWindow),
		Suggestion: "Account temporarily locked. Verify the owner initiated these attempts before unlocking.",
		AutoFix:    models.FixTemporaryBlock,
	}, nil
}

func (d *Detector) checkAPIRate(ctx context.Context, event *models.SecurityEvent) (*models.Finding, error) {
	if event.UserID == "" {
		return nil, nil
	}

	count, err := d.store.CountRecent(ctx, event.UserID, models.EventAPIRequest, d.cfg.APIRateWindow)
	if err != nil {
		return nil, err
	}
	if count < d.cfg.APIRateThreshold {
		return nil, nil
	}

	return &models.Finding{
		Type:     models.AnomalyAPIRateLimitExceeded,
		Severity: models.SeverityMedium,
		Description: fmt.Sprintf("user %s issued %d API requests within %s",
			event.UserID, count, d.cfg.APIRateWindow),
		Suggestion: "Source IP placed under rate limiting. Check for runaway integrations or scripted access.",
		AutoFix:    models.FixRateLimit,
	}, nil
}

func (d *Detector) checkFailedRequests(ctx context.Context, event *models.SecurityEvent) (*models.Finding, error) {
	if event.StatusCode < 400 {
		return nil, nil
	}

	identifier := event.UserID
	if identifier == "" {
		identifier = event.IPAddress
	}
	if identifier == "" {
		return nil, nil
	}

	count, err := d.store.CountRecent(ctx, identifier, models.EventFailedRequest, d.cfg.FailedRequestWindow)
	if err != nil {
		return nil, err
	}
	if count < d.cfg.FailedRequestThreshold {
		return nil, nil
	}

	return &models.Finding{
		Type:     models.AnomalyExcessiveFailedRequests,
		Severity: models.SeverityHigh,
		Description: fmt.Sprintf("%d failed requests from %s within %s",
			count, identifier, d.cfg.FailedRequestWindow),
		Suggestion: "Source IP blocked. Review the request pattern for scanning or brute forcing.",
		AutoFix:    models.FixIPBlock,
	}, nil
}

// checkAccessTime fires for every event inside the configured hour window.
// It is a low-confidence advisory, never a block.
func (d *Detector) checkAccessTime(_ context.Context, event *models.SecurityEvent) (*models.Finding, error) {
	hour := d.now().UTC().Hour()
	if hour < d.cfg.UnusualHoursStart || hour >= d.cfg.UnusualHoursEnd {
		return nil, nil
	}

	return &models.Finding{
		Type:     models.AnomalyUnusualAccessTime,
		Severity: models.SeverityMedium,
		Description: fmt.Sprintf("activity at %02d:00 UTC, inside the unusual-hours window [%02d:00, %02d:00)",
			hour, d.cfg.UnusualHoursStart, d.cfg.UnusualHoursEnd),
		Suggestion: "Confirm the actor normally works these hours.",
		AutoFix:    models.FixNone,
	}, nil
}

func (d *Detector) checkSensitiveEndpoint(_ context.Context, event *models.SecurityEvent) (*models.Finding, error) {
	if event.Endpoint == "" {
		return nil, nil
	}
	for _, path := range d.cfg.SensitivePaths {
		if strings.Contains(event.Endpoint, path) {
			return &models.Finding{
				Type:        models.AnomalySuspiciousEndpoint,
				Severity:    models.SeverityCritical,
				Description: fmt.Sprintf("access to sensitive path %q via %s", path, event.Endpoint),
				Suggestion:  "Source IP blocked. Verify whether this was an authorized administrative action.",
				AutoFix:     models.FixIPBlock,
			}, nil
		}
	}
	return nil, nil
}

func (d *Detector) checkSQLInjection(_ context.Context, event *models.SecurityEvent) (*models.Finding, error) {
	if !DetectSQLInjection(event.Endpoint) {
		return nil, nil
	}
	return &models.Finding{
		Type:        models.AnomalySQLInjectionAttempt,
		Severity:    models.SeverityCritical,
		Description: fmt.Sprintf("SQL injection signature in endpoint %s", event.Endpoint),
		Suggestion:  "Source IP blocked. Audit the targeted endpoint for injection exposure.",
		AutoFix:     models.FixIPBlock,
	}, nil
}

func (d *Detector) checkXSS(_ context.Context, event *models.SecurityEvent) (*models.Finding, error) {
	if !DetectXSS(event.Endpoint) {
		return nil, nil
	}
	return &models.Finding{
		Type:        models.AnomalyXSSAttempt,
		Severity:    models.SeverityCritical,
		Description: fmt.Sprintf("XSS signature in endpoint %s", event.Endpoint),
		Suggestion:  "Source IP blocked. Audit the targeted endpoint for output encoding gaps.",
		AutoFix:     models.FixIPBlock,
	}, nil
}
