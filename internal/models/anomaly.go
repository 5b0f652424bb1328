package models

import (
	"time"

	"github.com/google/uuid"
)

// AnomalyType identifies which detection rule produced a finding.
type AnomalyType string

const (
	AnomalyExcessiveLoginFailures  AnomalyType = "excessive_login_failures"
	AnomalyAPIRateLimitExceeded    AnomalyType = "api_rate_limit_exceeded"
	AnomalyExcessiveFailedRequests AnomalyType = "excessive_failed_requests"
	AnomalyUnusualAccessTime       AnomalyType = "unusual_access_time"
	AnomalySuspiciousEndpoint      AnomalyType = "suspicious_endpoint_access"
	AnomalySQLInjectionAttempt     AnomalyType = "sql_injection_attempt"
	AnomalyXSSAttempt              AnomalyType = "xss_attempt"
)

// AutoFix is the remediation action attached to a finding.
type AutoFix string

const (
	FixTemporaryBlock AutoFix = "temporary_block"
	FixIPBlock        AutoFix = "ip_block"
	FixRateLimit      AutoFix = "rate_limit"
	FixNone           AutoFix = "none"
)

// Finding is one anomaly produced by evaluating a single event. Findings
// are ephemeral; they are not persisted as their own entity.
type Finding struct {
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Suggestion  string      `json:"suggestion"`
	AutoFix     AutoFix     `json:"autoFix"`
}

// Alert is the notification payload fanned out to administrator sessions
// and retained in the in-memory ring buffer for dashboard backfill.
type Alert struct {
	ID         uuid.UUID   `json:"id"`
	Title      string      `json:"title"`
	Type       AnomalyType `json:"type"`
	Severity   Severity    `json:"severity"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
	LogID      uuid.UUID   `json:"logId"`
	UserID     string      `json:"userId,omitempty"`
	UserEmail  string      `json:"userEmail,omitempty"`
	IPAddress  string      `json:"ipAddress,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}
