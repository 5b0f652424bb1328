package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how dangerous an event or finding is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// EventType is the closed enumeration of security event kinds.
type EventType string

const (
	EventLoginSuccess       EventType = "login_success"
	EventLoginFailed        EventType = "login_failed"
	EventLogout             EventType = "logout"
	EventPasswordChange     EventType = "password_change"
	EventPasswordReset      EventType = "password_reset"
	EventAPIRequest         EventType = "api_request"
	EventFailedRequest      EventType = "failed_request"
	EventPermissionChange   EventType = "permission_change"
	EventDataAccess         EventType = "data_access"
	EventDataModification   EventType = "data_modification"
	EventDataDeletion       EventType = "data_deletion"
	EventFileUpload         EventType = "file_upload"
	EventFileDownload       EventType = "file_download"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventAutoFixApplied     EventType = "auto_fix_applied"
	EventAccountLocked      EventType = "account_locked"
	EventAccountUnlocked    EventType = "account_unlocked"
	EventIPBlocked          EventType = "ip_blocked"
	EventRateLimitApplied   EventType = "rate_limit_applied"
)

// ValidEventType reports whether t is one of the known event types.
func ValidEventType(t EventType) bool {
	switch t {
	case EventLoginSuccess, EventLoginFailed, EventLogout, EventPasswordChange,
		EventPasswordReset, EventAPIRequest, EventFailedRequest,
		EventPermissionChange, EventDataAccess, EventDataModification,
		EventDataDeletion, EventFileUpload, EventFileDownload,
		EventSuspiciousActivity, EventAutoFixApplied, EventAccountLocked,
		EventAccountUnlocked, EventIPBlocked, EventRateLimitApplied:
		return true
	}
	return false
}

// SecurityEvent is the durable record of a single inbound request or
// system action. Events are immutable after creation except for the
// resolution fields; window counts and the audit trail depend on
// event_type, severity and timestamp never changing.
type SecurityEvent struct {
	ID          uuid.UUID         `json:"id"`
	UserID      string            `json:"userId,omitempty"`
	UserEmail   string            `json:"userEmail,omitempty"`
	EventType   EventType         `json:"eventType"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	IPAddress   string            `json:"ipAddress,omitempty"`
	UserAgent   string            `json:"userAgent,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`
	Method      string            `json:"method,omitempty"`
	StatusCode  int32             `json:"statusCode,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Resolved    bool              `json:"resolved"`
	ResolvedBy  string            `json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time        `json:"resolvedAt,omitempty"`
	Resolution  string            `json:"resolution,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Identifier returns the primary actor identity used for bucketing:
// user id when present, then email, then source IP.
func (e *SecurityEvent) Identifier() string {
	if e.UserID != "" {
		return e.UserID
	}
	if e.UserEmail != "" {
		return e.UserEmail
	}
	return e.IPAddress
}
