package remediation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/config"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/repository/events"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

// AccountLocker applies and checks temporary account locks. The Redis
// implementation gives the lock its expiry via key TTL.
type AccountLocker interface {
	Lock(ctx context.Context, email string, ttl time.Duration) error
	IsLocked(ctx context.Context, email string) (bool, error)
	Unlock(ctx context.Context, email string) error
}

// StateMirror write-through persists the IP sets so they can be rebuilt
// after a restart. The in-memory sets stay authoritative for the hot path.
type StateMirror interface {
	AddBlockedIP(ctx context.Context, ip string) error
	AddSuspiciousIP(ctx context.Context, ip string, ttl time.Duration) error
	RemoveIP(ctx context.Context, ip string) error
	LoadBlockedIPs(ctx context.Context) ([]string, error)
	LoadSuspiciousIPs(ctx context.Context) ([]string, error)
}

// Engine applies automatic remediations and owns the process-wide
// blocked/suspicious IP state consulted by the ingress guard.
//
// Block entries stay until an administrator unblocks them; rate-limit
// entries expire on their own after the configured duration.
type Engine struct {
	blocked    *IPSet
	suspicious *IPSet
	locker     AccountLocker
	mirror     StateMirror // may be nil
	store      events.Store
	logger     *zap.Logger

	lockTTL      time.Duration
	rateLimitTTL time.Duration
}

func NewEngine(store events.Store, locker AccountLocker, mirror StateMirror, cfg config.SecurityConfig, logger *zap.Logger) *Engine {
	return &Engine{
		blocked:      NewIPSet(),
		suspicious:   NewIPSet(),
		locker:       locker,
		mirror:       mirror,
		store:        store,
		logger:       logger,
		lockTTL:      cfg.AccountLockDuration,
		rateLimitTTL: cfg.RateLimitDuration,
	}
}

// ApplyAutoFix executes one automatic remediation for the event that
// produced a finding, then appends an audit event referencing the original
// log. Applications are idempotent per fix type.
func (e *Engine) ApplyAutoFix(ctx context.Context, fix models.AutoFix, event *models.SecurityEvent) error {
	var description string

	switch fix {
	case models.FixNone:
		return nil

	case models.FixTemporaryBlock:
		if event.UserEmail == "" {
			return nil
		}
		if e.locker == nil {
			e.logger.Warn("No account locker configured, skipping temporary block",
				util.String("user_email", event.UserEmail))
			return nil
		}
		if err := e.locker.Lock(ctx, event.UserEmail, e.lockTTL); err != nil {
			return fmt.Errorf("failed to lock account %s: %w", event.UserEmail, err)
		}
		description = fmt.Sprintf("account %s locked for %s", event.UserEmail, e.lockTTL)

	case models.FixIPBlock:
		if event.IPAddress == "" {
			return nil
		}
		e.blocked.Add(event.IPAddress)
		e.mirrorWrite(ctx, func(m StateMirror) error {
			return m.AddBlockedIP(ctx, event.IPAddress)
		})
		description = fmt.Sprintf("IP %s blocked", event.IPAddress)

	case models.FixRateLimit:
		if event.IPAddress == "" {
			return nil
		}
		e.suspicious.AddWithTTL(event.IPAddress, e.rateLimitTTL)
		e.mirrorWrite(ctx, func(m StateMirror) error {
			return m.AddSuspiciousIP(ctx, event.IPAddress, e.rateLimitTTL)
		})
		description = fmt.Sprintf("IP %s rate limited for %s", event.IPAddress, e.rateLimitTTL)

	default:
		return fmt.Errorf("unknown auto fix type: %s", fix)
	}

	e.logger.Info("Auto fix applied",
		util.String("fix", string(fix)),
		util.String("ip", event.IPAddress),
		util.String("user_email", event.UserEmail),
		util.String("source_log_id", event.ID.String()),
	)

	return e.appendAudit(ctx, models.EventAutoFixApplied, description, event, map[string]string{
		"fix":           string(fix),
		"source_log_id": event.ID.String(),
	})
}

// UnblockIP removes an IP from both sets. Unblocking an unknown IP is a
// no-op success so the administrative action stays idempotent.
func (e *Engine) UnblockIP(ctx context.Context, ip, unblockedBy string) error {
	e.blocked.Remove(ip)
	e.suspicious.Remove(ip)
	e.mirrorWrite(ctx, func(m StateMirror) error {
		return m.RemoveIP(ctx, ip)
	})

	e.logger.Info("IP unblocked",
		util.String("ip", ip),
		util.String("unblocked_by", unblockedBy),
	)

	audit := &models.SecurityEvent{IPAddress: ip}
	return e.appendAudit(ctx, models.EventAccountUnlocked,
		fmt.Sprintf("IP %s unblocked by %s", ip, unblockedBy), audit,
		map[string]string{"unblocked_by": unblockedBy})
}

// IsIPBlocked reports whether all requests from ip must be denied.
func (e *Engine) IsIPBlocked(ip string) bool {
	return e.blocked.Contains(ip)
}

// IsIPRateLimited reports whether ip is under the stricter rate limit.
func (e *Engine) IsIPRateLimited(ip string) bool {
	return e.suspicious.Contains(ip)
}

// IsAccountLocked reports whether the account's temporary lock is active.
func (e *Engine) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	if e.locker == nil {
		return false, nil
	}
	return e.locker.IsLocked(ctx, email)
}

// BlockedIPs returns a snapshot of the blocked set.
func (e *Engine) BlockedIPs() []string {
	return e.blocked.Snapshot()
}

// SuspiciousIPs returns a snapshot of the rate-limited set.
func (e *Engine) SuspiciousIPs() []string {
	return e.suspicious.Snapshot()
}

// RestoreState rebuilds the in-memory sets from the mirror after a
// restart. The sets are derived projections, so a failed restore only
// loses remediation state, never log data.
func (e *Engine) RestoreState(ctx context.Context) error {
	if e.mirror == nil {
		return nil
	}

	blocked, err := e.mirror.LoadBlockedIPs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load blocked IPs: %w", err)
	}
	for _, ip := range blocked {
		e.blocked.Add(ip)
	}

	suspicious, err := e.mirror.LoadSuspiciousIPs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load suspicious IPs: %w", err)
	}
	for _, ip := range suspicious {
		e.suspicious.AddWithTTL(ip, e.rateLimitTTL)
	}

	e.logger.Info("Remediation state restored",
		util.Int("blocked_ips", len(blocked)),
		util.Int("suspicious_ips", len(suspicious)),
	)
	return nil
}

func (e *Engine) mirrorWrite(ctx context.Context, fn func(StateMirror) error) {
	if e.mirror == nil {
		return
	}
	if err := fn(e.mirror); err != nil {
		// Mirror loss is tolerable; the in-memory set already holds the fix.
		e.logger.Warn("Failed to mirror remediation state", util.ErrorField(err))
	}
}

func (e *Engine) appendAudit(ctx context.Context, eventType models.EventType, description string, source *models.SecurityEvent, metadata map[string]string) error {
	audit := &models.SecurityEvent{
		UserID:      source.UserID,
		UserEmail:   source.UserEmail,
		EventType:   eventType,
		Severity:    models.SeverityMedium,
		Description: description,
		IPAddress:   source.IPAddress,
		Metadata:    metadata,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.store.Insert(ctx, audit); err != nil {
		return fmt.Errorf("failed to append %s audit event: %w", eventType, err)
	}
	return nil
}
