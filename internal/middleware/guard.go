package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/auth"
	"github.com/glorisonglotech/omnibiz-sub004/internal/detector"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/repository/events"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

// IPChecker exposes the remediation state the guard consults on every
// request. Both lookups are in-memory set reads.
type IPChecker interface {
	IsIPBlocked(ip string) bool
	IsIPRateLimited(ip string) bool
}

// AccountChecker reports temporary account locks so auth attempts for a
// locked account keep failing until the lock expires.
type AccountChecker interface {
	IsAccountLocked(ctx context.Context, identifier string) (bool, error)
}

// Submitter is the fire-and-forget entry into the detection pipeline.
type Submitter interface {
	Submit(event *models.SecurityEvent)
}

// Guard fronts every request: it rejects blocked and rate-limited IPs
// before any handler runs, scans inputs for injection signatures, and
// after the response classifies the request into a security event that it
// hands to the async pipeline.
type Guard struct {
	checker      IPChecker
	accounts     AccountChecker
	store        events.Store
	pipeline     Submitter
	maxBodyScan  int64
	rateLimitTTL time.Duration
	skipPaths    []string
	logger       *zap.Logger
}

type GuardOptions struct {
	MaxBodyScanBytes int64
	RateLimitWindow  time.Duration
	SkipPaths        []string
}

func NewGuard(checker IPChecker, accounts AccountChecker, store events.Store, pipeline Submitter, opts GuardOptions, logger *zap.Logger) *Guard {
	if opts.MaxBodyScanBytes <= 0 {
		opts.MaxBodyScanBytes = 1 << 20
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	return &Guard{
		checker:      checker,
		accounts:     accounts,
		store:        store,
		pipeline:     pipeline,
		maxBodyScan:  opts.MaxBodyScanBytes,
		rateLimitTTL: opts.RateLimitWindow,
		skipPaths:    opts.SkipPaths,
		logger:       logger,
	}
}

func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := ClientIP(r)

		if g.checker.IsIPBlocked(ip) {
			g.deny(w, http.StatusForbidden, "access denied")
			return
		}

		if g.checker.IsIPRateLimited(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(int(g.rateLimitTTL.Seconds())))
			g.deny(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}

		if isLoginPath(r.URL.Path) && g.accountLocked(r) {
			g.pipeline.Submit(g.lockedAttemptEvent(r, ip))
			g.deny(w, http.StatusForbidden, "account temporarily locked")
			return
		}

		if offending, ok := g.scanRequest(r); ok {
			g.logInjectionAttempt(r, ip, offending)
			g.deny(w, http.StatusBadRequest, "invalid input detected")
			return
		}

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		g.pipeline.Submit(g.classify(r, ip, ww.Status(), elapsed))
	})
}

func (g *Guard) skipped(path string) bool {
	for _, p := range g.skipPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// accountLocked checks whether the caller's account is under an active
// temporary lock. Only identifiers the gateway authenticated are checked,
// so anonymous traffic never pays the lookup.
func (g *Guard) accountLocked(r *http.Request) bool {
	if g.accounts == nil {
		return false
	}
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return false
	}
	for _, identifier := range []string{id.ID, id.Email} {
		if identifier == "" {
			continue
		}
		locked, err := g.accounts.IsAccountLocked(r.Context(), identifier)
		if err != nil {
			g.logger.Error("Account lock lookup failed",
				util.String("identifier", identifier),
				util.ErrorField(err),
			)
			continue
		}
		if locked {
			return true
		}
	}
	return false
}

// lockedAttemptEvent records an auth attempt rejected by an active lock.
// It still enters the pipeline so repeated attempts keep the lock warm.
func (g *Guard) lockedAttemptEvent(r *http.Request, ip string) *models.SecurityEvent {
	event := g.baseEvent(r, ip)
	event.EventType = models.EventLoginFailed
	event.Severity = models.SeverityMedium
	event.StatusCode = http.StatusForbidden
	event.Description = "Login attempt against a locked account"
	return event
}

func (g *Guard) deny(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// scanRequest checks every query parameter value and every string leaf of
// a JSON body against the injection signatures. The body is restored so
// downstream handlers can still read it.
func (g *Guard) scanRequest(r *http.Request) (string, bool) {
	for _, values := range r.URL.Query() {
		for _, v := range values {
			if detector.DetectSQLInjection(v) || detector.DetectXSS(v) {
				return v, true
			}
		}
	}

	if r.Body == nil || r.ContentLength == 0 {
		return "", false
	}
	ct := r.Header.Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, g.maxBodyScan))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil || len(body) == 0 {
		return "", false
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false
	}
	return scanValue(parsed)
}

func scanValue(v interface{}) (string, bool) {
	switch value := v.(type) {
	case string:
		if detector.DetectSQLInjection(value) || detector.DetectXSS(value) {
			return value, true
		}
	case map[string]interface{}:
		for _, nested := range value {
			if s, ok := scanValue(nested); ok {
				return s, true
			}
		}
	case []interface{}:
		for _, nested := range value {
			if s, ok := scanValue(nested); ok {
				return s, true
			}
		}
	}
	return "", false
}

// logInjectionAttempt records the rejected request synchronously. The
// request never reaches a handler so it must not enter the async pipeline,
// where it would also count toward its own thresholds.
func (g *Guard) logInjectionAttempt(r *http.Request, ip, offending string) {
	event := g.baseEvent(r, ip)
	event.EventType = models.EventSuspiciousActivity
	event.Severity = models.SeverityCritical
	event.Description = "Injection signature detected in request input"
	event.Metadata = map[string]string{
		"payload_excerpt": truncate(offending, 256),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.store.Insert(ctx, event); err != nil {
		g.logger.Error("Failed to log injection attempt",
			util.String("ip", ip),
			util.ErrorField(err),
		)
	}
}

// classify turns a completed request into a security event using
// method/status/path heuristics.
func (g *Guard) classify(r *http.Request, ip string, status int, elapsed time.Duration) *models.SecurityEvent {
	event := g.baseEvent(r, ip)
	event.StatusCode = int32(status)
	event.Metadata = map[string]string{
		"response_time_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
	}

	path := strings.ToLower(r.URL.Path)
	switch {
	case isLoginPath(path):
		if status >= 200 && status < 300 {
			event.EventType = models.EventLoginSuccess
			event.Severity = models.SeverityLow
			event.Description = "Successful login"
		} else {
			event.EventType = models.EventLoginFailed
			event.Severity = models.SeverityMedium
			event.Description = "Failed login attempt"
		}
	case strings.Contains(path, "/logout"):
		event.EventType = models.EventLogout
		event.Severity = models.SeverityLow
		event.Description = "User logout"
	case strings.Contains(path, "/password"):
		event.EventType = models.EventPasswordChange
		event.Severity = models.SeverityMedium
		event.Description = "Password change request"
	case status >= 500:
		event.EventType = models.EventFailedRequest
		event.Severity = models.SeverityHigh
		event.Description = "Server error response"
	case status >= 400:
		event.EventType = models.EventFailedRequest
		event.Severity = models.SeverityMedium
		event.Description = "Client error response"
	case r.Method == http.MethodDelete:
		event.EventType = models.EventDataDeletion
		event.Severity = models.SeverityMedium
		event.Description = "Resource deleted"
	case r.Method == http.MethodPut || r.Method == http.MethodPatch:
		event.EventType = models.EventDataModification
		event.Severity = models.SeverityLow
		event.Description = "Resource modified"
	default:
		event.EventType = models.EventAPIRequest
		event.Severity = models.SeverityLow
		event.Description = "API request"
	}
	return event
}

func (g *Guard) baseEvent(r *http.Request, ip string) *models.SecurityEvent {
	event := &models.SecurityEvent{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.RequestURI(),
		Method:    r.Method,
	}
	if id, ok := auth.FromContext(r.Context()); ok {
		event.UserID = id.ID
		event.UserEmail = id.Email
	}
	return event
}

func isLoginPath(path string) bool {
	return strings.Contains(strings.ToLower(path), "/login")
}

// ClientIP resolves the caller address, honoring the proxy headers the
// platform gateway sets.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
