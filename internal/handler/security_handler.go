package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/glorisonglotech/omnibiz-sub004/internal/auth"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/notifier"
	"github.com/glorisonglotech/omnibiz-sub004/internal/remediation"
	"github.com/glorisonglotech/omnibiz-sub004/internal/repository/events"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

var (
	// ErrInvalidInput is returned for malformed request parameters or bodies.
	ErrInvalidInput = errors.New("invalid input")
)

// SecurityHandler serves the administrative reporting surface: log
// queries, aggregate stats, alerts, resolution and IP unblocking.
type SecurityHandler struct {
	store    events.Store
	engine   *remediation.Engine
	notifier *notifier.Notifier
	hub      *notifier.Hub
	logger   *zap.Logger
}

func NewSecurityHandler(store events.Store, engine *remediation.Engine, not *notifier.Notifier, hub *notifier.Hub, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{
		store:    store,
		engine:   engine,
		notifier: not,
		hub:      hub,
		logger:   logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers the admin security routes.
func (h *SecurityHandler) RegisterRoutes(router chi.Router) {
	router.Route("/security", func(r chi.Router) {
		r.Use(auth.RequireRole("admin", "super_admin"))

		r.Get("/logs", h.ListLogs)
		r.Get("/stats", h.GetStats)
		r.Get("/alerts", h.ListAlerts)
		r.Patch("/logs/{logID}/resolve", h.ResolveLog)
		r.Post("/unblock-ip", h.UnblockIP)
		r.Get("/blocked-ips", h.ListBlockedIPs)
		r.Get("/ws", h.ServeWS)
	})
}

// ListLogs handles GET /security/logs with pagination and filters.
func (h *SecurityHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	filter := events.Filter{}
	if s := q.Get("severity"); s != "" {
		sev := models.Severity(strings.ToLower(s))
		if !models.ValidSeverity(sev) {
			h.respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, s), "Invalid severity filter")
			return
		}
		filter.Severity = sev
	}
	if t := q.Get("eventType"); t != "" {
		et := models.EventType(strings.ToLower(t))
		if !models.ValidEventType(et) {
			h.respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, t), "Invalid event type filter")
			return
		}
		filter.EventType = et
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: resolved must be a boolean", ErrInvalidInput), "Invalid resolved filter")
			return
		}
		filter.Resolved = &resolved
	}
	if v := q.Get("startDate"); v != "" {
		ts, err := parseDate(v)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: startDate must be RFC3339 or YYYY-MM-DD", ErrInvalidInput), "Invalid date filter")
			return
		}
		filter.StartDate = &ts
	}
	if v := q.Get("endDate"); v != "" {
		ts, err := parseDate(v)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: endDate must be RFC3339 or YYYY-MM-DD", ErrInvalidInput), "Invalid date filter")
			return
		}
		filter.EndDate = &ts
	}

	result, err := h.store.List(r.Context(), filter, page, limit)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to query security logs")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Security logs retrieved"))
}

// StatsReport is the aggregate returned by GET /security/stats.
type StatsReport struct {
	TotalEvents   uint64                     `json:"totalEvents"`
	BySeverity    map[models.Severity]uint64 `json:"bySeverity"`
	RecentAlerts  []*models.Alert            `json:"recentAlerts"`
	BlockedIPs    []string                   `json:"blockedIPs"`
	SuspiciousIPs []string                   `json:"suspiciousIPs"`
	TimeRangeHrs  int                        `json:"timeRangeHours"`
}

// GetStats handles GET /security/stats?timeRange=<hours>.
func (h *SecurityHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("timeRange"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: timeRange must be a positive number of hours", ErrInvalidInput), "Invalid time range")
			return
		}
		hours = parsed
	}

	report := StatsReport{TimeRangeHrs: hours}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		stats, err := h.store.Stats(ctx, since)
		if err != nil {
			return err
		}
		report.TotalEvents = stats.TotalEvents
		report.BySeverity = stats.BySeverity
		return nil
	})
	g.Go(func() error {
		report.RecentAlerts = h.notifier.RecentAlerts(10)
		return nil
	})
	g.Go(func() error {
		report.BlockedIPs = h.engine.BlockedIPs()
		report.SuspiciousIPs = h.engine.SuspiciousIPs()
		return nil
	})
	if err := g.Wait(); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to aggregate security stats")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(report, "Security stats retrieved"))
}

// ListAlerts handles GET /security/alerts.
func (h *SecurityHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.respondWithError(w, http.StatusBadRequest,
				fmt.Errorf("%w: limit must be a positive number", ErrInvalidInput), "Invalid limit")
			return
		}
		limit = parsed
	}

	alerts := h.notifier.RecentAlerts(limit)
	h.respondWithJSON(w, http.StatusOK, successResponse(alerts, "Active alerts retrieved"))
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveLog handles PATCH /security/logs/{logID}/resolve.
func (h *SecurityHandler) ResolveLog(w http.ResponseWriter, r *http.Request) {
	logID, err := uuid.Parse(chi.URLParam(r, "logID"))
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest,
			fmt.Errorf("%w: malformed log id", ErrInvalidInput), "Invalid log ID format")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest,
			fmt.Errorf("%w: %v", ErrInvalidInput, err), "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Resolution) == "" {
		h.respondWithError(w, http.StatusBadRequest,
			fmt.Errorf("%w: resolution is required", ErrInvalidInput), "Resolution is required")
		return
	}

	resolvedBy := "admin"
	if id, ok := auth.FromContext(r.Context()); ok {
		if id.Email != "" {
			resolvedBy = id.Email
		} else if id.ID != "" {
			resolvedBy = id.ID
		}
	}

	updated, err := h.store.Resolve(r.Context(), logID, resolvedBy, req.Resolution)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to resolve security log")
		return
	}

	h.logger.Info("Security log resolved",
		util.String("log_id", logID.String()),
		util.String("resolved_by", resolvedBy),
	)
	h.respondWithJSON(w, http.StatusOK, successResponse(updated, "Security log resolved"))
}

type unblockRequest struct {
	IPAddress string `json:"ipAddress"`
}

// UnblockIP handles POST /security/unblock-ip. Unblocking an IP that is
// not in any set succeeds as a no-op.
func (h *SecurityHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	var req unblockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest,
			fmt.Errorf("%w: %v", ErrInvalidInput, err), "Invalid request body")
		return
	}
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		h.respondWithError(w, http.StatusBadRequest,
			fmt.Errorf("%w: ipAddress is required", ErrInvalidInput), "IP address is required")
		return
	}

	unblockedBy := "admin"
	if id, ok := auth.FromContext(r.Context()); ok && id.Email != "" {
		unblockedBy = id.Email
	}

	if err := h.engine.UnblockIP(r.Context(), ip, unblockedBy); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to unblock IP")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
		"ipAddress": ip,
	}, "IP address unblocked"))
}

// ListBlockedIPs handles GET /security/blocked-ips.
func (h *SecurityHandler) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	blocked := h.engine.BlockedIPs()
	suspicious := h.engine.SuspiciousIPs()

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"blockedIPs":      blocked,
		"suspiciousIPs":   suspicious,
		"totalBlocked":    len(blocked),
		"totalSuspicious": len(suspicious),
	}, "Blocked IPs retrieved"))
}

// ServeWS upgrades an admin connection for real-time alert delivery.
func (h *SecurityHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())
	if err := h.hub.ServeWS(w, r, identity.ID); err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			util.String("user_id", identity.ID),
			util.ErrorField(err),
		)
	}
}

func parseDate(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", value)
}

// respondWithJSON sends a JSON response
func (h *SecurityHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *SecurityHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *SecurityHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, events.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
