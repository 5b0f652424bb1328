package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/bucketing"
	"github.com/glorisonglotech/omnibiz-sub004/internal/client"
	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

const eventsTable = "security_events"

const createEventsTableDDL = `
CREATE TABLE IF NOT EXISTS ` + eventsTable + ` (
    id           UUID,
    event_bucket Int32,
    user_id      String,
    user_email   String,
    event_type   LowCardinality(String),
    severity     LowCardinality(String),
    description  String,
    ip_address   String,
    user_agent   String,
    endpoint     String,
    method       LowCardinality(String),
    status_code  Int32,
    metadata     Map(String, String),
    resolved     Bool,
    resolved_by  String,
    resolved_at  Nullable(DateTime64(3)),
    resolution   String,
    timestamp    DateTime64(3)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (event_bucket, timestamp, id)
`

// ClickHouseStore is the production Store backed by ClickHouse. The
// ordering key leads with a consistent identifier bucket so one actor's
// rows cluster together inside each monthly part.
type ClickHouseStore struct {
	client    *client.ClickHouseClient
	bucketing *bucketing.Manager
	logger    *zap.Logger
}

func NewClickHouseStore(ch *client.ClickHouseClient, bm *bucketing.Manager, logger *zap.Logger) *ClickHouseStore {
	return &ClickHouseStore{
		client:    ch,
		bucketing: bm,
		logger:    logger,
	}
}

// EnsureSchema creates the events table if it does not exist.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := s.client.Exec(ctx, createEventsTableDDL); err != nil {
		return fmt.Errorf("failed to create %s table: %w", eventsTable, err)
	}
	return nil
}

func (s *ClickHouseStore) Insert(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}

	query := `INSERT INTO ` + eventsTable + ` (
        id, event_bucket, user_id, user_email, event_type, severity,
        description, ip_address, user_agent, endpoint, method, status_code,
        metadata, resolved, resolved_by, resolved_at, resolution, timestamp
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := s.client.Exec(ctx, query,
		event.ID,
		int32(s.bucketing.EventBucket(event.Identifier())),
		event.UserID,
		event.UserEmail,
		string(event.EventType),
		string(event.Severity),
		event.Description,
		event.IPAddress,
		event.UserAgent,
		event.Endpoint,
		event.Method,
		event.StatusCode,
		event.Metadata,
		event.Resolved,
		event.ResolvedBy,
		event.ResolvedAt,
		event.Resolution,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	s.logger.Debug("Security event persisted",
		util.String("id", event.ID.String()),
		util.String("event_type", string(event.EventType)),
		util.String("severity", string(event.Severity)),
	)
	return nil
}

// The window start is inclusive: an event stamped exactly at now-window
// still counts, anything strictly before it does not.
const countRecentQuery = `SELECT count() FROM ` + eventsTable + `
        WHERE (user_id = ? OR user_email = ? OR ip_address = ?)
          AND event_type = ?
          AND timestamp >= ?`

func countRecentArgs(identifier string, eventType models.EventType, now time.Time, window time.Duration) []interface{} {
	return []interface{}{identifier, identifier, identifier, string(eventType), now.Add(-window)}
}

func (s *ClickHouseStore) CountRecent(ctx context.Context, identifier string, eventType models.EventType, window time.Duration) (int, error) {
	if identifier == "" {
		return 0, nil
	}

	args := countRecentArgs(identifier, eventType, time.Now().UTC(), window)

	var count uint64
	row := s.client.QueryRow(ctx, countRecentQuery, args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent events: %w", err)
	}
	return int(count), nil
}

func (s *ClickHouseStore) List(ctx context.Context, filter Filter, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	where, args := buildWhere(filter)

	var total uint64
	countQuery := "SELECT count() FROM " + eventsTable + where
	if err := s.client.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count security logs: %w", err)
	}

	query := selectColumns + " FROM " + eventsTable + where +
		" ORDER BY timestamp DESC LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	rows, err := s.client.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.SecurityEvent, 0, limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read security logs: %w", err)
	}

	totalPages := int((total + uint64(limit) - 1) / uint64(limit))
	return &Page{
		Logs:        logs,
		Total:       total,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

func (s *ClickHouseStore) GetByID(ctx context.Context, id uuid.UUID) (*models.SecurityEvent, error) {
	query := selectColumns + " FROM " + eventsTable + " WHERE id = ? LIMIT 1"

	rows, err := s.client.QueryRows(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query security log: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read security log: %w", err)
		}
		return nil, ErrNotFound
	}
	return scanEvent(rows)
}

func (s *ClickHouseStore) Resolve(ctx context.Context, id uuid.UUID, resolvedBy, resolution string) (*models.SecurityEvent, error) {
	event, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	// The resolution fields are the only mutable part of an event; a
	// lightweight mutation keeps the rest of the row untouched.
	query := `ALTER TABLE ` + eventsTable + `
        UPDATE resolved = true, resolved_by = ?, resolved_at = ?, resolution = ?
        WHERE id = ?`
	if err := s.client.Exec(ctx, query, resolvedBy, now, resolution, id); err != nil {
		return nil, fmt.Errorf("failed to resolve security log: %w", err)
	}

	event.Resolved = true
	event.ResolvedBy = resolvedBy
	event.ResolvedAt = &now
	event.Resolution = resolution
	return event, nil
}

func (s *ClickHouseStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	stats := &Stats{BySeverity: make(map[models.Severity]uint64)}

	query := `SELECT severity, count() FROM ` + eventsTable + `
        WHERE timestamp >= ? GROUP BY severity`

	rows, err := s.client.QueryRows(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query event stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var count uint64
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event stats: %w", err)
		}
		stats.BySeverity[models.Severity(severity)] = count
		stats.TotalEvents += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event stats: %w", err)
	}
	return stats, nil
}

func (s *ClickHouseStore) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

const selectColumns = `SELECT
    id, user_id, user_email, event_type, severity, description,
    ip_address, user_agent, endpoint, method, status_code, metadata,
    resolved, resolved_by, resolved_at, resolution, timestamp`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.SecurityEvent, error) {
	var (
		event     models.SecurityEvent
		eventType string
		severity  string
	)
	err := row.Scan(
		&event.ID,
		&event.UserID,
		&event.UserEmail,
		&eventType,
		&severity,
		&event.Description,
		&event.IPAddress,
		&event.UserAgent,
		&event.Endpoint,
		&event.Method,
		&event.StatusCode,
		&event.Metadata,
		&event.Resolved,
		&event.ResolvedBy,
		&event.ResolvedAt,
		&event.Resolution,
		&event.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan security event: %w", err)
	}
	event.EventType = models.EventType(eventType)
	event.Severity = models.Severity(severity)
	return &event, nil
}

func buildWhere(filter Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if filter.Resolved != nil {
		clauses = append(clauses, "resolved = ?")
		args = append(args, *filter.Resolved)
	}
	if filter.StartDate != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, *filter.EndDate)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
