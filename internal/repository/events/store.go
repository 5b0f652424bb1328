package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/glorisonglotech/omnibiz-sub004/internal/models"
)

var (
	// ErrNotFound is returned when a security log id does not exist.
	ErrNotFound = errors.New("security log not found")
)

// Filter narrows List queries. Zero values mean "no constraint".
type Filter struct {
	Severity  models.Severity
	EventType models.EventType
	Resolved  *bool
	StartDate *time.Time
	EndDate   *time.Time
}

// Page is one page of logs sorted by timestamp descending.
type Page struct {
	Logs        []*models.SecurityEvent `json:"logs"`
	Total       uint64                  `json:"total"`
	TotalPages  int                     `json:"totalPages"`
	CurrentPage int                     `json:"currentPage"`
}

// Stats aggregates event counts for the reporting API.
type Stats struct {
	TotalEvents uint64                     `json:"totalEvents"`
	BySeverity  map[models.Severity]uint64 `json:"bySeverity"`
}

// Store is the durable, queryable log of every security event. Events are
// append-only; only the resolution fields may change after insert.
type Store interface {
	// Insert appends one event.
	Insert(ctx context.Context, event *models.SecurityEvent) error

	// CountRecent counts events whose user id, user email or ip address
	// equals identifier, of the given type, with timestamp >= now-window
	// (the window start is inclusive). Every call re-scans the store; no
	// counter state is kept, so concurrent writers can never leave a
	// counter out of sync with the log.
	CountRecent(ctx context.Context, identifier string, eventType models.EventType, window time.Duration) (int, error)

	// List returns a page of logs matching filter, newest first.
	List(ctx context.Context, filter Filter, page, limit int) (*Page, error)

	// GetByID fetches one event or ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.SecurityEvent, error)

	// Resolve marks an event resolved and records who and why. Resolving
	// an already-resolved event overwrites the resolution metadata.
	// Returns ErrNotFound for an unknown id.
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy, resolution string) (*models.SecurityEvent, error)

	// Stats aggregates totals and severity breakdown since the given time.
	Stats(ctx context.Context, since time.Time) (*Stats, error)

	HealthCheck(ctx context.Context) error
}
