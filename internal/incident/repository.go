// Package incident implements the incident lifecycle: status transitions,
// SLA bookkeeping, audit history, comments and the command surface that
// orchestrates them.
package incident

import (
	"context"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// Repository defines the interface for incident storage. Implementations
// must serialize concurrent writes to the same aggregate: Update compares
// the stored version with Incident.Version and returns ErrConflict on
// mismatch, so the engine never has to lock.
type Repository interface {
	Create(ctx context.Context, inc *domain.Incident) error
	// Get loads the full aggregate including comments and history.
	// Returns ErrNotFound if absent. Deleted incidents are returned
	// flagged; filtering them is the caller's choice.
	Get(ctx context.Context, id string) (*domain.Incident, error)
	// Update persists the aggregate and bumps its version. New comments
	// and history entries are appended; existing rows are never touched.
	Update(ctx context.Context, inc *domain.Incident) error
	Query(ctx context.Context, q Query) (*QueryResult, error)
}
