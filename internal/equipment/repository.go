// Package equipment exposes a read-only view of the asset inventory so
// incidents can be linked to the hardware they concern.
package equipment

import (
	"context"
	"errors"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// ErrNotFound is returned when the requested asset does not exist.
var ErrNotFound = errors.New("equipment not found")

// Repository defines the interface for equipment reads.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Equipment, error)
	List(ctx context.Context, filter Filter) ([]domain.Equipment, error)
}

// Filter represents filter criteria for listing equipment.
type Filter struct {
	Type     *string
	Location *string
	Status   *domain.EquipmentStatus
	Search   string
}
