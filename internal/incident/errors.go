package incident

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// Repository errors.
var (
	ErrNotFound = errors.New("incident not found")
	ErrConflict = errors.New("incident was modified concurrently")
)

// Command errors.
var (
	ErrDeleted      = errors.New("incident is deleted")
	ErrEmptyComment = errors.New("comment content must not be empty")
)

// ValidationError reports malformed or missing input fields.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InvalidTransitionError reports an illegal status change. It carries the
// allowed next states so a client can render valid choices without guessing.
type InvalidTransitionError struct {
	Current domain.Status
	Target  domain.Status
	Allowed []domain.Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("cannot transition from %s to %s (allowed: %s)",
		e.Current, e.Target, strings.Join(allowed, ", "))
}

// InvalidStateError reports an operation that is not legal in the
// incident's current state, e.g. rating satisfaction before resolution.
type InvalidStateError struct {
	Operation string
	Status    domain.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is not allowed while incident is %s", e.Operation, e.Status)
}

// ConfigError reports an unknown priority or unmapped SLA target.
type ConfigError struct {
	Priority domain.Priority
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("no SLA targets configured for priority %q", e.Priority)
}
