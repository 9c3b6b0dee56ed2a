package incident

import (
	"time"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// allowedTransitions is the legal status graph. Reopening resolved or
// closed incidents is a distinct operation, not a plain transition.
var allowedTransitions = map[domain.Status][]domain.Status{
	domain.StatusNew:        {domain.StatusAssigned, domain.StatusInProgress, domain.StatusOnHold, domain.StatusCancelled, domain.StatusClosed},
	domain.StatusAssigned:   {domain.StatusInProgress, domain.StatusOnHold, domain.StatusResolved, domain.StatusClosed},
	domain.StatusInProgress: {domain.StatusOnHold, domain.StatusResolved, domain.StatusClosed},
	domain.StatusOnHold:     {domain.StatusInProgress, domain.StatusResolved, domain.StatusClosed},
	domain.StatusResolved:   {domain.StatusClosed},
	domain.StatusClosed:     {},
	domain.StatusCancelled:  {},
}

// Transitions validates and applies status changes, delegating SLA side
// effects to the policy.
type Transitions struct {
	sla *SLAPolicy
}

// NewTransitions creates a transition validator backed by the given policy.
func NewTransitions(sla *SLAPolicy) *Transitions {
	return &Transitions{sla: sla}
}

// AllowedFrom returns the legal next statuses for a status.
func AllowedFrom(current domain.Status) []domain.Status {
	next := allowedTransitions[current]
	out := make([]domain.Status, len(next))
	copy(out, next)
	return out
}

// Validate checks that target is reachable from current.
func (t *Transitions) Validate(current, target domain.Status) error {
	for _, s := range allowedTransitions[current] {
		if s == target {
			return nil
		}
	}
	return &InvalidTransitionError{
		Current: current,
		Target:  target,
		Allowed: AllowedFrom(current),
	}
}

// Apply validates and performs a transition. On success it sets the new
// status, records response/resolution SLA measurements and appends one
// history entry. On failure the incident is left untouched.
func (t *Transitions) Apply(inc *domain.Incident, target domain.Status, actorID string, now time.Time) error {
	if err := t.Validate(inc.Status, target); err != nil {
		return err
	}

	from := inc.Status
	inc.Status = target

	if from == domain.StatusNew {
		t.sla.MarkResponse(inc, now)
	}
	switch target {
	case domain.StatusResolved:
		t.sla.MarkResolution(inc, now)
	case domain.StatusClosed:
		closed := now
		inc.ClosedAt = &closed
	}

	appendAudit(inc, "status", string(from), string(target), actorID, now)
	return nil
}

// Reopen moves a resolved or closed incident back to in_progress. It
// increments the reopen counter, clears the resolution measurement so the
// next resolution is measured afresh, and records the reason as a comment.
func (t *Transitions) Reopen(inc *domain.Incident, reason, actorID string, now time.Time) (domain.Comment, error) {
	if !inc.Status.IsResolvedOrClosed() {
		return domain.Comment{}, &InvalidTransitionError{
			Current: inc.Status,
			Target:  domain.StatusInProgress,
			Allowed: AllowedFrom(inc.Status),
		}
	}

	from := inc.Status
	inc.Status = domain.StatusInProgress
	inc.ReopenCount++
	reopenedAt := now
	inc.LastReopenedAt = &reopenedAt
	actor := actorID
	inc.LastReopenedBy = &actor
	inc.ClosedAt = nil
	t.sla.ClearResolution(inc)

	comment := addComment(inc, actorID, reason, true, now)
	appendAudit(inc, "status", string(from), string(inc.Status), actorID, now)
	return comment, nil
}
