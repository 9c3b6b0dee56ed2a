package incident

import (
	"time"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// SLATarget is the time budget for one priority tier, in whole minutes.
type SLATarget struct {
	ResponseMin   int
	ResolutionMin int
}

// SLAPolicy computes response/resolution targets per priority and evaluates
// breach against a given instant. All functions are pure; the policy is
// safe for concurrent readers.
type SLAPolicy struct {
	targets map[domain.Priority]SLATarget
}

// NewSLAPolicy creates a policy with the given per-priority targets.
func NewSLAPolicy(targets map[domain.Priority]SLATarget) *SLAPolicy {
	cp := make(map[domain.Priority]SLATarget, len(targets))
	for p, t := range targets {
		cp[p] = t
	}
	return &SLAPolicy{targets: cp}
}

// DefaultSLATargets returns the built-in target table.
func DefaultSLATargets() map[domain.Priority]SLATarget {
	return map[domain.Priority]SLATarget{
		domain.PriorityCritical: {ResponseMin: 30, ResolutionMin: 240},
		domain.PriorityHigh:     {ResponseMin: 60, ResolutionMin: 480},
		domain.PriorityMedium:   {ResponseMin: 240, ResolutionMin: 1440},
		domain.PriorityLow:      {ResponseMin: 480, ResolutionMin: 2880},
	}
}

// TargetsFor returns the targets for a priority.
func (p *SLAPolicy) TargetsFor(priority domain.Priority) (SLATarget, error) {
	t, ok := p.targets[priority]
	if !ok {
		return SLATarget{}, &ConfigError{Priority: priority}
	}
	return t, nil
}

// elapsedMinutes truncates toward zero in whole minutes.
func elapsedMinutes(from, to time.Time) int {
	return int(to.Sub(from) / time.Minute)
}

// MarkResponse records the first response measurement. It is a no-op if the
// response was already measured; the value is set exactly once per
// measurement window (a reopen opens a new window by clearing it).
func (p *SLAPolicy) MarkResponse(inc *domain.Incident, now time.Time) {
	if inc.SLA.ResponseActualMin != nil {
		return
	}
	actual := elapsedMinutes(inc.CreatedAt, now)
	inc.SLA.ResponseActualMin = &actual
	inc.SLA.ResponseBreached = actual > inc.SLA.ResponseTargetMin
}

// MarkResolution records the resolution measurement and sets ResolvedAt.
func (p *SLAPolicy) MarkResolution(inc *domain.Incident, now time.Time) {
	actual := elapsedMinutes(inc.CreatedAt, now)
	inc.SLA.ResolutionActualMin = &actual
	inc.SLA.ResolutionBreached = actual > inc.SLA.ResolutionTargetMin
	resolved := now
	inc.ResolvedAt = &resolved
}

// ClearResolution drops the resolution measurement on reopen; it is
// recomputed on the next resolution.
func (p *SLAPolicy) ClearResolution(inc *domain.Incident) {
	inc.ResolvedAt = nil
	inc.SLA.ResolutionActualMin = nil
	inc.SLA.ResolutionBreached = false
}

// RemainingResolutionMinutes is a derived read, never persisted. Negative
// means the deadline has passed. Resolved and closed incidents return 0:
// their measurement is already fixed by MarkResolution.
func (p *SLAPolicy) RemainingResolutionMinutes(inc *domain.Incident, now time.Time) int {
	if inc.Status.IsResolvedOrClosed() {
		return 0
	}
	return inc.SLA.ResolutionTargetMin - elapsedMinutes(inc.CreatedAt, now)
}
