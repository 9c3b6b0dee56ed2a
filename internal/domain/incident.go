// Package domain contains the core types of the helpdesk service.
package domain

import "time"

// Status represents the lifecycle state of an incident.
type Status string

// Incident statuses.
const (
	StatusNew        Status = "new"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusOnHold     Status = "on_hold"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
)

// Priority represents the SLA tier of an incident.
type Priority string

// Priorities.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Category classifies what the incident is about.
type Category string

// Categories.
const (
	CategoryHardware       Category = "hardware"
	CategorySoftware       Category = "software"
	CategoryNetwork        Category = "network"
	CategorySecurity       Category = "security"
	CategoryAccess         Category = "access"
	CategoryServiceRequest Category = "service_request"
	CategoryOther          Category = "other"
)

// IsValid checks if the status is a member of the enum.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusAssigned, StatusInProgress, StatusOnHold,
		StatusResolved, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further plain transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// IsResolvedOrClosed reports whether the incident reached a resolution state.
func (s Status) IsResolvedOrClosed() bool {
	return s == StatusResolved || s == StatusClosed
}

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh || p == PriorityCritical
}

// Rank orders priorities for sorting, highest first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// IsValid checks if the category is valid.
func (c Category) IsValid() bool {
	switch c {
	case CategoryHardware, CategorySoftware, CategoryNetwork, CategorySecurity,
		CategoryAccess, CategoryServiceRequest, CategoryOther:
		return true
	}
	return false
}

// SLA holds service-level targets and measurements for one incident.
// Actual values are elapsed whole minutes from creation, truncated toward
// zero. Breach flags use strict comparison: exactly-at-target is not a breach.
type SLA struct {
	ResponseTargetMin   int  `json:"response_target_min"`
	ResponseActualMin   *int `json:"response_actual_min,omitempty"`
	ResponseBreached    bool `json:"response_breached"`
	ResolutionTargetMin int  `json:"resolution_target_min"`
	ResolutionActualMin *int `json:"resolution_actual_min,omitempty"`
	ResolutionBreached  bool `json:"resolution_breached"`
}

// Comment is a single note on an incident. Internal comments are hidden
// from reporter-facing projections.
type Comment struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	AuthorID   string    `json:"author_id"`
	Content    string    `json:"content"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry records one field change. Entries are immutable and only
// appended; Seq increases monotonically per incident.
type AuditEntry struct {
	Seq       int       `json:"seq"`
	Field     string    `json:"field"`
	OldValue  string    `json:"old_value"`
	NewValue  string    `json:"new_value"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Satisfaction is the reporter's rating after resolution.
type Satisfaction struct {
	Rating  int       `json:"rating"`
	Comment string    `json:"comment,omitempty"`
	RatedBy string    `json:"rated_by"`
	RatedAt time.Time `json:"rated_at"`
}

// Incident is the aggregate root: the ticket itself plus its comments and
// append-only history, treated as one unit of consistency.
type Incident struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	Category    Category `json:"category"`

	ReporterID  string  `json:"reporter_id"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	EquipmentID *string `json:"equipment_id,omitempty"`

	SLA SLA `json:"sla"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`

	ReopenCount    int        `json:"reopen_count"`
	LastReopenedAt *time.Time `json:"last_reopened_at,omitempty"`
	LastReopenedBy *string    `json:"last_reopened_by,omitempty"`

	Satisfaction *Satisfaction `json:"satisfaction,omitempty"`

	IsDeleted bool `json:"is_deleted"`

	// Version backs the repository's optimistic concurrency check.
	Version int `json:"version"`

	Comments []Comment    `json:"comments,omitempty"`
	History  []AuditEntry `json:"history,omitempty"`
}
