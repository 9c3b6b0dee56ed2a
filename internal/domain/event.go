package domain

import "time"

// EventType identifies what happened to an incident.
type EventType string

// Lifecycle event types.
const (
	EventCreated       EventType = "Created"
	EventUpdated       EventType = "Updated"
	EventAssigned      EventType = "Assigned"
	EventStatusChanged EventType = "StatusChanged"
	EventCommentAdded  EventType = "CommentAdded"
	EventReopened      EventType = "Reopened"
	EventDeleted       EventType = "Deleted"
)

// LifecycleEvent is the transient fan-out record published after a
// successful mutation. It is never persisted and delivery is best-effort.
type LifecycleEvent struct {
	Type       EventType `json:"type"`
	IncidentID string    `json:"incidentId"`
	ActorID    string    `json:"actorId"`
	Timestamp  time.Time `json:"timestamp"`

	// Type-specific payload fields.
	Status     Status  `json:"status,omitempty"`
	AssigneeID *string `json:"assigneeId,omitempty"`
	CommentID  string  `json:"commentId,omitempty"`
}
