package incident

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/helpdesk/internal/domain"
)

// Input length bounds.
const (
	maxTitleLen       = 200
	maxDescriptionLen = 4000
	maxCommentLen     = 2000
)

// EventPublisher receives lifecycle events after successful mutations.
// Implementations must not block the command path.
type EventPublisher interface {
	Publish(ev domain.LifecycleEvent)
}

// Engine exposes the incident command API. It composes the transition
// validator, SLA policy, audit trail and comment store, persists through
// the injected Repository, and publishes lifecycle events afterwards. A
// failed publish never rolls back the mutation.
type Engine struct {
	repo        Repository
	sla         *SLAPolicy
	transitions *Transitions
	publisher   EventPublisher
	clock       func() time.Time
	maxLimit    int
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithMaxLimit overrides the page-size cap for queries.
func WithMaxLimit(n int) EngineOption {
	return func(e *Engine) { e.maxLimit = n }
}

// NewEngine creates the engine. publisher may be nil, in which case events
// are discarded.
func NewEngine(repo Repository, sla *SLAPolicy, publisher EventPublisher, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:        repo,
		sla:         sla,
		transitions: NewTransitions(sla),
		publisher:   publisher,
		clock:       time.Now,
		maxLimit:    DefaultMaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateInput holds data for submitting a new incident.
type CreateInput struct {
	Title       string
	Description string
	Priority    domain.Priority
	Category    domain.Category
	ReporterID  string
	EquipmentID *string
	DueDate     *time.Time
}

// Create submits a new incident with status new and SLA targets derived
// from its priority.
func (e *Engine) Create(ctx context.Context, input CreateInput, actorID string) (inc *domain.Incident, err error) {
	defer func() { recordCommand("create", err) }()

	if err := validateCreate(input); err != nil {
		return nil, err
	}

	targets, err := e.sla.TargetsFor(input.Priority)
	if err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	inc = &domain.Incident{
		ID:          uuid.New().String(),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.StatusNew,
		Priority:    input.Priority,
		Category:    input.Category,
		ReporterID:  input.ReporterID,
		EquipmentID: input.EquipmentID,
		DueDate:     input.DueDate,
		SLA: domain.SLA{
			ResponseTargetMin:   targets.ResponseMin,
			ResolutionTargetMin: targets.ResolutionMin,
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	appendAudit(inc, "created", "", string(domain.StatusNew), actorID, now)

	if err := e.repo.Create(ctx, inc); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	e.publish(domain.LifecycleEvent{
		Type:       domain.EventCreated,
		IncidentID: inc.ID,
		ActorID:    actorID,
		Timestamp:  now,
		Status:     inc.Status,
	})
	return inc, nil
}

// Assign sets the assignee. A new incident also moves to assigned, which
// starts its response SLA measurement.
func (e *Engine) Assign(ctx context.Context, id, assigneeID, actorID string) (inc *domain.Incident, err error) {
	defer func() { recordCommand("assign", err) }()

	if assigneeID == "" {
		return nil, &ValidationError{Field: "assignee_id", Message: "must not be empty"}
	}

	inc, err = e.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	oldAssignee := ""
	if inc.AssigneeID != nil {
		oldAssignee = *inc.AssigneeID
	}
	if oldAssignee == assigneeID && inc.Status != domain.StatusNew {
		return inc, nil
	}

	if oldAssignee != assigneeID {
		assignee := assigneeID
		inc.AssigneeID = &assignee
		appendAudit(inc, "assignee_id", oldAssignee, assigneeID, actorID, now)
	}

	var statusChanged bool
	if inc.Status == domain.StatusNew {
		if err := e.transitions.Apply(inc, domain.StatusAssigned, actorID, now); err != nil {
			return nil, err
		}
		statusChanged = true
	}

	if err = e.save(ctx, inc, now); err != nil {
		return nil, err
	}

	if statusChanged {
		recordTransition(string(domain.StatusNew), string(domain.StatusAssigned))
		e.recordBreaches(inc)
	}
	e.publish(domain.LifecycleEvent{
		Type:       domain.EventAssigned,
		IncidentID: inc.ID,
		ActorID:    actorID,
		Timestamp:  now,
		Status:     inc.Status,
		AssigneeID: inc.AssigneeID,
	})
	return inc, nil
}

// Transition moves the incident along the allowed-status graph.
func (e *Engine) Transition(ctx context.Context, id string, target domain.Status, actorID string) (inc *domain.Incident, err error) {
	defer func() { recordCommand("transition", err) }()

	if !target.IsValid() {
		return nil, &ValidationError{Field: "status", Message: "unknown status " + string(target)}
	}

	inc, err = e.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	from := inc.Status
	if err = e.transitions.Apply(inc, target, actorID, now); err != nil {
		return nil, err
	}

	if err = e.save(ctx, inc, now); err != nil {
		return nil, err
	}

	recordTransition(string(from), string(target))
	e.recordBreaches(inc)
	e.publish(domain.LifecycleEvent{
		Type:       domain.EventStatusChanged,
		IncidentID: inc.ID,
		ActorID:    actorID,
		Timestamp:  now,
		Status:     inc.Status,
	})
	return inc, nil
}

// Reopen moves a resolved or closed incident back to in_progress,
// recording the reason as an internal comment.
func (e *Engine) Reopen(ctx context.Context, id, reason, actorID string) (inc *domain.Incident, err error) {
	defer func() { recordCommand("reopen", err) }()

	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Message: "must not be empty"}
	}

	inc, err = e.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	from := inc.Status
	comment, err := e.transitions.Reopen(inc, reason, actorID, now)
	if err != nil {
		return nil, err
	}

	if err = e.save(ctx, inc, now); err != nil {
		return nil, err
	}

	recordTransition(string(from), string(inc.Status))
	e.publish(domain.LifecycleEvent{
		Type:       domain.EventReopened,
		IncidentID: inc.ID,
		ActorID:    actorID,
		Timestamp:  now,
		Status:     inc.Status,
		CommentID:  comment.ID,
	})
	return inc, nil
}

// Comment appends a comment. Comments are self-describing, so no audit
// entry is written for them.
func (e *Engine) Comment(ctx context.Context, id, authorID, content string, isInternal bool) (c domain.Comment, err error) {
	defer func() { recordCommand("comment", err) }()

	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, ErrEmptyComment
	}
	if len(content) > maxCommentLen {
		return domain.Comment{}, &ValidationError{Field: "content", Message: fmt.Sprintf("longer than %d characters", maxCommentLen)}
	}

	inc, err := e.loadForWrite(ctx, id)
	if err != nil {
		return domain.Comment{}, err
	}

	now := e.clock().UTC()
	c = addComment(inc, authorID, content, isInternal, now)

	if err = e.save(ctx, inc, now); err != nil {
		return domain.Comment{}, err
	}

	e.publish(domain.LifecycleEvent{
		Type:       domain.EventCommentAdded,
		IncidentID: inc.ID,
		ActorID:    authorID,
		Timestamp:  now,
		CommentID:  c.ID,
	})
	return c, nil
}

// UpdateInput holds editable fields. Nil means "leave unchanged".
type UpdateInput struct {
	Title       *string
	Description *string
	Priority    *domain.Priority
	Category    *domain.Category
}

// Update edits title, description, priority or category. Edits are only
// legal before resolution; a priority change re-derives SLA targets from
// the policy table.
func (e *Engine) Update(ctx context.Context, id string, input UpdateInput, actorID string) (inc *domain.Incident, err error) {
	defer func() { recordCommand("update", err) }()

	inc, err = e.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.Status.IsResolvedOrClosed() || inc.Status == domain.StatusCancelled {
		return nil, &InvalidStateError{Operation: "edit", Status: inc.Status}
	}

	now := e.clock().UTC()
	changed := false

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" || len(title) > maxTitleLen {
			return nil, &ValidationError{Field: "title", Message: fmt.Sprintf("must be 1-%d characters", maxTitleLen)}
		}
		if title != inc.Title {
			appendAudit(inc, "title", inc.Title, title, actorID, now)
			inc.Title = title
			changed = true
		}
	}
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if len(desc) > maxDescriptionLen {
			return nil, &ValidationError{Field: "description", Message: fmt.Sprintf("longer than %d characters", maxDescriptionLen)}
		}
		if desc != inc.Description {
			appendAudit(inc, "description", inc.Description, desc, actorID, now)
			inc.Description = desc
			changed = true
		}
	}
	if input.Priority != nil && *input.Priority != inc.Priority {
		targets, err := e.sla.TargetsFor(*input.Priority)
		if err != nil {
			return nil, err
		}
		appendAudit(inc, "priority", string(inc.Priority), string(*input.Priority), actorID, now)
		inc.Priority = *input.Priority
		inc.SLA.ResponseTargetMin = targets.ResponseMin
		inc.SLA.ResolutionTargetMin = targets.ResolutionMin
		changed = true
	}
	if input.Category != nil && *input.Category != inc.Category {
		if !input.Category.IsValid() {
			return nil, &ValidationError{Field: "category", Message: "unknown category " + string(*input.Category)}
		}
		appendAudit(inc, "category", string(inc.Category), string(*input.Category), actorID, now)
		inc.Category = *input.Category
		changed = true
	}

	if !changed {
		return inc, nil
	}

	if err = e.save(ctx, inc, now); err != nil {
		return nil, err
	}

	e.publish(domain.LifecycleEvent{
		Type:       domain.EventUpdated,
		IncidentID: inc.ID,
		ActorID:    actorID,
		Timestamp:  now,
	})
	return inc, nil
}

// RateSatisfaction records the reporter's rating. Only legal once the
// incident is resolved or closed, and only once.
func (e *Engine) RateSatisfaction(ctx context.Context, id string, rating int, comment, actorID string) (inc *domain.Incident, err error) {
	defer func() { recordCommand("rate_satisfaction", err) }()

	if rating < 1 || rating > 5 {
		return nil, &ValidationError{Field: "rating", Message: "must be between 1 and 5"}
	}

	inc, err = e.loadForWrite(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inc.Status.IsResolvedOrClosed() {
		return nil, &InvalidStateError{Operation: "rate satisfaction", Status: inc.Status}
	}
	if inc.Satisfaction != nil {
		return nil, &InvalidStateError{Operation: "rate satisfaction twice", Status: inc.Status}
	}

	now := e.clock().UTC()
	inc.Satisfaction = &domain.Satisfaction{
		Rating:  rating,
		Comment: strings.TrimSpace(comment),
		RatedBy: actorID,
		RatedAt: now,
	}
	appendAudit(inc, "satisfaction", "", fmt.Sprintf("%d", rating), actorID, now)

	if err = e.save(ctx, inc, now); err != nil {
		return nil, err
	}
	return inc, nil
}

// Delete soft-deletes the incident. The record and its history are
// retained for audit; it only disappears from default queries.
func (e *Engine) Delete(ctx context.Context, id, actorID string) (err error) {
	defer func() { recordCommand("delete", err) }()

	inc, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if inc.IsDeleted {
		return nil
	}

	now := e.clock().UTC()
	inc.IsDeleted = true
	appendAudit(inc, "is_deleted", "false", "true", actorID, now)

	if err = e.save(ctx, inc, now); err != nil {
		return err
	}

	e.publish(domain.LifecycleEvent{
		Type:       domain.EventDeleted,
		IncidentID: inc.ID,
		ActorID:    actorID,
		Timestamp:  now,
	})
	return nil
}

// Get loads one incident, deleted or not.
func (e *Engine) Get(ctx context.Context, id string) (*domain.Incident, error) {
	return e.repo.Get(ctx, id)
}

// ListComments returns the incident's comments in insertion order,
// optionally hiding internal ones.
func (e *Engine) ListComments(ctx context.Context, id string, includeInternal bool) ([]domain.Comment, error) {
	inc, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return VisibleComments(inc, includeInternal), nil
}

// History returns the audit trail in chronological order.
func (e *Engine) History(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	inc, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AuditEntry, 0, len(inc.History))
	for entry := range AuditEntries(inc) {
		out = append(out, entry)
	}
	return out, nil
}

// RemainingResolutionMinutes is the derived SLA read for one incident.
func (e *Engine) RemainingResolutionMinutes(ctx context.Context, id string) (int, error) {
	inc, err := e.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return e.sla.RemainingResolutionMinutes(inc, e.clock().UTC()), nil
}

// Query normalizes the filter and paging, then delegates to the repository.
func (e *Engine) Query(ctx context.Context, f Filter, sortField, sortDir string, page, limit int) (*QueryResult, error) {
	q, err := NormalizeQuery(f, sortField, sortDir, page, limit, e.maxLimit)
	if err != nil {
		return nil, err
	}
	return e.repo.Query(ctx, q)
}

// loadForWrite fetches the aggregate and rejects mutations of deleted
// incidents.
func (e *Engine) loadForWrite(ctx context.Context, id string) (*domain.Incident, error) {
	inc, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.IsDeleted {
		return nil, ErrDeleted
	}
	return inc, nil
}

// save persists the aggregate. Conflict and storage errors propagate
// unchanged; the engine never retries a conflicting write.
func (e *Engine) save(ctx context.Context, inc *domain.Incident, now time.Time) error {
	inc.UpdatedAt = now
	if err := e.repo.Update(ctx, inc); err != nil {
		return fmt.Errorf("save incident %s: %w", inc.ID, err)
	}
	return nil
}

// publish fans the event out. Fan-out problems are logged and swallowed:
// persistence already succeeded, so they must not fail the command.
func (e *Engine) publish(ev domain.LifecycleEvent) {
	if e.publisher == nil {
		slog.Debug("no event publisher attached, discarding event",
			"incident_id", ev.IncidentID, "event_type", ev.Type)
		return
	}
	e.publisher.Publish(ev)
}

// recordBreaches bumps breach counters after a transition recomputed SLA
// state.
func (e *Engine) recordBreaches(inc *domain.Incident) {
	if inc.SLA.ResponseBreached && inc.SLA.ResponseActualMin != nil {
		recordSLABreach("response")
	}
	if inc.SLA.ResolutionBreached && inc.SLA.ResolutionActualMin != nil {
		recordSLABreach("resolution")
	}
}

func validateCreate(input CreateInput) error {
	title := strings.TrimSpace(input.Title)
	if title == "" || len(title) > maxTitleLen {
		return &ValidationError{Field: "title", Message: fmt.Sprintf("must be 1-%d characters", maxTitleLen)}
	}
	if len(strings.TrimSpace(input.Description)) > maxDescriptionLen {
		return &ValidationError{Field: "description", Message: fmt.Sprintf("longer than %d characters", maxDescriptionLen)}
	}
	if !input.Priority.IsValid() {
		return &ValidationError{Field: "priority", Message: "unknown priority " + string(input.Priority)}
	}
	if !input.Category.IsValid() {
		return &ValidationError{Field: "category", Message: "unknown category " + string(input.Category)}
	}
	if input.ReporterID == "" {
		return &ValidationError{Field: "reporter_id", Message: "must not be empty"}
	}
	return nil
}
