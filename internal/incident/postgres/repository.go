// Package postgres provides the PostgreSQL implementation of the incident
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/incident"
)

// Repository implements incident.Repository using PostgreSQL. Optimistic
// concurrency is enforced by the version column: Update only matches the
// version it loaded, so concurrent writers to the same aggregate lose with
// ErrConflict instead of silently overwriting each other.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `
	id, title, description, status, priority, category,
	reporter_id, assignee_id, equipment_id,
	response_target_min, response_actual_min, response_breached,
	resolution_target_min, resolution_actual_min, resolution_breached,
	created_at, updated_at, due_date, resolved_at, closed_at,
	reopen_count, last_reopened_at, last_reopened_by,
	satisfaction_rating, satisfaction_comment, satisfaction_rated_by, satisfaction_rated_at,
	is_deleted, version`

// Create inserts the aggregate with its initial history.
func (r *Repository) Create(ctx context.Context, inc *domain.Incident) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			_ = err
		}
	}()

	query := `
		INSERT INTO incidents (` + incidentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	`
	if _, err := tx.Exec(ctx, query, incidentArgs(inc)...); err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	if err := appendRows(ctx, tx, inc); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get loads the full aggregate including comments and history.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incident.ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	if err := r.loadComments(ctx, inc); err != nil {
		return nil, err
	}
	if err := r.loadHistory(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

// Update persists the aggregate, appending any new comments and history
// rows, and bumps the version. Returns ErrConflict when another writer got
// there first.
func (r *Repository) Update(ctx context.Context, inc *domain.Incident) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			_ = err
		}
	}()

	query := `
		UPDATE incidents SET
			title = $2, description = $3, status = $4, priority = $5, category = $6,
			reporter_id = $7, assignee_id = $8, equipment_id = $9,
			response_target_min = $10, response_actual_min = $11, response_breached = $12,
			resolution_target_min = $13, resolution_actual_min = $14, resolution_breached = $15,
			created_at = $16, updated_at = $17, due_date = $18, resolved_at = $19, closed_at = $20,
			reopen_count = $21, last_reopened_at = $22, last_reopened_by = $23,
			satisfaction_rating = $24, satisfaction_comment = $25,
			satisfaction_rated_by = $26, satisfaction_rated_at = $27,
			is_deleted = $28, version = $29 + 1
		WHERE id = $1 AND version = $29
	`
	tag, err := tx.Exec(ctx, query, incidentArgs(inc)...)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row is gone or the version moved on.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1)`, inc.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check incident exists: %w", err)
		}
		if !exists {
			return incident.ErrNotFound
		}
		return incident.ErrConflict
	}

	if err := appendRows(ctx, tx, inc); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	inc.Version++
	return nil
}

// Query filters, sorts and pages incidents. Comments and history are not
// loaded for list views.
func (r *Repository) Query(ctx context.Context, q incident.Query) (*incident.QueryResult, error) {
	where, args := buildWhere(q.Filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM incidents` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents` + where +
		orderBy(q.SortField, q.SortDir) +
		fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, (q.Page-1)*q.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		items = append(items, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}

	return &incident.QueryResult{Items: items, Total: total}, nil
}

func buildWhere(f incident.Filter) (string, []any) {
	conds := make([]string, 0, 8)
	args := make([]any, 0, 8)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeDeleted {
		conds = append(conds, "is_deleted = FALSE")
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, "status = ANY("+arg(statusStrings(f.Statuses))+")")
	}
	if len(f.Priorities) > 0 {
		conds = append(conds, "priority = ANY("+arg(priorityStrings(f.Priorities))+")")
	}
	if f.Category != nil {
		conds = append(conds, "category = "+arg(string(*f.Category)))
	}
	if f.AssigneeID != nil {
		conds = append(conds, "assignee_id = "+arg(*f.AssigneeID))
	}
	if f.ReporterID != nil {
		conds = append(conds, "reporter_id = "+arg(*f.ReporterID))
	}
	if f.EquipmentID != nil {
		conds = append(conds, "equipment_id = "+arg(*f.EquipmentID))
	}
	if f.DateFrom != nil {
		conds = append(conds, "created_at >= "+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		conds = append(conds, "created_at <= "+arg(*f.DateTo))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderBy maps the whitelisted sort fields to SQL. Priority sorts by rank,
// not alphabetically.
func orderBy(field, dir string) string {
	direction := "DESC"
	if dir == incident.SortAsc {
		direction = "ASC"
	}
	column := field
	if field == "priority" {
		column = `CASE priority
			WHEN 'critical' THEN 4
			WHEN 'high' THEN 3
			WHEN 'medium' THEN 2
			ELSE 1 END`
	}
	return fmt.Sprintf(" ORDER BY %s %s, id ASC", column, direction)
}

// appendRows inserts comments and history rows. Both tables are
// append-only; rows already present are left alone.
func appendRows(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error {
	for _, c := range inc.Comments {
		_, err := tx.Exec(ctx, `
			INSERT INTO incident_comments (id, incident_id, author_id, content, is_internal, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, c.ID, c.IncidentID, c.AuthorID, c.Content, c.IsInternal, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
	}
	for _, h := range inc.History {
		_, err := tx.Exec(ctx, `
			INSERT INTO incident_history (incident_id, seq, field, old_value, new_value, actor_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (incident_id, seq) DO NOTHING
		`, inc.ID, h.Seq, h.Field, h.OldValue, h.NewValue, h.ActorID, h.Timestamp)
		if err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	return nil
}

func (r *Repository) loadComments(ctx context.Context, inc *domain.Incident) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, incident_id, author_id, content, is_internal, created_at
		FROM incident_comments
		WHERE incident_id = $1
		ORDER BY created_at, id
	`, inc.ID)
	if err != nil {
		return fmt.Errorf("load comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.AuthorID, &c.Content, &c.IsInternal, &c.CreatedAt); err != nil {
			return fmt.Errorf("scan comment: %w", err)
		}
		inc.Comments = append(inc.Comments, c)
	}
	return rows.Err()
}

func (r *Repository) loadHistory(ctx context.Context, inc *domain.Incident) error {
	rows, err := r.db.Query(ctx, `
		SELECT seq, field, old_value, new_value, actor_id, created_at
		FROM incident_history
		WHERE incident_id = $1
		ORDER BY seq
	`, inc.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.AuditEntry
		if err := rows.Scan(&h.Seq, &h.Field, &h.OldValue, &h.NewValue, &h.ActorID, &h.Timestamp); err != nil {
			return fmt.Errorf("scan history entry: %w", err)
		}
		inc.History = append(inc.History, h)
	}
	return rows.Err()
}

func statusStrings(list []domain.Status) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(list []domain.Priority) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = string(p)
	}
	return out
}

func incidentArgs(inc *domain.Incident) []any {
	var (
		rating  *int
		comment *string
		ratedBy *string
		ratedAt *time.Time
	)
	if s := inc.Satisfaction; s != nil {
		rating = &s.Rating
		comment = &s.Comment
		ratedBy = &s.RatedBy
		ratedAt = &s.RatedAt
	}
	return []any{
		inc.ID, inc.Title, inc.Description, inc.Status, inc.Priority, inc.Category,
		inc.ReporterID, inc.AssigneeID, inc.EquipmentID,
		inc.SLA.ResponseTargetMin, inc.SLA.ResponseActualMin, inc.SLA.ResponseBreached,
		inc.SLA.ResolutionTargetMin, inc.SLA.ResolutionActualMin, inc.SLA.ResolutionBreached,
		inc.CreatedAt, inc.UpdatedAt, inc.DueDate, inc.ResolvedAt, inc.ClosedAt,
		inc.ReopenCount, inc.LastReopenedAt, inc.LastReopenedBy,
		rating, comment, ratedBy, ratedAt,
		inc.IsDeleted, inc.Version,
	}
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var (
		inc     domain.Incident
		rating  *int
		comment *string
		ratedBy *string
		ratedAt *time.Time
	)
	err := row.Scan(
		&inc.ID, &inc.Title, &inc.Description, &inc.Status, &inc.Priority, &inc.Category,
		&inc.ReporterID, &inc.AssigneeID, &inc.EquipmentID,
		&inc.SLA.ResponseTargetMin, &inc.SLA.ResponseActualMin, &inc.SLA.ResponseBreached,
		&inc.SLA.ResolutionTargetMin, &inc.SLA.ResolutionActualMin, &inc.SLA.ResolutionBreached,
		&inc.CreatedAt, &inc.UpdatedAt, &inc.DueDate, &inc.ResolvedAt, &inc.ClosedAt,
		&inc.ReopenCount, &inc.LastReopenedAt, &inc.LastReopenedBy,
		&rating, &comment, &ratedBy, &ratedAt,
		&inc.IsDeleted, &inc.Version,
	)
	if err != nil {
		return nil, err
	}
	if rating != nil {
		s := domain.Satisfaction{Rating: *rating}
		if comment != nil {
			s.Comment = *comment
		}
		if ratedBy != nil {
			s.RatedBy = *ratedBy
		}
		if ratedAt != nil {
			s.RatedAt = *ratedAt
		}
		inc.Satisfaction = &s
	}
	return &inc, nil
}
