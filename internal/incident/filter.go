package incident

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// DefaultMaxLimit bounds page size when no limit is configured.
const DefaultMaxLimit = 100

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// sortFields is the allow-list for the sort parameter. Unknown fields fall
// back to created_at desc.
var sortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"priority":   true,
	"status":     true,
}

var searchFolder = cases.Fold()

// Filter holds the recognized query fields. Zero values mean "no
// constraint". Deleted incidents are excluded unless IncludeDeleted is set.
type Filter struct {
	Statuses       []domain.Status
	Priorities     []domain.Priority
	Category       *domain.Category
	AssigneeID     *string
	ReporterID     *string
	EquipmentID    *string
	DateFrom       *time.Time
	DateTo         *time.Time
	Search         string
	IncludeDeleted bool
}

// Query is a normalized query: a validated filter plus sort and paging.
type Query struct {
	Filter    Filter
	SortField string
	SortDir   string
	Page      int
	Limit     int
}

// QueryResult is one page of incidents plus the unpaged total.
type QueryResult struct {
	Items []*domain.Incident
	Total int
}

// NormalizeQuery validates enum values, whitelists the sort field and
// clamps paging. It returns a ValidationError for unknown enum members;
// unknown sort fields are not an error, they fall back to created_at desc.
func NormalizeQuery(f Filter, sortField, sortDir string, page, limit, maxLimit int) (Query, error) {
	for _, s := range f.Statuses {
		if !s.IsValid() {
			return Query{}, &ValidationError{Field: "status", Message: "unknown status " + string(s)}
		}
	}
	for _, p := range f.Priorities {
		if !p.IsValid() {
			return Query{}, &ValidationError{Field: "priority", Message: "unknown priority " + string(p)}
		}
	}
	if f.Category != nil && !f.Category.IsValid() {
		return Query{}, &ValidationError{Field: "category", Message: "unknown category " + string(*f.Category)}
	}

	f.Search = searchFolder.String(strings.TrimSpace(f.Search))

	if !sortFields[sortField] {
		sortField = "created_at"
		sortDir = SortDesc
	}
	if sortDir != SortAsc && sortDir != SortDesc {
		sortDir = SortDesc
	}

	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if limit < 1 {
		limit = maxLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if page < 1 {
		page = 1
	}

	return Query{
		Filter:    f,
		SortField: sortField,
		SortDir:   sortDir,
		Page:      page,
		Limit:     limit,
	}, nil
}

// Matches reports whether an incident satisfies the filter. The postgres
// repository pushes this into SQL; in-memory implementations use it as-is.
func (f Filter) Matches(inc *domain.Incident) bool {
	if inc.IsDeleted && !f.IncludeDeleted {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, inc.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, inc.Priority) {
		return false
	}
	if f.Category != nil && inc.Category != *f.Category {
		return false
	}
	if f.AssigneeID != nil && (inc.AssigneeID == nil || *inc.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.ReporterID != nil && inc.ReporterID != *f.ReporterID {
		return false
	}
	if f.EquipmentID != nil && (inc.EquipmentID == nil || *inc.EquipmentID != *f.EquipmentID) {
		return false
	}
	if f.DateFrom != nil && inc.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && inc.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.Search != "" {
		haystack := searchFolder.String(inc.Title + " " + inc.Description)
		if !strings.Contains(haystack, f.Search) {
			return false
		}
	}
	return true
}

func containsStatus(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.Priority, p domain.Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
