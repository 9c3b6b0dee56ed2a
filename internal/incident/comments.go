package incident

import (
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/helpdesk/internal/domain"
)

// addComment appends a comment to the aggregate. Content length limits are
// the caller's concern; only non-empty is enforced here.
func addComment(inc *domain.Incident, authorID, content string, isInternal bool, now time.Time) domain.Comment {
	c := domain.Comment{
		ID:         uuid.New().String(),
		IncidentID: inc.ID,
		AuthorID:   authorID,
		Content:    content,
		IsInternal: isInternal,
		CreatedAt:  now,
	}
	inc.Comments = append(inc.Comments, c)
	return c
}

// VisibleComments returns comments in insertion order. With
// includeInternal=false, internal comments are filtered out; this is the
// reporter-facing projection.
func VisibleComments(inc *domain.Incident, includeInternal bool) []domain.Comment {
	if includeInternal {
		out := make([]domain.Comment, len(inc.Comments))
		copy(out, inc.Comments)
		return out
	}
	out := make([]domain.Comment, 0, len(inc.Comments))
	for _, c := range inc.Comments {
		if !c.IsInternal {
			out = append(out, c)
		}
	}
	return out
}
