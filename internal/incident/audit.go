package incident

import (
	"iter"
	"time"

	"github.com/opsdeck/helpdesk/internal/domain"
)

// appendAudit pushes one immutable history entry onto the aggregate.
// Sequence numbers are assigned here and increase monotonically per
// incident; callers never supply them.
func appendAudit(inc *domain.Incident, field, oldValue, newValue, actorID string, now time.Time) {
	inc.History = append(inc.History, domain.AuditEntry{
		Seq:       len(inc.History) + 1,
		Field:     field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ActorID:   actorID,
		Timestamp: now,
	})
}

// AuditEntries returns the history in insertion order as a restartable
// sequence. The snapshot is taken when called; entries appended later are
// not observed by an in-flight iteration.
func AuditEntries(inc *domain.Incident) iter.Seq[domain.AuditEntry] {
	snapshot := make([]domain.AuditEntry, len(inc.History))
	copy(snapshot, inc.History)
	return func(yield func(domain.AuditEntry) bool) {
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}
