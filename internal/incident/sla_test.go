package incident

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/helpdesk/internal/domain"
)

func newTestIncident(priority domain.Priority, createdAt time.Time) *domain.Incident {
	targets := DefaultSLATargets()[priority]
	return &domain.Incident{
		ID:       "inc-1",
		Status:   domain.StatusNew,
		Priority: priority,
		SLA: domain.SLA{
			ResponseTargetMin:   targets.ResponseMin,
			ResolutionTargetMin: targets.ResolutionMin,
		},
		CreatedAt: createdAt,
	}
}

func TestSLAPolicy_TargetsFor(t *testing.T) {
	policy := NewSLAPolicy(DefaultSLATargets())

	targets, err := policy.TargetsFor(domain.PriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, 30, targets.ResponseMin)
	assert.Equal(t, 240, targets.ResolutionMin)

	_, err = policy.TargetsFor(domain.Priority("urgent"))
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, domain.Priority("urgent"), configErr.Priority)
}

func TestSLAPolicy_MarkResponse(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := NewSLAPolicy(DefaultSLATargets())

	tests := []struct {
		name           string
		priority       domain.Priority
		elapsed        time.Duration
		expectedActual int
		breached       bool
	}{
		{"high within target", domain.PriorityHigh, 45 * time.Minute, 45, false},
		{"high exactly at target", domain.PriorityHigh, 60 * time.Minute, 60, false},
		{"high past target", domain.PriorityHigh, 70 * time.Minute, 70, true},
		{"partial minute truncates toward zero", domain.PriorityHigh, 60*time.Minute + 59*time.Second, 60, false},
		{"critical past target", domain.PriorityCritical, 31 * time.Minute, 31, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := newTestIncident(tt.priority, created)
			policy.MarkResponse(inc, created.Add(tt.elapsed))

			require.NotNil(t, inc.SLA.ResponseActualMin)
			assert.Equal(t, tt.expectedActual, *inc.SLA.ResponseActualMin)
			assert.Equal(t, tt.breached, inc.SLA.ResponseBreached)
		})
	}
}

func TestSLAPolicy_MarkResponse_SetOnce(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := NewSLAPolicy(DefaultSLATargets())
	inc := newTestIncident(domain.PriorityHigh, created)

	policy.MarkResponse(inc, created.Add(10*time.Minute))
	policy.MarkResponse(inc, created.Add(90*time.Minute))

	require.NotNil(t, inc.SLA.ResponseActualMin)
	assert.Equal(t, 10, *inc.SLA.ResponseActualMin)
	assert.False(t, inc.SLA.ResponseBreached)
}

func TestSLAPolicy_MarkResolution(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := NewSLAPolicy(DefaultSLATargets())

	// Critical resolution target is 240 minutes. Breach requires strictly
	// more than the target.
	tests := []struct {
		name           string
		elapsed        time.Duration
		expectedActual int
		breached       bool
	}{
		{"one minute under", 239 * time.Minute, 239, false},
		{"exactly at target", 240 * time.Minute, 240, false},
		{"one minute over", 241 * time.Minute, 241, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := newTestIncident(domain.PriorityCritical, created)
			resolvedAt := created.Add(tt.elapsed)
			policy.MarkResolution(inc, resolvedAt)

			require.NotNil(t, inc.SLA.ResolutionActualMin)
			assert.Equal(t, tt.expectedActual, *inc.SLA.ResolutionActualMin)
			assert.Equal(t, tt.breached, inc.SLA.ResolutionBreached)
			require.NotNil(t, inc.ResolvedAt)
			assert.Equal(t, resolvedAt, *inc.ResolvedAt)
		})
	}
}

func TestSLAPolicy_ClearResolution(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := NewSLAPolicy(DefaultSLATargets())
	inc := newTestIncident(domain.PriorityCritical, created)

	policy.MarkResponse(inc, created.Add(5*time.Minute))
	policy.MarkResolution(inc, created.Add(300*time.Minute))
	require.True(t, inc.SLA.ResolutionBreached)

	policy.ClearResolution(inc)

	assert.Nil(t, inc.ResolvedAt)
	assert.Nil(t, inc.SLA.ResolutionActualMin)
	assert.False(t, inc.SLA.ResolutionBreached)

	// The response measurement belongs to the original window and stays.
	require.NotNil(t, inc.SLA.ResponseActualMin)
	assert.Equal(t, 5, *inc.SLA.ResponseActualMin)
}

func TestSLAPolicy_RemainingResolutionMinutes(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := NewSLAPolicy(DefaultSLATargets())

	inc := newTestIncident(domain.PriorityCritical, created)
	assert.Equal(t, 240, policy.RemainingResolutionMinutes(inc, created))
	assert.Equal(t, 180, policy.RemainingResolutionMinutes(inc, created.Add(60*time.Minute)))
	assert.Equal(t, -60, policy.RemainingResolutionMinutes(inc, created.Add(300*time.Minute)))

	inc.Status = domain.StatusResolved
	assert.Equal(t, 0, policy.RemainingResolutionMinutes(inc, created.Add(300*time.Minute)))

	inc.Status = domain.StatusClosed
	assert.Equal(t, 0, policy.RemainingResolutionMinutes(inc, created.Add(300*time.Minute)))
}
