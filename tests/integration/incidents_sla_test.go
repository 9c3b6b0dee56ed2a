//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/testutil"
)

type slaStatus struct {
	Data struct {
		SLA                        domain.SLA `json:"sla"`
		RemainingResolutionMinutes int        `json:"remaining_resolution_minutes"`
	} `json:"data"`
}

func TestIncidentSLA_TargetsPerPriority(t *testing.T) {
	client := newTestClient(t)

	tests := []struct {
		priority      string
		responseMin   int
		resolutionMin int
	}{
		{"critical", 30, 240},
		{"high", 60, 480},
		{"medium", 240, 1440},
		{"low", 480, 2880},
	}

	for _, tt := range tests {
		t.Run(tt.priority, func(t *testing.T) {
			inc := createTestIncident(t, client, "sla target check "+tt.priority, withPriority(tt.priority))
			assert.Equal(t, tt.responseMin, inc.SLA.ResponseTargetMin)
			assert.Equal(t, tt.resolutionMin, inc.SLA.ResolutionTargetMin)
		})
	}
}

func TestIncidentSLA_StatusEndpoint(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "AV equipment not booting", withPriority("critical"))

	resp, err := client.GET("/api/v1/incidents/" + inc.ID + "/sla")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status slaStatus
	testutil.DecodeJSON(t, resp, &status)

	// Freshly created: full budget, nothing measured.
	assert.Nil(t, status.Data.SLA.ResponseActualMin)
	assert.LessOrEqual(t, status.Data.RemainingResolutionMinutes, 240)
	assert.Greater(t, status.Data.RemainingResolutionMinutes, 230)

	transition(t, client, inc.ID, "in_progress")
	transition(t, client, inc.ID, "resolved")

	resp, err = client.GET("/api/v1/incidents/" + inc.ID + "/sla")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &status)

	// Measured within the test run: immediate, not breached.
	require.NotNil(t, status.Data.SLA.ResponseActualMin)
	assert.False(t, status.Data.SLA.ResponseBreached)
	require.NotNil(t, status.Data.SLA.ResolutionActualMin)
	assert.False(t, status.Data.SLA.ResolutionBreached)
	assert.Zero(t, status.Data.RemainingResolutionMinutes)
}
