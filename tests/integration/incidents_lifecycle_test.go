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

func TestIncidentLifecycle_HappyPath(t *testing.T) {
	client := newTestClient(t)

	inc := createTestIncident(t, client, "Projector in room 4 is dead", withPriority("high"), withCategory("hardware"))
	assert.Equal(t, domain.StatusNew, inc.Status)
	assert.Equal(t, 60, inc.SLA.ResponseTargetMin)
	assert.Equal(t, 480, inc.SLA.ResolutionTargetMin)
	assert.Nil(t, inc.SLA.ResponseActualMin)
	assert.Equal(t, 1, inc.Version)

	// Assign: moves to assigned and starts the response measurement.
	resp, err := client.As("dispatcher-1").POST("/api/v1/incidents/"+inc.ID+"/assign", map[string]interface{}{
		"assignee_id": "agent-1",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var assigned struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &assigned)
	assert.Equal(t, domain.StatusAssigned, assigned.Data.Status)
	require.NotNil(t, assigned.Data.AssigneeID)
	assert.Equal(t, "agent-1", *assigned.Data.AssigneeID)
	require.NotNil(t, assigned.Data.SLA.ResponseActualMin)
	assert.False(t, assigned.Data.SLA.ResponseBreached)

	inProgress := transition(t, client, inc.ID, "in_progress")
	assert.Equal(t, domain.StatusInProgress, inProgress.Status)

	resolved := transition(t, client, inc.ID, "resolved")
	assert.Equal(t, domain.StatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.SLA.ResolutionActualMin)
	assert.False(t, resolved.SLA.ResolutionBreached)

	closed := transition(t, client, inc.ID, "closed")
	assert.Equal(t, domain.StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	// created + assignee_id + four status changes.
	history := getIncident(t, client, inc.ID).History
	require.Len(t, history, 6)
	for i, entry := range history {
		assert.Equal(t, i+1, entry.Seq)
	}
	assert.Equal(t, "created", history[0].Field)
	assert.Equal(t, "resolved", history[5].OldValue)
	assert.Equal(t, "closed", history[5].NewValue)
}

func TestIncidentLifecycle_InvalidTransitionRejected(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "Cannot log into CRM")

	resp, err := client.As("agent-1").POST("/api/v1/incidents/"+inc.ID+"/status", map[string]interface{}{
		"status": "resolved",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()

	// Untouched: still new, only the creation audit entry.
	stored := getIncident(t, client, inc.ID)
	assert.Equal(t, domain.StatusNew, stored.Status)
	assert.Len(t, stored.History, 1)
}

func TestIncidentLifecycle_ReopenCycle(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "Wifi drops every hour", withPriority("critical"))

	transition(t, client, inc.ID, "in_progress")
	transition(t, client, inc.ID, "resolved")

	resp, err := client.As("user-reporter").POST("/api/v1/incidents/"+inc.ID+"/reopen", map[string]interface{}{
		"reason": "dropped again this morning",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reopened struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &reopened)
	assert.Equal(t, domain.StatusInProgress, reopened.Data.Status)
	assert.Equal(t, 1, reopened.Data.ReopenCount)
	assert.Nil(t, reopened.Data.ResolvedAt)
	assert.Nil(t, reopened.Data.SLA.ResolutionActualMin)
	require.NotNil(t, reopened.Data.LastReopenedBy)
	assert.Equal(t, "user-reporter", *reopened.Data.LastReopenedBy)

	// The reason is stored as an internal comment.
	commentsResp, err := client.GET("/api/v1/incidents/" + inc.ID + "/comments?include_internal=true")
	require.NoError(t, err)
	var comments struct {
		Data []domain.Comment `json:"data"`
	}
	testutil.DecodeJSON(t, commentsResp, &comments)
	require.Len(t, comments.Data, 1)
	assert.True(t, comments.Data[0].IsInternal)
	assert.Equal(t, "dropped again this morning", comments.Data[0].Content)

	// Resolve again after the reopen.
	resolved := transition(t, client, inc.ID, "resolved")
	require.NotNil(t, resolved.SLA.ResolutionActualMin)
}

func TestIncidentLifecycle_SatisfactionRating(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "Replace broken keyboard")

	// Rating before resolution is rejected.
	resp, err := client.As("user-reporter").POST("/api/v1/incidents/"+inc.ID+"/satisfaction", map[string]interface{}{
		"rating": 5,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()

	transition(t, client, inc.ID, "in_progress")
	transition(t, client, inc.ID, "resolved")

	resp, err = client.As("user-reporter").POST("/api/v1/incidents/"+inc.ID+"/satisfaction", map[string]interface{}{
		"rating":  4,
		"comment": "fast swap",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rated struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &rated)
	require.NotNil(t, rated.Data.Satisfaction)
	assert.Equal(t, 4, rated.Data.Satisfaction.Rating)

	// Second rating is rejected.
	resp, err = client.As("user-reporter").POST("/api/v1/incidents/"+inc.ID+"/satisfaction", map[string]interface{}{
		"rating": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestIncidentLifecycle_SoftDelete(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "Duplicate of another ticket")

	resp, err := client.As("admin-1").DELETE("/api/v1/incidents/" + inc.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	// Still directly readable, flagged deleted.
	stored := getIncident(t, client, inc.ID)
	assert.True(t, stored.IsDeleted)

	// Mutations rejected.
	resp, err = client.As("agent-1").POST("/api/v1/incidents/"+inc.ID+"/comments", map[string]interface{}{
		"content": "too late",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestIncidentLifecycle_ConcurrentEdit(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "Shared mailbox quota exceeded")

	// Simulate a stale writer by bumping the version out from under it.
	_, err := testDB.Exec(t.Context(), `UPDATE incidents SET version = version + 1 WHERE id = $1`, inc.ID)
	require.NoError(t, err)

	// The engine reloads before each write, so a normal command still
	// succeeds; this verifies the version bump survived a mutation cycle.
	updated := transition(t, client, inc.ID, "in_progress")
	assert.Greater(t, updated.Version, inc.Version)
}

func TestIncidentLifecycle_EditBeforeResolution(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "Slow laptop", withPriority("low"))

	resp, err := client.As("agent-1").PATCH("/api/v1/incidents/"+inc.ID, map[string]interface{}{
		"priority": "critical",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &updated)
	assert.Equal(t, domain.PriorityCritical, updated.Data.Priority)
	assert.Equal(t, 30, updated.Data.SLA.ResponseTargetMin)
	assert.Equal(t, 240, updated.Data.SLA.ResolutionTargetMin)

	transition(t, client, inc.ID, "in_progress")
	transition(t, client, inc.ID, "resolved")

	resp, err = client.As("agent-1").PATCH("/api/v1/incidents/"+inc.ID, map[string]interface{}{
		"title": "renamed after resolution",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	_ = resp.Body.Close()
}
