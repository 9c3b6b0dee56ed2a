//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/testutil"
)

type incidentOption func(map[string]interface{})

func withPriority(p string) incidentOption {
	return func(payload map[string]interface{}) { payload["priority"] = p }
}

func withCategory(c string) incidentOption {
	return func(payload map[string]interface{}) { payload["category"] = c }
}

func withReporter(id string) incidentOption {
	return func(payload map[string]interface{}) { payload["reporter_id"] = id }
}

func withEquipment(id string) incidentOption {
	return func(payload map[string]interface{}) { payload["equipment_id"] = id }
}

// createTestIncident submits an incident and returns the decoded aggregate.
func createTestIncident(t *testing.T, client *testutil.Client, title string, opts ...incidentOption) domain.Incident {
	t.Helper()

	payload := map[string]interface{}{
		"title":       title,
		"priority":    "medium",
		"category":    "software",
		"reporter_id": "user-reporter",
	}
	for _, opt := range opts {
		opt(payload)
	}

	resp, err := client.As("user-reporter").POST("/api/v1/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)
	return result.Data
}

// transition moves an incident to the target status and returns the updated
// aggregate.
func transition(t *testing.T, client *testutil.Client, id, status string) domain.Incident {
	t.Helper()

	resp, err := client.As("agent-1").POST("/api/v1/incidents/"+id+"/status", map[string]interface{}{
		"status": status,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// getIncident loads one incident through the API.
func getIncident(t *testing.T, client *testutil.Client, id string) domain.Incident {
	t.Helper()

	resp, err := client.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data domain.Incident `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// seedEquipment inserts an asset directly; the API surface is read-only.
func seedEquipment(t *testing.T, name, assetTag, eqType string) string {
	t.Helper()

	id := fmt.Sprintf("eq-%d", time.Now().UnixNano())
	_, err := testDB.Exec(context.Background(), `
		INSERT INTO equipment (id, name, asset_tag, type, location, status)
		VALUES ($1, $2, $3, $4, 'HQ floor 2', 'active')
	`, id, name, assetTag, eqType)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = testDB.Exec(context.Background(), `DELETE FROM equipment WHERE id = $1`, id)
	})
	return id
}
