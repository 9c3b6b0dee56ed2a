//go:build integration

package integration

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdeck/helpdesk/internal/domain"
)

func dialWS(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWSEvent(t *testing.T, conn *websocket.Conn) domain.LifecycleEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev domain.LifecycleEvent
	require.NoError(t, json.Unmarshal(payload, &ev))
	return ev
}

func TestWS_IncidentEventStream(t *testing.T) {
	client := newTestClient(t)
	inc := createTestIncident(t, client, "Stream this incident", withPriority("high"))

	conn := dialWS(t, "?incident="+inc.ID)
	time.Sleep(100 * time.Millisecond)

	transition(t, client, inc.ID, "in_progress")

	ev := readWSEvent(t, conn)
	assert.Equal(t, domain.EventStatusChanged, ev.Type)
	assert.Equal(t, inc.ID, ev.IncidentID)
	assert.Equal(t, domain.StatusInProgress, ev.Status)
}

func TestWS_WildcardSeesOtherIncidents(t *testing.T) {
	client := newTestClient(t)

	conn := dialWS(t, "?incident=*")
	time.Sleep(100 * time.Millisecond)

	inc := createTestIncident(t, client, "Broadcast check")

	// The wildcard stream may carry events from concurrent tests; scan
	// until our incident's creation shows up.
	deadline := time.Now().Add(5 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "creation event never arrived")
		ev := readWSEvent(t, conn)
		if ev.IncidentID == inc.ID && ev.Type == domain.EventCreated {
			break
		}
	}
}
