package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastsEventsToClients(t *testing.T) {
	hub := NewHub(discardLogger())
	hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub loop a beat to register the client.
	time.Sleep(50 * time.Millisecond)

	hub.Consume(context.Background(), Event{
		Kind:      KindIssued,
		LicenseID: 42,
		Key:       "PRUDA-AAAA-BBBB-CCCC-DDDD",
		At:        time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope struct {
		Type string `json:"type"`
		Data Event  `json:"data"`
	}
	require.NoError(t, json.Unmarshal(message, &envelope))
	assert.Equal(t, "license:event", envelope.Type)
	assert.Equal(t, KindIssued, envelope.Data.Kind)
	assert.EqualValues(t, 42, envelope.Data.LicenseID)
}
