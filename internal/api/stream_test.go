package api

import (
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

func TestStreamBroadcast(t *testing.T) {
	h := NewStreamHandler()
	defer h.Close()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The registration races the broadcast without a short settle.
	time.Sleep(50 * time.Millisecond)
	h.Broadcast("tracking", map[string]string{"state": "started"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "tracking", msg.Type)

	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "started", payload["state"])
}

func TestStreamCloseDisconnectsClients(t *testing.T) {
	h := NewStreamHandler()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	h.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "server closed the stream")
}
