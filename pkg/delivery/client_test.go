package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracetrip/pkg/model"
	"tracetrip/pkg/tracker"
)

func TestSendSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/rastreamento/location", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok123", 5*time.Second, tracker.New())
	s := &model.Sample{
		Latitude:  -23.5505,
		Longitude: -46.6333,
		Timestamp: 1700000000000,
		Accuracy:  model.Float64(8),
	}

	assert.True(t, c.Send(context.Background(), s))
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, -23.5505, gotBody["latitude"])
	assert.Equal(t, 8.0, gotBody["accuracy"])
	// Optional fields absent from the sample stay off the wire
	_, hasSpeed := gotBody["speed"]
	assert.False(t, hasSpeed)
}

func TestSendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := tracker.New()
	c := New(srv.URL, "tok", 5*time.Second, tr)
	assert.False(t, c.Send(context.Background(), &model.Sample{Timestamp: 1}))
	assert.Equal(t, int64(1), tr.Snapshot().DeliveryFailures)
}

func TestSendTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // deliberately closed

	c := New(srv.URL, "tok", time.Second, nil)
	assert.False(t, c.Send(context.Background(), &model.Sample{Timestamp: 1}))
}

func TestSendUnconfigured(t *testing.T) {
	c := New("", "", 5*time.Second, nil)
	assert.False(t, c.Send(context.Background(), &model.Sample{Timestamp: 1}))
	assert.Empty(t, c.Endpoint())

	// Missing token is treated the same as a missing base URL
	c2 := New("https://api.example.com", "", 5*time.Second, nil)
	assert.False(t, c2.Send(context.Background(), &model.Sample{Timestamp: 1}))
}

func TestSendNoRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second, nil)
	c.Send(context.Background(), &model.Sample{Timestamp: 1})
	assert.Equal(t, 1, attempts, "delivery client must not retry internally")
}
