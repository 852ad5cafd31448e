package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiasrehn/shadeflow/internal/hostadapter"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:           url,
		Token:             "test-token",
		AppDir:            "/tmp/shadeflow-rest-test",
		RequestsPerSecond: 1000,
		RetryConfig:       RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
	}
}

func TestGetStateDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/states/cover.living_room", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"state":      "closed",
			"attributes": map[string]any{"current_position": 30.0},
		})
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), nil)
	v, err := a.GetState(context.Background(), "cover.living_room")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, "closed", v.State)
	assert.Equal(t, 30.0, v.Attributes["current_position"])
}

func TestGetStateNotFoundIsInvalidNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), nil)
	v, err := a.GetState(context.Background(), "cover.missing")
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestCallServiceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/services/cover/set_cover_position", r.URL.Path)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "cover.living_room", body["entity_id"])
		assert.Equal(t, float64(40), body["position"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), nil)
	res, err := a.CallService(context.Background(), "cover", "set_cover_position", "cover.living_room", map[string]any{"position": 40})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestCallServiceRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), nil)
	res, err := a.CallService(context.Background(), "cover", "set_cover_position", "cover.living_room", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPollFiresHandlerOnChange(t *testing.T) {
	state := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := "off"
		if atomic.LoadInt32(&state) == 1 {
			s = "on"
		}
		json.NewEncoder(w).Encode(map[string]any{"state": s})
	}))
	defer srv.Close()

	a := New(testConfig(srv.URL), nil)

	var seen []string
	a.ListenState("binary_sensor.window", func(ctx context.Context, entity string, old, v hostadapter.StateValue) {
		seen = append(seen, v.State)
	})

	a.Poll(context.Background())
	assert.Equal(t, []string{"off"}, seen)

	a.Poll(context.Background())
	assert.Equal(t, []string{"off"}, seen, "unchanged state must not refire the handler")

	atomic.StoreInt32(&state, 1)
	a.Poll(context.Background())
	assert.Equal(t, []string{"off", "on"}, seen)
}
