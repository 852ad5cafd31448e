package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tobiasrehn/shadeflow/internal/authn"
	"github.com/tobiasrehn/shadeflow/internal/hostadapter/memory"
	"github.com/tobiasrehn/shadeflow/internal/shading/controller"
	"github.com/tobiasrehn/shadeflow/pkg/config"
)

func testServer(t *testing.T) (*httptest.Server, *authn.Service, string) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.UniqueID = "living_room"
	cfg.Entities.Cover = "cover.living_room"
	cfg.Entities.BrightnessShadow = "sensor.brightness"

	host := memory.New(time.Now())
	c := controller.New(cfg, host, nil)

	authSvc := authn.NewService(authn.Config{JWTSecret: "test-secret"})
	hash, err := authSvc.HashPassword("operator-pass")
	require.NoError(t, err)

	srv := NewServer(
		map[string]*controller.Controller{"living_room": c},
		authSvc,
		[]Operator{{Username: "admin", PasswordHash: hash, Role: authn.RoleAdmin}},
		nil,
	)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, authSvc, hash
}

func login(t *testing.T, baseURL string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "operator-pass"})
	resp, err := http.Post(baseURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts, _, _ := testServer(t)
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDevicesRequiresAuth(t *testing.T) {
	ts, _, _ := testServer(t)
	resp, err := http.Get(ts.URL + "/api/v1/devices")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListDevicesReturnsConfiguredController(t *testing.T) {
	ts, _, _ := testServer(t)
	token := login(t, ts.URL)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var views []deviceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 1)
	assert.Equal(t, "living_room", views[0].UniqueID)
	assert.Equal(t, "Neutral", views[0].Mode)
}

func TestLockRequiresAdminRole(t *testing.T) {
	ts, authSvc, _ := testServer(t)
	token := login(t, ts.URL)

	viewerToken, err := authSvc.GenerateToken("viewer", authn.RoleViewer)
	require.NoError(t, err)
	viewerReq, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/devices/living_room/lock", nil)
	viewerReq.Header.Set("Authorization", "Bearer "+viewerToken)
	viewerResp, err := http.DefaultClient.Do(viewerReq)
	require.NoError(t, err)
	defer viewerResp.Body.Close()
	assert.Equal(t, http.StatusForbidden, viewerResp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/devices/living_room/lock", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view deviceView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.True(t, view.ManualLock)
}

func TestUnknownDeviceReturns404(t *testing.T) {
	ts, _, _ := testServer(t)
	token := login(t, ts.URL)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/devices/nonexistent", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
