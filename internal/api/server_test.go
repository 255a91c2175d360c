package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	block     uint64
	pending   int
	promising int
}

func (f *fakeStatus) CurrentBlock() uint64  { return f.block }
func (f *fakeStatus) PendingCount() int     { return f.pending }
func (f *fakeStatus) PromisingCount() int   { return f.promising }

type fakeControl struct {
	paused bool
}

func (f *fakeControl) Pause()        { f.paused = true }
func (f *fakeControl) Resume()       { f.paused = false }
func (f *fakeControl) Paused() bool  { return f.paused }

const testAPIKey = "test-key"

func setupTestServer(t *testing.T) (*Server, *fakeStatus, *fakeControl) {
	t.Helper()
	status := &fakeStatus{block: 100, pending: 3, promising: 1}
	control := &fakeControl{}
	server, _ := NewServer(0, testAPIKey, status, control, nil)
	return server, status, control
}

func TestHealthCheck_NoAuthRequired(t *testing.T) {
	server, _, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestGetSystemStatus_ReflectsLoopState(t *testing.T) {
	server, _, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, uint64(100), resp.CurrentBlock)
	assert.Equal(t, 3, resp.PendingTxCount)
}

func TestOverride_PauseAndResume(t *testing.T) {
	server, _, control := setupTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/override/pause", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, control.Paused())

	req = httptest.NewRequest("POST", "/api/v1/override/resume", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w = httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, control.Paused())
}

func TestOverride_UnknownCommandIsBadRequest(t *testing.T) {
	server, _, _ := setupTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/override/launch_nukes", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthentication_RejectsMissingOrWrongKey(t *testing.T) {
	server, _, _ := setupTestServer(t)

	req := httptest.NewRequest("GET", "/api/v1/status", nil)
	w := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	server.server.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiting_BlocksBurstOverflow(t *testing.T) {
	server, _, _ := setupTestServer(t)
	server.rateLimiter.SetCustomLimit("burst_client", &RateLimit{
		RequestsPerMinute: 2,
		BurstSize:         2,
		WindowSize:        time.Minute,
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "burst_client:12345"
		w := httptest.NewRecorder()
		server.server.Handler.ServeHTTP(w, req)

		if i < 2 {
			assert.Equal(t, http.StatusOK, w.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
		}
	}
}

func TestWebSocketServer_BroadcastsWithoutClients(t *testing.T) {
	server, _, _ := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, server.Websockets().Start(ctx))
	assert.Equal(t, 0, server.Websockets().GetConnectedClients())
	assert.NoError(t, server.Websockets().BroadcastBlock(BlockEvent{Number: 100}))
	assert.NoError(t, server.Websockets().BroadcastBundle(BundleEvent{TargetBlock: 101}))
}

func TestServerLifecycle_StartAndStop(t *testing.T) {
	server, _, _ := setupTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, server.Start(ctx))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, server.Stop(context.Background()))
}

func TestNewServer_GeneratesKeyWhenEmpty(t *testing.T) {
	status := &fakeStatus{}
	control := &fakeControl{}
	_, generated := NewServer(0, "", status, control, nil)
	assert.NotEmpty(t, generated)
}
