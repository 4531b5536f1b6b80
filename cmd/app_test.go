package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikills/mintline/drop"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (string, *App) {
	t.Helper()
	pipeline := drop.NewPipeline("devnet", "drop", t.TempDir(),
		nil, nil, &drop.FileCacheStore{Dir: t.TempDir()})
	app := NewApp(pipeline, AppConfig{Address: "127.0.0.1:0"})
	require.NoError(t, app.Start())
	t.Cleanup(func() {
		_ = app.Stop(context.Background())
		_ = app.Wait()
	})
	require.NotEmpty(t, app.Address())
	return "http://" + app.Address(), app
}

func TestAppHTTP(t *testing.T) {
	t.Run("endpoints", testAppEndpoints)
	t.Run("status_body", testAppStatusBody)
	t.Run("double_start", testAppDoubleStart)
}

func testAppEndpoints(t *testing.T) {
	base, _ := newTestApp(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "healthz", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "status", method: http.MethodGet, path: "/v1/status", status: http.StatusOK},
		{name: "unknown", method: http.MethodGet, path: "/v1/nope", status: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, base+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func testAppStatusBody(t *testing.T) {
	base, _ := newTestApp(t)

	resp, err := http.Get(base + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	// No cache loaded yet, so the run reads as still in flight.
	assert.Equal(t, "running", body.Status)
	assert.Zero(t, body.Progress.Items)
}

func testAppDoubleStart(t *testing.T) {
	_, app := newTestApp(t)
	assert.Error(t, app.Start())
}

func TestStatusRouteReportsCompletion(t *testing.T) {
	e := echo.New()
	Register(e, Dependencies{
		Progress: func() drop.Progress {
			return drop.Progress{Items: 4, Linked: 4, Committed: 4}
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "complete", body.Status)
	assert.Equal(t, 4, body.Progress.Committed)
}

func TestStatusRouteWithoutPipeline(t *testing.T) {
	e := echo.New()
	Register(e, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
