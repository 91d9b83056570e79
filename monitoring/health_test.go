package monitoring

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secureshare/secureshare/database"
	"github.com/secureshare/secureshare/storage"
)

func newTestMonitor(t *testing.T) (*Monitor, *storage.Store) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)

	events, err := database.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { events.Close() })

	return NewMonitor(store, events, "test"), store
}

func TestGetHealthStatusAllHealthy(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	status := monitor.GetHealthStatus()
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, 3, status.Summary.Total)
	assert.Equal(t, 3, status.Summary.Healthy)
	assert.Contains(t, status.Checks, "store")
	assert.Contains(t, status.Checks, "events")
	assert.Contains(t, status.Checks, "system")
}

func TestStoreCheckDegradedOnQuarantine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shares.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o600))

	store, err := storage.New(path)
	require.NoError(t, err)
	require.NotEmpty(t, store.QuarantinedFiles())

	monitor := NewMonitor(store, nil, "test")
	status := monitor.GetHealthStatus()

	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, StatusDegraded, status.Checks["store"].Status)
	assert.Contains(t, status.Checks["store"].Message, "quarantined")
}

func TestEventsCheckDegradedWhenUnconfigured(t *testing.T) {
	store, err := storage.New(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)

	monitor := NewMonitor(store, nil, "test")
	status := monitor.GetHealthStatus()

	assert.Equal(t, StatusDegraded, status.Checks["events"].Status)
	// Missing telemetry never turns the service unhealthy
	assert.NotEqual(t, StatusUnhealthy, status.Status)
}

func TestHealthEndpoints(t *testing.T) {
	monitor, _ := newTestMonitor(t)

	e := echo.New()
	monitor.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alive":true`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	for _, metric := range []string{
		"secureshare_health_status",
		"secureshare_shares 0",
		"secureshare_quarantined_files 0",
	} {
		assert.True(t, strings.Contains(rec.Body.String(), metric), "missing metric %s", metric)
	}
}
