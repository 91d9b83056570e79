package monitoring

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/secureshare/secureshare/database"
	"github.com/secureshare/secureshare/logging"
	"github.com/secureshare/secureshare/storage"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a single health check result
type HealthCheck struct {
	Name      string        `json:"name"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus           `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    time.Duration          `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
	System    SystemInfo             `json:"system"`
	Summary   HealthSummary          `json:"summary"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemStats     struct {
		Alloc      uint64 `json:"alloc"`
		TotalAlloc uint64 `json:"total_alloc"`
		Sys        uint64 `json:"sys"`
		NumGC      uint32 `json:"num_gc"`
		LastGC     string `json:"last_gc"`
	} `json:"memory"`
}

// HealthSummary provides summary statistics
type HealthSummary struct {
	Total     int `json:"total"`
	Healthy   int `json:"healthy"`
	Degraded  int `json:"degraded"`
	Unhealthy int `json:"unhealthy"`
}

// HealthChecker interface for implementing health checks
type HealthChecker interface {
	Check() HealthCheck
	Name() string
}

// Monitor manages health checks for the share store and event log
type Monitor struct {
	store     *storage.Store
	events    *database.DB
	startTime time.Time
	version   string
	checks    map[string]HealthChecker
}

// NewMonitor creates a health monitor with the default checks registered
func NewMonitor(store *storage.Store, events *database.DB, version string) *Monitor {
	m := &Monitor{
		store:     store,
		events:    events,
		startTime: time.Now(),
		version:   version,
		checks:    make(map[string]HealthChecker),
	}

	m.RegisterCheck(&StoreHealthCheck{store: store})
	m.RegisterCheck(&EventsHealthCheck{events: events})
	m.RegisterCheck(&SystemHealthCheck{})

	return m
}

// RegisterCheck registers a new health check
func (m *Monitor) RegisterCheck(checker HealthChecker) {
	m.checks[checker.Name()] = checker
}

// GetHealthStatus performs all health checks and returns the status
func (m *Monitor) GetHealthStatus() HealthResponse {
	start := time.Now()
	checks := make(map[string]HealthCheck)
	summary := HealthSummary{}

	for name, checker := range m.checks {
		check := checker.Check()
		checks[name] = check
		summary.Total++

		switch check.Status {
		case StatusHealthy:
			summary.Healthy++
		case StatusDegraded:
			summary.Degraded++
		case StatusUnhealthy:
			summary.Unhealthy++
		}
	}

	overallStatus := StatusHealthy
	if summary.Unhealthy > 0 {
		overallStatus = StatusUnhealthy
	} else if summary.Degraded > 0 {
		overallStatus = StatusDegraded
	}

	return HealthResponse{
		Status:    overallStatus,
		Timestamp: start,
		Version:   m.version,
		Uptime:    time.Since(m.startTime),
		Checks:    checks,
		System:    getSystemInfo(),
		Summary:   summary,
	}
}

// getSystemInfo collects system information
func getSystemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := SystemInfo{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
	}

	info.MemStats.Alloc = memStats.Alloc
	info.MemStats.TotalAlloc = memStats.TotalAlloc
	info.MemStats.Sys = memStats.Sys
	info.MemStats.NumGC = memStats.NumGC
	if memStats.LastGC > 0 {
		info.MemStats.LastGC = time.Unix(0, int64(memStats.LastGC)).Format(time.RFC3339)
	}

	return info
}

// StoreHealthCheck checks the share store's backing file
type StoreHealthCheck struct {
	store *storage.Store
}

func (s *StoreHealthCheck) Name() string {
	return "store"
}

func (s *StoreHealthCheck) Check() HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Name:      "store",
		Timestamp: start,
	}

	if s.store == nil {
		check.Status = StatusUnhealthy
		check.Message = "Store is nil"
		check.Duration = time.Since(start)
		return check
	}

	// Saves land in the store's directory, so it has to exist
	dir := filepath.Dir(s.store.Path())
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Store directory unavailable: %s", dir)
		check.Duration = time.Since(start)
		return check
	}

	if quarantined := len(s.store.QuarantinedFiles()); quarantined > 0 {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d quarantined file(s) await review", quarantined)
	} else {
		check.Status = StatusHealthy
		check.Message = fmt.Sprintf("Store operational, %d share(s)", s.store.Count())
	}

	check.Duration = time.Since(start)
	return check
}

// EventsHealthCheck checks event database connectivity
type EventsHealthCheck struct {
	events *database.DB
}

func (e *EventsHealthCheck) Name() string {
	return "events"
}

func (e *EventsHealthCheck) Check() HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Name:      "events",
		Timestamp: start,
	}

	// Event logging is observability only, so its loss degrades rather
	// than fails the service.
	if e.events == nil {
		check.Status = StatusDegraded
		check.Message = "Event logging not configured"
	} else if err := e.events.Ping(); err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Event database unreachable: %v", err)
	} else {
		check.Status = StatusHealthy
		check.Message = "Event database operational"
	}

	check.Duration = time.Since(start)
	return check
}

// SystemHealthCheck checks system resources
type SystemHealthCheck struct{}

func (s *SystemHealthCheck) Name() string {
	return "system"
}

func (s *SystemHealthCheck) Check() HealthCheck {
	start := time.Now()
	check := HealthCheck{
		Name:      "system",
		Timestamp: start,
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memUsageMB := memStats.Alloc / 1024 / 1024
	numGoroutines := runtime.NumGoroutine()

	if memUsageMB > 1024 {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("High memory usage: %d MB", memUsageMB)
	} else if numGoroutines > 1000 {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("High goroutine count: %d", numGoroutines)
	} else {
		check.Status = StatusHealthy
		check.Message = "System resources normal"
	}

	check.Duration = time.Since(start)
	return check
}

// HTTP Handlers

// RegisterRoutes mounts the monitoring endpoints
func (m *Monitor) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", m.HealthHandler)
	e.GET("/health/live", m.LivenessHandler)
	e.GET("/metrics", m.MetricsHandler)
}

// HealthHandler returns the complete health status
func (m *Monitor) HealthHandler(c echo.Context) error {
	status := m.GetHealthStatus()

	logging.DebugLogger.Printf("Health check: %s (%d/%d healthy)",
		status.Status, status.Summary.Healthy, status.Summary.Total)

	httpStatus := http.StatusOK
	if status.Status == StatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, status)
}

// LivenessHandler returns liveness status (minimal check)
func (m *Monitor) LivenessHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now(),
		"uptime":    time.Since(m.startTime).String(),
	})
}

// MetricsHandler returns Prometheus-compatible metrics
func (m *Monitor) MetricsHandler(c echo.Context) error {
	status := m.GetHealthStatus()

	shares := 0
	quarantined := 0
	if m.store != nil {
		shares = m.store.Count()
		quarantined = len(m.store.QuarantinedFiles())
	}

	metrics := fmt.Sprintf(`# HELP secureshare_health_status Overall health status (0=unhealthy, 1=degraded, 2=healthy)
# TYPE secureshare_health_status gauge
secureshare_health_status{version="%s"} %d

# HELP secureshare_uptime_seconds Uptime in seconds
# TYPE secureshare_uptime_seconds counter
secureshare_uptime_seconds %f

# HELP secureshare_shares Number of share records currently held
# TYPE secureshare_shares gauge
secureshare_shares %d

# HELP secureshare_quarantined_files Number of quarantined store files awaiting review
# TYPE secureshare_quarantined_files gauge
secureshare_quarantined_files %d

# HELP secureshare_memory_bytes Memory usage in bytes
# TYPE secureshare_memory_bytes gauge
secureshare_memory_bytes %d

# HELP secureshare_goroutines Number of goroutines
# TYPE secureshare_goroutines gauge
secureshare_goroutines %d

# HELP secureshare_checks_healthy Number of healthy checks
# TYPE secureshare_checks_healthy gauge
secureshare_checks_healthy %d

# HELP secureshare_checks_degraded Number of degraded checks
# TYPE secureshare_checks_degraded gauge
secureshare_checks_degraded %d

# HELP secureshare_checks_unhealthy Number of unhealthy checks
# TYPE secureshare_checks_unhealthy gauge
secureshare_checks_unhealthy %d
`,
		status.Version,
		healthStatusToInt(status.Status),
		status.Uptime.Seconds(),
		shares,
		quarantined,
		status.System.MemStats.Alloc,
		status.System.NumGoroutine,
		status.Summary.Healthy,
		status.Summary.Degraded,
		status.Summary.Unhealthy,
	)

	return c.String(http.StatusOK, metrics)
}

// healthStatusToInt converts HealthStatus to integer for Prometheus
func healthStatusToInt(status HealthStatus) int {
	switch status {
	case StatusUnhealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusHealthy:
		return 2
	default:
		return 0
	}
}
