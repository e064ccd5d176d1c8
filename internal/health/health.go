// Package health provides liveness and readiness endpoints for the workspace panel.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/workspace-panel/internal/metrics"
)

const checkTimeout = 5 * time.Second

// Pinger is any dependency that can report its connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a named readiness check. Optional dependencies are reported
// but never make the service unready.
type Dependency struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

// HealthCheck manages health check functionality.
type HealthCheck struct {
	deps          []Dependency
	metrics       *metrics.Metrics
	logger        *zap.Logger
	checkInterval time.Duration

	mu        sync.RWMutex
	ready     bool
	checks    map[string]string
	lastError string
	lastCheck time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// NewHealthCheck creates a new HealthCheck instance. m may be nil.
func NewHealthCheck(deps []Dependency, m *metrics.Metrics, logger *zap.Logger) *HealthCheck {
	return &HealthCheck{
		deps:          deps,
		metrics:       m,
		logger:        logger,
		checkInterval: 5 * time.Second,
		checks:        make(map[string]string),
		stop:          make(chan struct{}),
	}
}

// Start runs the background check loop until Stop is called.
func (hc *HealthCheck) Start() {
	go hc.backgroundCheck()
}

// Stop ends the background check loop.
func (hc *HealthCheck) Stop() {
	hc.stopOnce.Do(func() { close(hc.stop) })
}

// LivenessHandler handles GET /health requests.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready requests.
// A cached healthy result is served directly; otherwise the checks run now.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hc.mu.RLock()
	isReady := hc.ready
	hc.mu.RUnlock()

	if !isReady {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		hc.CheckNow(ctx)
		cancel()
	}

	hc.mu.RLock()
	resp := ReadinessResponse{Checks: copyChecks(hc.checks), Error: hc.lastError}
	isReady = hc.ready
	hc.mu.RUnlock()

	if isReady {
		resp.Status = "ready"
		resp.Error = ""
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Status = "not_ready"
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

// CheckNow pings every dependency and records the result.
func (hc *HealthCheck) CheckNow(ctx context.Context) bool {
	checks := make(map[string]string, len(hc.deps))
	ready := true
	var firstErr string

	for _, dep := range hc.deps {
		if err := dep.Pinger.Ping(ctx); err != nil {
			checks[dep.Name] = "unhealthy"
			if !dep.Optional {
				ready = false
				if firstErr == "" {
					firstErr = dep.Name + ": " + err.Error()
				}
			}
			hc.logger.Warn("health check failed",
				zap.String("dependency", dep.Name),
				zap.Bool("optional", dep.Optional),
				zap.Error(err),
			)
			continue
		}
		checks[dep.Name] = "healthy"
	}

	hc.mu.Lock()
	hc.ready = ready
	hc.checks = checks
	hc.lastError = firstErr
	hc.lastCheck = time.Now()
	hc.mu.Unlock()

	if hc.metrics != nil {
		hc.metrics.SetHealthStatus(ready)
	}
	return ready
}

func (hc *HealthCheck) backgroundCheck() {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-hc.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			hc.CheckNow(ctx)
			cancel()
		}
	}
}

// IsReady returns the current readiness status.
func (hc *HealthCheck) IsReady() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.ready
}

// SetReady sets the readiness status (for testing).
func (hc *HealthCheck) SetReady(ready bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.ready = ready
}

func copyChecks(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
