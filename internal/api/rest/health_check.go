package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"
)

// HealthChecker checks the health of one dependency
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthCheckResult
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       HealthStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
	ResponseTime string       `json:"response_time"`
	LastChecked  time.Time    `json:"last_checked"`
}

// HealthStatus represents the health status
type HealthStatus string

const (
	HealthStatusPass HealthStatus = "pass"
	HealthStatusFail HealthStatus = "fail"
)

// HealthService runs dependency health checks with a short timeout each
type HealthService struct {
	mu        sync.Mutex
	checkers  []HealthChecker
	timeout   time.Duration
	startTime time.Time
	version   string
}

// NewHealthService creates a health service
func NewHealthService(version string, checkers ...HealthChecker) *HealthService {
	return &HealthService{
		checkers:  checkers,
		timeout:   5 * time.Second,
		startTime: time.Now(),
		version:   version,
	}
}

// Register adds a checker
func (s *HealthService) Register(c HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers = append(s.checkers, c)
}

type healthReport struct {
	Status    HealthStatus                 `json:"status"`
	Version   string                       `json:"version"`
	Uptime    string                       `json:"uptime"`
	Checks    map[string]HealthCheckResult `json:"checks"`
	Goroutine int                          `json:"goroutines"`
}

// runChecks fans the checkers out and collapses their statuses
func (s *HealthService) runChecks(ctx context.Context) healthReport {
	s.mu.Lock()
	checkers := make([]HealthChecker, len(s.checkers))
	copy(checkers, s.checkers)
	s.mu.Unlock()

	report := healthReport{
		Status:    HealthStatusPass,
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    make(map[string]HealthCheckResult, len(checkers)),
		Goroutine: runtime.NumGoroutine(),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			result := c.Check(checkCtx)
			mu.Lock()
			report.Checks[c.Name()] = result
			if result.Status == HealthStatusFail {
				report.Status = HealthStatusFail
			}
			mu.Unlock()
		}(checker)
	}
	wg.Wait()

	return report
}

// HandleHealth serves the full dependency health report
func (s *HealthService) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.runChecks(r.Context())

	status := http.StatusOK
	if report.Status == HealthStatusFail {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}

// HandleLiveness answers liveness probes without touching dependencies
func (s *HealthService) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// HandleReadiness reports whether the service can take traffic
func (s *HealthService) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	report := s.runChecks(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if report.Status == HealthStatusFail {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not_ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// checkerFunc adapts a function into a HealthChecker
type checkerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckerFunc wraps a probe function as a named checker
func NewCheckerFunc(name string, fn func(ctx context.Context) error) HealthChecker {
	return &checkerFunc{name: name, fn: fn}
}

func (c *checkerFunc) Name() string { return c.name }

func (c *checkerFunc) Check(ctx context.Context) HealthCheckResult {
	start := time.Now()
	result := HealthCheckResult{
		Status:      HealthStatusPass,
		LastChecked: start,
	}
	if err := c.fn(ctx); err != nil {
		result.Status = HealthStatusFail
		result.Error = err.Error()
	}
	result.ResponseTime = time.Since(start).String()
	return result
}
