package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Health states reported by the checker.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// checkTimeout bounds each dependency probe so a hung database cannot
// stall the readiness endpoint.
const checkTimeout = 3 * time.Second

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecker aggregates readiness over registered dependencies.
// Liveness is unconditional: a running process is alive.
type HealthChecker struct {
	mu     sync.RWMutex
	names  []string // registration order, for stable iteration
	checks map[string]CheckFunc
	logger *slog.Logger
}

// HealthStatus is the JSON response for health and readiness endpoints.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of a single dependency probe.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthChecker creates a checker with no dependencies registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]CheckFunc),
		logger: logger,
	}
}

// AddCheck registers a named dependency probe. Re-registering a name
// replaces the previous probe.
func (h *HealthChecker) AddCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
}

// CheckHealth reports liveness. Always ok while the process runs.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: StatusOK}
}

// CheckReady probes every registered dependency and aggregates the result:
// ok only when all probes pass, degraded otherwise. Each probe runs under
// its own timeout so one slow dependency cannot starve the rest.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.checks) == 0 {
		return HealthStatus{Status: StatusOK}
	}

	status := HealthStatus{
		Status: StatusOK,
		Checks: make(map[string]CheckResult, len(h.checks)),
	}

	for _, name := range h.names {
		result := h.runCheck(ctx, name, h.checks[name])
		if result.Status != StatusOK {
			status.Status = StatusDegraded
		}
		status.Checks[name] = result
	}
	return status
}

func (h *HealthChecker) runCheck(ctx context.Context, name string, check CheckFunc) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := check(probeCtx); err != nil {
		if h.logger != nil {
			h.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
		}
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{Status: StatusOK}
}
