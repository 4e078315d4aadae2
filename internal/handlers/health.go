package handlers

import (
	"net/http"
	"time"

	"github.com/meridian-goods/shipping-api/internal/platform/httpx"
)

// ReadinessChecker reports whether a dependency is ready to serve traffic.
type ReadinessChecker interface {
	Ready() bool
}

// ReadinessCheckerFunc adapts a function to the ReadinessChecker interface.
type ReadinessCheckerFunc func() bool

// Ready implements ReadinessChecker.
func (f ReadinessCheckerFunc) Ready() bool { return f() }

// BuildInfo carries release metadata surfaced on the health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	build  BuildInfo
	checks map[string]ReadinessChecker
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches release metadata to the health payloads.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithReadinessCheck registers a named dependency check evaluated by /readyz.
func WithReadinessCheck(name string, check ReadinessChecker) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the health endpoints.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		checks: make(map[string]ReadinessChecker),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz reports whether all registered dependencies are ready.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if check.Ready() {
			checks[name] = "ok"
			continue
		}
		checks[name] = "unavailable"
		ready = false
	}

	payload := map[string]any{
		"status":    "ok",
		"checks":    checks,
		"timestamp": h.clock().UTC().Format(time.RFC3339),
	}
	if !ready {
		payload["status"] = "unavailable"
		httpx.WriteError(r.Context(), w, httpx.NewError("not_ready", "one or more dependencies are not ready", http.StatusServiceUnavailable).WithDetails(map[string]any{
			"checks": checks,
		}))
		return
	}
	writeJSONResponse(w, http.StatusOK, payload)
}
