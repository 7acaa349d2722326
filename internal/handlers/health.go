package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/stellare-shop/builder/internal/services"
)

// BuildInfo identifies the running binary for health reporting.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

type catalogStatusSource interface {
	Status(ctx context.Context) services.CatalogStatus
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build   BuildInfo
	catalog catalogStatusSource
	clock   func() time.Time
}

// HealthOption customises the health handlers before construction.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches build metadata to health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthCatalog wires the catalog whose load state gates readiness.
func WithHealthCatalog(catalog catalogStatusSource) HealthOption {
	return func(h *HealthHandlers) {
		h.catalog = catalog
	}
}

// WithHealthClock overrides the time source, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.clock = clock
	}
}

// NewHealthHandlers constructs handlers for /healthz and /readyz.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// Healthz reports process liveness with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
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

// Readyz reports whether the catalog has loaded. Collection notices do
// not fail readiness; a catalog that never loaded does.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status": "ok",
	}
	status := http.StatusOK

	if h.catalog != nil {
		report := h.catalog.Status(r.Context())
		payload["bracelets"] = report.BraceletCount
		payload["charms"] = report.CharmCount
		if len(report.Notices) > 0 {
			payload["details"] = report.Notices
		}
		if !report.Loaded {
			payload["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSONResponse(w, status, payload)
}
