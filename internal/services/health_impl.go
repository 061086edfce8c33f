package services

import (
	"context"
	"fmt"

	"monuguard/internal/detection"
)

// Pinger is satisfied by the database
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthImplementation implements the health service
type HealthImplementation struct {
	db       Pinger
	detector detection.HealthChecker
}

// NewHealthService creates a new health service implementation.
// detector may be nil when no probe is configured.
func NewHealthService(db Pinger, detector detection.HealthChecker) *HealthImplementation {
	return &HealthImplementation{db: db, detector: detector}
}

// Healthz implements the liveness probe
func (h *HealthImplementation) Healthz(ctx context.Context) error {
	return nil
}

// Readyz implements the readiness probe: the registry must answer and the
// detection sidecar must pass its health check
func (h *HealthImplementation) Readyz(ctx context.Context) error {
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if h.detector != nil && !h.detector.IsHealthy(ctx) {
		return fmt.Errorf("detector: %w", detection.ErrUnavailable)
	}
	return nil
}
