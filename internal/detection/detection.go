// Package detection provides pipeline.Detector clients for remote object
// detection sidecars.
package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"monuguard/internal/pipeline"
)

const (
	KindHTTP = "http"
	KindGRPC = "grpc"

	DefaultTimeout = 10 * time.Second
)

var (
	// ErrUnavailable marks a sidecar that fails its health check
	ErrUnavailable = errors.New("detection service unavailable")

	// ErrUnknownKind is returned by New for an unsupported detector kind
	ErrUnknownKind = errors.New("unknown detector kind")
)

// Config selects and configures a detector client
type Config struct {
	Kind     string // "http" or "grpc"
	Endpoint string
	Model    string // Opaque model reference forwarded to the sidecar
	Timeout  time.Duration
}

// HealthChecker is implemented by detectors that can probe their backend
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}

// New creates the detector client selected by cfg.Kind
func New(cfg Config) (pipeline.Detector, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("detector endpoint is required")
	}

	switch cfg.Kind {
	case KindHTTP, "":
		return NewHTTPDetector(cfg.Endpoint, cfg.Model, cfg.Timeout), nil
	case KindGRPC:
		return NewGRPCDetector(GRPCDetectorConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// toRawDetection validates one sidecar detection
func toRawDetection(class string, classID int, confidence float64, bbox []float64) (pipeline.RawDetection, error) {
	if class == "" {
		return pipeline.RawDetection{}, fmt.Errorf("missing class name")
	}
	if len(bbox) != 4 {
		return pipeline.RawDetection{}, fmt.Errorf("bbox for %q has %d values, want 4", class, len(bbox))
	}
	return pipeline.RawDetection{
		ClassID:    classID,
		ClassName:  class,
		Confidence: confidence,
		BBox:       [4]float64{bbox[0], bbox[1], bbox[2], bbox[3]},
	}, nil
}
