package detection

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
)

// GRPCDetector calls an object detection sidecar over a unary gRPC method
type GRPCDetector struct {
	endpoint   string
	model      string
	timeout    time.Duration
	conn       *grpc.ClientConn
	health     healthpb.HealthClient
	healthy    bool
	healthMu   sync.RWMutex
	lastHealth time.Time
}

// GRPCDetectorConfig holds configuration for the gRPC detector
type GRPCDetectorConfig struct {
	Endpoint    string
	Model       string
	Timeout     time.Duration
	DialOptions []grpc.DialOption // Appended after the defaults
}

// NewGRPCDetector creates a new gRPC-based detector.
// The connection is established lazily on the first call.
func NewGRPCDetector(config GRPCDetectorConfig) (*GRPCDetector, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Configure keepalive to detect dead connections quickly
	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, config.DialOptions...)

	conn, err := grpc.NewClient(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", config.Endpoint, err)
	}

	logger.Info("GRPCDetector", "Using detection service at %s", config.Endpoint)

	return &GRPCDetector{
		endpoint: config.Endpoint,
		model:    config.Model,
		timeout:  timeout,
		conn:     conn,
		health:   healthpb.NewHealthClient(conn),
	}, nil
}

// Name implements pipeline.Detector
func (gd *GRPCDetector) Name() string {
	return KindGRPC
}

// IsHealthy checks the standard gRPC health service of the sidecar
func (gd *GRPCDetector) IsHealthy(ctx context.Context) bool {
	gd.healthMu.RLock()
	if gd.healthy && time.Since(gd.lastHealth) < healthCacheTTL {
		gd.healthMu.RUnlock()
		return true
	}
	gd.healthMu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := gd.health.Check(ctx, &healthpb.HealthCheckRequest{})

	gd.healthMu.Lock()
	defer gd.healthMu.Unlock()

	if err != nil {
		logger.Warn("GRPCDetector", "Health check failed: %v", err)
		gd.healthy = false
		return false
	}
	gd.healthy = resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	gd.lastHealth = time.Now()
	return gd.healthy
}

// Detect implements pipeline.Detector
func (gd *GRPCDetector) Detect(ctx context.Context, frame *pipeline.FrameData, confidence float64) ([]pipeline.RawDetection, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"image":          base64.StdEncoding.EncodeToString(frame.Data),
		"conf_threshold": confidence,
		"model":          gd.model,
		"frame_index":    float64(frame.Index),
	})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, gd.timeout)
	defer cancel()

	resp := new(structpb.Struct)
	if err := gd.conn.Invoke(ctx, DetectMethod, req, resp); err != nil {
		gd.healthMu.Lock()
		gd.healthy = false
		gd.healthMu.Unlock()
		return nil, fmt.Errorf("detect rpc: %w", err)
	}

	detections, err := convertResponse(resp, confidence)
	if err != nil {
		return nil, err
	}
	logger.Debug("GRPCDetector", "frame %d: %d detections", frame.Index, len(detections))
	return detections, nil
}

// convertResponse converts the {detections: [...]} struct to raw detections, keeping order
func convertResponse(resp *structpb.Struct, confidence float64) ([]pipeline.RawDetection, error) {
	list := resp.GetFields()["detections"].GetListValue()
	out := make([]pipeline.RawDetection, 0, len(list.GetValues()))

	for i, v := range list.GetValues() {
		fields := v.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("detection %d: not an object", i)
		}

		bboxValues := fields["bbox"].GetListValue().GetValues()
		bbox := make([]float64, 0, len(bboxValues))
		for _, c := range bboxValues {
			bbox = append(bbox, c.GetNumberValue())
		}

		rd, err := toRawDetection(
			fields["class"].GetStringValue(),
			int(fields["class_id"].GetNumberValue()),
			fields["confidence"].GetNumberValue(),
			bbox,
		)
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		if rd.Confidence < confidence {
			continue
		}
		out = append(out, rd)
	}
	return out, nil
}

// Close shuts down the gRPC connection
func (gd *GRPCDetector) Close() error {
	if gd.conn != nil {
		return gd.conn.Close()
	}
	return nil
}

var _ pipeline.Detector = (*GRPCDetector)(nil)
