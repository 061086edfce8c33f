package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
)

const healthCacheTTL = 30 * time.Second

// HTTPDetector calls an object detection sidecar over HTTP
type HTTPDetector struct {
	endpoint    string
	model       string
	client      *http.Client
	healthy     bool
	healthCheck time.Time
	mu          sync.Mutex
}

// sidecarDetection is one object in the sidecar's /detect response
type sidecarDetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

// sidecarResult is the /detect response body
type sidecarResult struct {
	Detections      []sidecarDetection `json:"detections"`
	InferenceTimeMs float64            `json:"inference_time_ms"`
	Device          string             `json:"device,omitempty"`
}

// NewHTTPDetector creates a detector for the sidecar at endpoint
func NewHTTPDetector(endpoint, model string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPDetector{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name implements pipeline.Detector
func (hd *HTTPDetector) Name() string {
	return KindHTTP
}

// IsHealthy checks if the detection sidecar is available
func (hd *HTTPDetector) IsHealthy(ctx context.Context) bool {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	// Cache health check for 30 seconds
	if hd.healthy && time.Since(hd.healthCheck) < healthCacheTTL {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hd.endpoint+"/health", nil)
	if err != nil {
		hd.healthy = false
		return false
	}
	resp, err := hd.client.Do(req)
	if err != nil {
		logger.Warn("HTTPDetector", "Health check failed: %v", err)
		hd.healthy = false
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("HTTPDetector", "Health check returned status %d", resp.StatusCode)
		hd.healthy = false
		return false
	}

	hd.healthCheck = time.Now()
	hd.healthy = true
	return true
}

// Detect implements pipeline.Detector. The health check is not consulted;
// a sidecar that cannot serve the request fails the call itself.
func (hd *HTTPDetector) Detect(ctx context.Context, frame *pipeline.FrameData, confidence float64) ([]pipeline.RawDetection, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(frame.Data); err != nil {
		return nil, err
	}
	if err := w.WriteField("conf_threshold", strconv.FormatFloat(confidence, 'f', -1, 64)); err != nil {
		return nil, err
	}
	if hd.model != "" {
		if err := w.WriteField("model", hd.model); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hd.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := hd.client.Do(req)
	if err != nil {
		hd.markUnhealthy()
		return nil, fmt.Errorf("detect request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detection failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result sidecarResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}

	logger.Debug("HTTPDetector", "frame %d: %d detections in %.1fms", frame.Index, len(result.Detections), result.InferenceTimeMs)

	out := make([]pipeline.RawDetection, 0, len(result.Detections))
	for i, det := range result.Detections {
		rd, err := toRawDetection(det.Class, det.ClassID, det.Confidence, det.BBox)
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

func (hd *HTTPDetector) markUnhealthy() {
	hd.mu.Lock()
	hd.healthy = false
	hd.mu.Unlock()
}

// Close implements pipeline.Detector
func (hd *HTTPDetector) Close() error {
	hd.client.CloseIdleConnections()
	return nil
}

var _ pipeline.Detector = (*HTTPDetector)(nil)
