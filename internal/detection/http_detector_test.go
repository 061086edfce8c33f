package detection

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"monuguard/internal/pipeline"
)

type sidecar struct {
	healthStatus int
	detectStatus int
	body         string

	healthCalls atomic.Int32
	gotConf     string
	gotModel    string
	gotImage    []byte
	gotType     string
}

func (s *sidecar) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		s.healthCalls.Add(1)
		w.WriteHeader(s.healthStatus)
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.gotConf = r.FormValue("conf_threshold")
		s.gotModel = r.FormValue("model")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		s.gotImage, _ = io.ReadAll(f)
		s.gotType = hdr.Header.Get("Content-Type")

		if s.detectStatus != http.StatusOK {
			http.Error(w, "model crashed", s.detectStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, s.body)
	})
	return mux
}

func newSidecar(t *testing.T, s *sidecar) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(s.handler(t))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDetectorDetect(t *testing.T) {
	s := &sidecar{
		healthStatus: http.StatusOK,
		detectStatus: http.StatusOK,
		body: `{"detections":[
			{"class":"person","class_id":0,"confidence":0.91,"bbox":[10.5,20,110.9,220]},
			{"class":"car","class_id":2,"confidence":0.2,"bbox":[0,0,5,5]},
			{"class":"dog","class_id":16,"confidence":0.5,"bbox":[1,2,3,4]}
		],"inference_time_ms":12.5}`,
	}
	srv := newSidecar(t, s)

	d := NewHTTPDetector(srv.URL+"/", "yolov8n.pt", time.Second)
	defer d.Close()

	frame := &pipeline.FrameData{Index: 30, Data: []byte{0xff, 0xd8, 0xff}}
	got, err := d.Detect(context.Background(), frame, 0.45)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	want := []pipeline.RawDetection{
		{ClassID: 0, ClassName: "person", Confidence: 0.91, BBox: [4]float64{10.5, 20, 110.9, 220}},
		{ClassID: 16, ClassName: "dog", Confidence: 0.5, BBox: [4]float64{1, 2, 3, 4}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("detections = %+v\nwant %+v", got, want)
	}
	if s.gotConf != "0.45" || s.gotModel != "yolov8n.pt" {
		t.Fatalf("form fields conf=%q model=%q", s.gotConf, s.gotModel)
	}
	if string(s.gotImage) != string(frame.Data) || s.gotType != "image/jpeg" {
		t.Fatalf("image part = %v (%s)", s.gotImage, s.gotType)
	}
}

func TestHTTPDetectorCachesHealth(t *testing.T) {
	s := &sidecar{healthStatus: http.StatusOK}
	srv := newSidecar(t, s)
	d := NewHTTPDetector(srv.URL, "", time.Second)

	for i := 0; i < 3; i++ {
		if !d.IsHealthy(context.Background()) {
			t.Fatal("sidecar reported unhealthy")
		}
	}
	if n := s.healthCalls.Load(); n != 1 {
		t.Fatalf("health checked %d times, want 1", n)
	}
}

func TestHTTPDetectorDetectIgnoresHealth(t *testing.T) {
	s := &sidecar{healthStatus: http.StatusServiceUnavailable, detectStatus: http.StatusOK, body: `{"detections":[]}`}
	srv := newSidecar(t, s)
	d := NewHTTPDetector(srv.URL, "", time.Second)

	if d.IsHealthy(context.Background()) {
		t.Fatal("503 health should report unhealthy")
	}
	for i := 0; i < 2; i++ {
		if _, err := d.Detect(context.Background(), &pipeline.FrameData{Index: i}, 0.5); err != nil {
			t.Fatalf("Detect with failing health: %v", err)
		}
	}
	if n := s.healthCalls.Load(); n != 1 {
		t.Fatalf("health checked %d times, want only the explicit check", n)
	}
}

func TestHTTPDetectorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	d := NewHTTPDetector(url, "", time.Second)

	if _, err := d.Detect(context.Background(), &pipeline.FrameData{}, 0.5); err == nil {
		t.Fatal("expected error from a closed sidecar")
	}
	if d.IsHealthy(context.Background()) {
		t.Fatal("closed sidecar should be unhealthy")
	}
}

func TestHTTPDetectorErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, ""},
		{"malformed json", http.StatusOK, `{"detections":`},
		{"short bbox", http.StatusOK, `{"detections":[{"class":"person","confidence":0.9,"bbox":[1,2,3]}]}`},
		{"missing class", http.StatusOK, `{"detections":[{"confidence":0.9,"bbox":[1,2,3,4]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &sidecar{healthStatus: http.StatusOK, detectStatus: tt.status, body: tt.body}
			srv := newSidecar(t, s)
			d := NewHTTPDetector(srv.URL, "", time.Second)

			if _, err := d.Detect(context.Background(), &pipeline.FrameData{}, 0.5); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewSelectsKind(t *testing.T) {
	d, err := New(Config{Kind: KindHTTP, Endpoint: "http://localhost:8081"})
	if err != nil || d.Name() != KindHTTP {
		t.Fatalf("http: %v, %v", d, err)
	}

	d, err = New(Config{Kind: KindGRPC, Endpoint: "localhost:50051"})
	if err != nil || d.Name() != KindGRPC {
		t.Fatalf("grpc: %v, %v", d, err)
	}
	d.Close()

	if _, err := New(Config{Kind: "onnx", Endpoint: "x"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if _, err := New(Config{Kind: KindHTTP}); err == nil {
		t.Fatal("missing endpoint must fail")
	}
}
