package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"monuguard/internal/database"
	"monuguard/internal/pipeline"
)

type stubSource struct {
	frames int
	pos    int
}

func (s *stubSource) Info() pipeline.SourceInfo {
	return pipeline.SourceInfo{TotalFrames: s.frames, FPS: 30}
}

func (s *stubSource) Grab() bool {
	if s.pos+1 >= s.frames {
		return false
	}
	s.pos++
	return true
}

func (s *stubSource) Retrieve() (*pipeline.FrameData, bool) {
	return &pipeline.FrameData{Index: s.pos, Data: []byte{0xff, 0xd8}}, true
}

func (s *stubSource) Close() error { return nil }

func stubOpener(frames int) pipeline.SourceOpener {
	return func(string) (pipeline.FrameSource, error) {
		return &stubSource{frames: frames, pos: -1}, nil
	}
}

type stubDetector struct {
	hits    map[int][]pipeline.RawDetection
	err     error
	entered chan struct{}
	release chan struct{}
}

func (d *stubDetector) Name() string { return "stub" }

func (d *stubDetector) Detect(ctx context.Context, frame *pipeline.FrameData, _ float64) ([]pipeline.RawDetection, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
		<-d.release
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.hits[frame.Index], nil
}

func (d *stubDetector) Close() error { return nil }

type uploadCount int

func (c *uploadCount) VideoUploaded() { *c++ }

func newTestService(t *testing.T, open pipeline.SourceOpener, det *stubDetector) (*VideoImplementation, *database.Database) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.New(filepath.Join(dir, "videos.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	svc, err := NewVideoService(db, open, func(string) (pipeline.Detector, error) { return det, nil }, nil, VideoServiceConfig{
		UploadDir:      filepath.Join(dir, "uploads"),
		MaxUploadBytes: 64,
		Defaults:       pipeline.DefaultOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return svc, db
}

func upload(t *testing.T, svc *VideoImplementation, name string) *Video {
	t.Helper()
	v, err := svc.Upload(context.Background(), name, "video/mp4", strings.NewReader("fake video bytes"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	return v
}

func TestUploadStoresFile(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(0), &stubDetector{})
	var count uploadCount
	svc.SetUploadCounter(&count)

	v := upload(t, svc, "Gate.MP4")

	if v.Status != database.StatusUploaded || v.OriginalName != "Gate.MP4" || v.Size != 16 {
		t.Fatalf("video = %+v", v)
	}
	if v.Filename != v.ID+".mp4" {
		t.Fatalf("filename = %q", v.Filename)
	}
	data, err := os.ReadFile(filepath.Join(svc.cfg.UploadDir, v.Filename))
	if err != nil || string(data) != "fake video bytes" {
		t.Fatalf("stored file = %q, %v", data, err)
	}
	if count != 1 {
		t.Fatalf("upload counter = %d", count)
	}
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		mimetype string
		body     string
		want     error
	}{
		{"not a video", "notes.txt", "text/plain", "hello", ErrNotAVideo},
		{"too large", "big.mp4", "video/mp4", strings.Repeat("x", 65), ErrFileTooLarge},
		{"empty body", "empty.mp4", "video/mp4", "", ErrNoVideoFile},
		{"no name", "", "video/mp4", "x", ErrNoVideoFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, stubOpener(0), &stubDetector{})
			_, err := svc.Upload(context.Background(), tt.filename, tt.mimetype, strings.NewReader(tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			entries, _ := os.ReadDir(svc.cfg.UploadDir)
			if len(entries) != 0 {
				t.Fatalf("leftover files: %d", len(entries))
			}
			videos, _ := svc.List(context.Background())
			if len(videos) != 0 {
				t.Fatalf("registered %d videos", len(videos))
			}
		})
	}
}

func TestUploadAtLimit(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(0), &stubDetector{})
	if _, err := svc.Upload(context.Background(), "edge.mp4", "video/mp4", strings.NewReader(strings.Repeat("x", 64))); err != nil {
		t.Fatalf("upload at limit: %v", err)
	}
}

func TestDeleteVideo(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(0), &stubDetector{})
	v := upload(t, svc, "gate.mp4")

	if err := svc.Delete(context.Background(), v.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(svc.cfg.UploadDir, v.Filename)); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if _, err := svc.Get(context.Background(), v.ID); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if err := svc.Delete(context.Background(), v.ID); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	det := &stubDetector{hits: map[int][]pipeline.RawDetection{
		30: {{ClassName: "person", Confidence: 0.9, BBox: [4]float64{1, 2, 3, 4}}},
	}}
	svc, _ := newTestService(t, stubOpener(60), det)
	v := upload(t, svc, "gate.mp4")

	res, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{})
	if err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"videoId":"` + v.ID + `","totalFrames":60,"analyzedFrames":2,"fps":30.0,` +
		`"summary":{"person":1},` +
		`"detections":[{"frame":30,"time":1.0,"class":"person","confidence":0.9,"bbox":[1,2,3,4]}],` +
		`"alerts":[{"type":"intrusion","severity":"high","message":"Person detected at 1.0s (confidence 90%)"}]}`
	if string(data) != want {
		t.Fatalf("json =\n%s\nwant\n%s", data, want)
	}

	got, _ := svc.Get(context.Background(), v.ID)
	if got.Status != database.StatusAnalyzed {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestAnalyzeOverrides(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(10), &stubDetector{})
	v := upload(t, svc, "gate.mp4")

	interval := 2
	res, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{Interval: &interval})
	if err != nil {
		t.Fatal(err)
	}
	if res.Report.AnalyzedFrames != 5 {
		t.Fatalf("analyzed = %d", res.Report.AnalyzedFrames)
	}

	bad := 0
	if _, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{Interval: &bad}); !errors.Is(err, pipeline.ErrInvalidInterval) {
		t.Fatalf("interval 0: %v", err)
	}
	conf := 2.0
	if _, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{Confidence: &conf}); !errors.Is(err, pipeline.ErrInvalidConfidence) {
		t.Fatalf("conf 2.0: %v", err)
	}
}

func TestAnalyzeModelOverride(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(1), &stubDetector{})
	var models []string
	svc.newDetector = func(model string) (pipeline.Detector, error) {
		models = append(models, model)
		return &stubDetector{}, nil
	}
	svc.cfg.DefaultModel = "yolov8n.pt"
	v := upload(t, svc, "gate.mp4")

	custom := "custom.pt"
	if _, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{Model: &custom}); err != nil {
		t.Fatal(err)
	}
	if len(models) != 2 || models[0] != "yolov8n.pt" || models[1] != "custom.pt" {
		t.Fatalf("models = %v", models)
	}
}

func TestAnalyzeDetectorFailure(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(5), &stubDetector{err: errors.New("sidecar down")})
	v := upload(t, svc, "gate.mp4")

	_, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{})
	var aerr *AnalysisError
	if !errors.As(err, &aerr) || !strings.Contains(aerr.Error(), "sidecar down") {
		t.Fatalf("err = %v", err)
	}

	got, _ := svc.Get(context.Background(), v.ID)
	if got.Status != database.StatusError {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestAnalyzeErrorReport(t *testing.T) {
	open := func(path string) (pipeline.FrameSource, error) {
		return nil, errors.New("codec")
	}
	svc, _ := newTestService(t, open, &stubDetector{})
	v := upload(t, svc, "gate.mp4")

	_, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{})
	var rerr *ReportError
	if !errors.As(err, &rerr) || !strings.HasPrefix(rerr.Message, "Cannot open video: ") {
		t.Fatalf("err = %v", err)
	}

	got, _ := svc.Get(context.Background(), v.ID)
	if got.Status != database.StatusError {
		t.Fatalf("status = %q", got.Status)
	}
}

func TestAnalyzeMissing(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(1), &stubDetector{})

	if _, err := svc.Analyze(context.Background(), "nope", AnalyzeRequest{}); !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("unknown id: %v", err)
	}

	v := upload(t, svc, "gate.mp4")
	os.Remove(filepath.Join(svc.cfg.UploadDir, v.Filename))
	if _, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{}); !errors.Is(err, ErrVideoFileMissing) {
		t.Fatalf("missing file: %v", err)
	}
}

func TestAnalyzeInProgress(t *testing.T) {
	det := &stubDetector{entered: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newTestService(t, stubOpener(1), det)
	v := upload(t, svc, "gate.mp4")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{})
		done <- err
	}()
	<-det.entered

	got, _ := svc.Get(context.Background(), v.ID)
	if got.Status != database.StatusAnalyzing {
		t.Fatalf("status while running = %q", got.Status)
	}
	if _, err := svc.Analyze(context.Background(), v.ID, AnalyzeRequest{}); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("second analyze: %v", err)
	}

	close(det.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _ := newTestService(t, stubOpener(0), &stubDetector{})
	first := upload(t, svc, "a.mp4")
	second := upload(t, svc, "b.mp4")

	videos, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 2 || videos[0].ID != second.ID || videos[1].ID != first.ID {
		t.Fatalf("order = %v, %v", videos[0].ID, videos[1].ID)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(videos[0]); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"originalName":"b.mp4"`, `"status":"uploaded"`, `"createdAt":`} {
		if !strings.Contains(buf.String(), key) {
			t.Fatalf("missing %s in %s", key, buf.String())
		}
	}
}
