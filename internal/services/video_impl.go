package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"monuguard/internal/database"
	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
)

var (
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoFileMissing   = errors.New("video file missing from disk")
	ErrNoVideoFile        = errors.New("no video file provided")
	ErrNotAVideo          = errors.New("only video files are allowed")
	ErrFileTooLarge       = errors.New("file too large")
	ErrAnalysisInProgress = errors.New("analysis already in progress")
)

// ReportError is returned when the pipeline produced an error report
type ReportError struct {
	Message string
}

func (e *ReportError) Error() string {
	return e.Message
}

// AnalysisError is returned when the run failed without a report
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return "analysis failed: " + e.Err.Error()
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// DetectorFactory creates a detector for an opaque model reference
type DetectorFactory func(model string) (pipeline.Detector, error)

// Video is the API view of an uploaded video
type Video struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Mimetype     string    `json:"mimetype"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AnalyzeRequest overrides the default analysis settings for one run
type AnalyzeRequest struct {
	Interval   *int     `json:"interval,omitempty"`
	Confidence *float64 `json:"conf,omitempty"`
	Model      *string  `json:"model,omitempty"`
}

// AnalysisResult is a successful analysis of a stored video
type AnalysisResult struct {
	VideoID string
	Report  *pipeline.Report
}

// MarshalJSON writes the video id followed by the report fields
func (r *AnalysisResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		VideoID        string               `json:"videoId"`
		TotalFrames    int                  `json:"totalFrames"`
		AnalyzedFrames int                  `json:"analyzedFrames"`
		FPS            pipeline.Float       `json:"fps"`
		Summary        *pipeline.Summary    `json:"summary"`
		Detections     []pipeline.Detection `json:"detections"`
		Alerts         []pipeline.Alert     `json:"alerts"`
	}{
		VideoID:        r.VideoID,
		TotalFrames:    r.Report.TotalFrames,
		AnalyzedFrames: r.Report.AnalyzedFrames,
		FPS:            r.Report.FPS,
		Summary:        nonNilSummary(r.Report.Summary),
		Detections:     nonNilDetections(r.Report.Detections),
		Alerts:         nonNilAlerts(r.Report.Alerts),
	})
}

func nonNilSummary(s *pipeline.Summary) *pipeline.Summary {
	if s == nil {
		return pipeline.NewSummary()
	}
	return s
}

func nonNilDetections(d []pipeline.Detection) []pipeline.Detection {
	if d == nil {
		return []pipeline.Detection{}
	}
	return d
}

func nonNilAlerts(a []pipeline.Alert) []pipeline.Alert {
	if a == nil {
		return []pipeline.Alert{}
	}
	return a
}

// UploadCounter is notified of accepted uploads
type UploadCounter interface {
	VideoUploaded()
}

// VideoServiceConfig holds the video service settings
type VideoServiceConfig struct {
	UploadDir       string
	MaxUploadBytes  int64
	AnalysisTimeout time.Duration
	DefaultModel    string
	Defaults        pipeline.Options
}

// VideoImplementation implements video upload, listing and analysis
type VideoImplementation struct {
	db          *database.Database
	open        pipeline.SourceOpener
	newDetector DetectorFactory
	bus         *pipeline.EventBus
	uploads     UploadCounter
	cfg         VideoServiceConfig

	runningMu sync.Mutex
	running   map[string]bool
}

// NewVideoService creates a new video service implementation
func NewVideoService(db *database.Database, open pipeline.SourceOpener, newDetector DetectorFactory, bus *pipeline.EventBus, cfg VideoServiceConfig) (*VideoImplementation, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &VideoImplementation{
		db:          db,
		open:        open,
		newDetector: newDetector,
		bus:         bus,
		cfg:         cfg,
		running:     make(map[string]bool),
	}, nil
}

// SetUploadCounter registers an observer for accepted uploads
func (s *VideoImplementation) SetUploadCounter(c UploadCounter) {
	s.uploads = c
}

// List returns all videos, newest first
func (s *VideoImplementation) List(ctx context.Context) ([]*Video, error) {
	records, err := s.db.ListVideos()
	if err != nil {
		return nil, err
	}
	videos := make([]*Video, len(records))
	for i, rec := range records {
		videos[i] = toVideo(rec)
	}
	return videos, nil
}

// Get returns one video
func (s *VideoImplementation) Get(ctx context.Context, id string) (*Video, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return toVideo(rec), nil
}

// Upload stores a video file and registers it
func (s *VideoImplementation) Upload(ctx context.Context, originalName, mimetype string, body io.Reader) (*Video, error) {
	if body == nil || originalName == "" {
		return nil, ErrNoVideoFile
	}
	if !strings.HasPrefix(mimetype, "video/") {
		return nil, ErrNotAVideo
	}

	id := uuid.NewString()
	filename := id + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.cfg.UploadDir, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}

	limit := s.cfg.MaxUploadBytes
	size, err := io.Copy(f, io.LimitReader(body, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && size > limit {
		err = ErrFileTooLarge
	}
	if err == nil && size == 0 {
		err = ErrNoVideoFile
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	rec := &database.VideoRecord{
		ID:           id,
		Filename:     filename,
		OriginalName: filepath.Base(originalName),
		Size:         size,
		Mimetype:     mimetype,
		Status:       database.StatusUploaded,
	}
	if err := s.db.SaveVideo(rec); err != nil {
		os.Remove(path)
		return nil, err
	}

	if s.uploads != nil {
		s.uploads.VideoUploaded()
	}
	logger.Info("Videos", "Uploaded %s as %s (%d bytes)", rec.OriginalName, id, size)
	return toVideo(rec), nil
}

// Delete removes a video file and its record
func (s *VideoImplementation) Delete(ctx context.Context, id string) error {
	rec, err := s.lookup(id)
	if err != nil {
		return err
	}

	if err := os.Remove(s.filePath(rec)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove video file: %w", err)
	}
	if err := s.db.DeleteVideo(id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrVideoNotFound
		}
		return err
	}

	logger.Info("Videos", "Deleted %s", id)
	return nil
}

// Analyze runs the detection pipeline on a stored video
func (s *VideoImplementation) Analyze(ctx context.Context, id string, req AnalyzeRequest) (*AnalysisResult, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	path := s.filePath(rec)
	if _, err := os.Stat(path); err != nil {
		return nil, ErrVideoFileMissing
	}

	opts := s.cfg.Defaults
	if req.Interval != nil {
		opts.Interval = *req.Interval
	}
	if req.Confidence != nil {
		opts.Confidence = *req.Confidence
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.Label = id

	model := s.cfg.DefaultModel
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	if !s.begin(id) {
		return nil, ErrAnalysisInProgress
	}
	defer s.end(id)

	detector, err := s.newDetector(model)
	if err != nil {
		return nil, err
	}
	defer detector.Close()

	if err := s.db.UpdateVideoStatus(id, database.StatusAnalyzing); err != nil {
		return nil, err
	}

	if s.cfg.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
		defer cancel()
	}

	report, err := pipeline.NewAnalyzer(s.open, detector, s.bus).Analyze(ctx, path, opts)
	if err != nil {
		s.setStatus(id, database.StatusError)
		logger.Error("Videos", "Analysis of %s failed: %v", id, err)
		return nil, &AnalysisError{Err: err}
	}
	if report.Failed() {
		s.setStatus(id, database.StatusError)
		return nil, &ReportError{Message: report.Error}
	}

	s.setStatus(id, database.StatusAnalyzed)
	return &AnalysisResult{VideoID: id, Report: report}, nil
}

func (s *VideoImplementation) begin(id string) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *VideoImplementation) end(id string) {
	s.runningMu.Lock()
	delete(s.running, id)
	s.runningMu.Unlock()
}

func (s *VideoImplementation) setStatus(id, status string) {
	if err := s.db.UpdateVideoStatus(id, status); err != nil {
		logger.Warn("Videos", "Failed to set status %s on %s: %v", status, id, err)
	}
}

func (s *VideoImplementation) lookup(id string) (*database.VideoRecord, error) {
	rec, err := s.db.GetVideo(id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrVideoNotFound
	}
	return rec, err
}

func (s *VideoImplementation) filePath(rec *database.VideoRecord) string {
	return filepath.Join(s.cfg.UploadDir, filepath.Base(rec.Filename))
}

func toVideo(rec *database.VideoRecord) *Video {
	return &Video{
		ID:           rec.ID,
		Filename:     rec.Filename,
		OriginalName: rec.OriginalName,
		Size:         rec.Size,
		Mimetype:     rec.Mimetype,
		Status:       rec.Status,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}
