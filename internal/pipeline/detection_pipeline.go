package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"monuguard/internal/logger"
)

// ErrInvalidConfidence is returned for a confidence threshold outside [0, 1]
var ErrInvalidConfidence = errors.New("confidence threshold must be within [0, 1]")

const (
	DefaultInterval   = 30
	DefaultConfidence = 0.45
)

// Options configures one analysis run
type Options struct {
	Interval   int         // Analyze every Interval-th frame
	Confidence float64     // Threshold passed to the detector
	Label      string      // Tag carried on progress events (defaults to the path)
	Threats    ThreatTable // nil uses the default threat table
}

// DefaultOptions returns the stock sampling interval and confidence
func DefaultOptions() Options {
	return Options{
		Interval:   DefaultInterval,
		Confidence: DefaultConfidence,
	}
}

// Validate rejects configurations that cannot be scanned
func (o Options) Validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, o.Interval)
	}
	if math.IsNaN(o.Confidence) || o.Confidence < 0 || o.Confidence > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidConfidence, o.Confidence)
	}
	return nil
}

// runState tracks the Unopened -> Scanning -> Finalized | Failed lifecycle
type runState int

const (
	stateUnopened runState = iota
	stateScanning
	stateFinalized
	stateFailed
)

func (s runState) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateScanning:
		return "scanning"
	case stateFinalized:
		return "finalized"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// Analyzer runs the sampling, detection, aggregation and alerting pipeline
// over one video per call. Each call owns its own aggregator and alert engine.
type Analyzer struct {
	open     SourceOpener
	detector Detector
	bus      *EventBus
	log      *logger.Logger
}

// NewAnalyzer creates an analyzer. bus may be nil.
func NewAnalyzer(open SourceOpener, detector Detector, bus *EventBus) *Analyzer {
	return &Analyzer{
		open:     open,
		detector: detector,
		bus:      bus,
		log:      logger.Default(),
	}
}

// SetLogger overrides the package-level logger
func (a *Analyzer) SetLogger(l *logger.Logger) {
	a.log = l
}

// Analyze scans the video at path and returns its report.
//
// A source that cannot be opened yields the error report and a nil error.
// Invalid options and detector failures return a non-nil error and no report.
func (a *Analyzer) Analyze(ctx context.Context, path string, opts Options) (*Report, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	sampler, err := NewFrameSampler(opts.Interval)
	if err != nil {
		return nil, err
	}

	label := opts.Label
	if label == "" {
		label = path
	}
	runID := uuid.NewString()
	state := stateUnopened
	start := time.Now()

	source, err := a.open(path)
	if err != nil {
		if source != nil {
			a.closeSource(runID, source)
		}
		state = stateFailed
		openErr := &SourceOpenError{Path: path, Err: err}
		a.log.Warn("Pipeline", "run %s %s: %v", runID, state, openErr)
		report := ErrorReport(path)
		a.bus.Publish(&Event{Type: EventRunFailed, RunID: runID, Label: label, Err: report.Error})
		return report, nil
	}
	defer a.closeSource(runID, source)

	info := source.Info()
	fps := info.FPS
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFPS
	}

	state = stateScanning
	a.log.Info("Pipeline", "run %s %s: %s (frames: %d, fps: %.2f, interval: %d, conf: %.2f, detector: %s)",
		runID, state, path, info.TotalFrames, fps, opts.Interval, opts.Confidence, a.detector.Name())
	a.bus.Publish(&Event{Type: EventRunStarted, RunID: runID, Label: label, Info: &info})

	agg := NewDetectionAggregator()
	alerts := NewAlertEngine(opts.Threats)
	analyzed := 0

	for frameIndex := 0; source.Grab(); frameIndex++ {
		if !sampler.ShouldAnalyze(frameIndex) {
			continue
		}

		frame, ok := source.Retrieve()
		if !ok {
			a.log.Debug("Pipeline", "run %s: frame %d could not be retrieved, ending scan", runID, frameIndex)
			break
		}
		frame.Index = frameIndex
		analyzed++

		raws, err := a.detector.Detect(ctx, frame, opts.Confidence)
		if err != nil {
			state = stateFailed
			a.log.Error("Pipeline", "run %s %s at frame %d: %v", runID, state, frameIndex, err)
			a.bus.Publish(&Event{Type: EventRunFailed, RunID: runID, Label: label, FrameIndex: frameIndex, Err: err.Error()})
			return nil, fmt.Errorf("detect frame %d: %w", frameIndex, err)
		}

		produced := make([]Detection, 0, len(raws))
		for _, raw := range raws {
			d := agg.Add(frameIndex, fps, raw)
			produced = append(produced, d)

			if alert, fired := alerts.Observe(d, raw.Confidence); fired {
				a.log.Info("Pipeline", "run %s alert %s/%s: %s", runID, alert.Type, alert.Severity, alert.Message)
				a.bus.Publish(&Event{Type: EventAlertRaised, RunID: runID, Label: label, FrameIndex: frameIndex, Time: d.Time, Alert: &alert})
			}
		}

		a.bus.Publish(&Event{
			Type:       EventFrameAnalyzed,
			RunID:      runID,
			Label:      label,
			FrameIndex: frameIndex,
			Time:       Float(roundTo(float64(frameIndex)/fps, 1)),
			Detections: produced,
		})
	}

	report := BuildReport(info, fps, analyzed, agg, alerts)
	state = stateFinalized
	a.log.Info("Pipeline", "run %s %s in %v (analyzed: %d, detections: %d, alerts: %d)",
		runID, state, time.Since(start).Round(time.Millisecond), analyzed, agg.Count(), len(report.Alerts))
	a.bus.Publish(&Event{Type: EventRunFinished, RunID: runID, Label: label, Report: report})

	return report, nil
}

func (a *Analyzer) closeSource(runID string, source FrameSource) {
	if err := source.Close(); err != nil {
		a.log.Warn("Pipeline", "run %s: failed to release source: %v", runID, err)
	}
}
