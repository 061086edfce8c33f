package pipeline

import (
	"fmt"
)

// SourceOpenError reports a video that could not be opened
type SourceOpenError struct {
	Path string
	Err  error
}

func (e *SourceOpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot open video %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("cannot open video %s", e.Path)
}

func (e *SourceOpenError) Unwrap() error {
	return e.Err
}

// ErrorReport builds the error-only report for a source that failed to open
func ErrorReport(path string) *Report {
	return &Report{Error: "Cannot open video: " + path}
}

// BuildReport assembles the final report from a completed scan
func BuildReport(info SourceInfo, fps float64, analyzed int, agg *DetectionAggregator, alerts *AlertEngine) *Report {
	return &Report{
		TotalFrames:    info.TotalFrames,
		AnalyzedFrames: analyzed,
		FPS:            Float(roundTo(fps, 2)),
		Detections:     agg.Detections(),
		Summary:        agg.Summary(),
		Alerts:         alerts.Alerts(),
	}
}
