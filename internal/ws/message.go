package ws

import (
	"time"

	"monuguard/internal/pipeline"
)

// ProgressMessage is one analysis progress broadcast
type ProgressMessage struct {
	Type        string               `json:"type"` // "started", "frame", "alert", "finished", "failed"
	VideoID     string               `json:"video_id"`
	RunID       string               `json:"run_id"`
	Timestamp   time.Time            `json:"timestamp"`
	TotalFrames int                  `json:"total_frames,omitempty"`
	Frame       *int                 `json:"frame,omitempty"`
	Time        *pipeline.Float      `json:"time,omitempty"`
	Detections  []pipeline.Detection `json:"detections,omitempty"`
	Alert       *pipeline.Alert      `json:"alert,omitempty"`
	Summary     *pipeline.Summary    `json:"summary,omitempty"`
	Alerts      int                  `json:"alerts,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// NewProgressMessage converts a pipeline event. Finished runs carry the
// summary and alert count, not the full report.
func NewProgressMessage(e *pipeline.Event) *ProgressMessage {
	msg := &ProgressMessage{
		Type:      string(e.Type),
		VideoID:   e.Label,
		RunID:     e.RunID,
		Timestamp: time.Now(),
	}

	switch e.Type {
	case pipeline.EventRunStarted:
		if e.Info != nil {
			msg.TotalFrames = e.Info.TotalFrames
		}
	case pipeline.EventFrameAnalyzed:
		frame, t := e.FrameIndex, e.Time
		msg.Frame = &frame
		msg.Time = &t
		msg.Detections = e.Detections
	case pipeline.EventAlertRaised:
		frame, t := e.FrameIndex, e.Time
		msg.Frame = &frame
		msg.Time = &t
		msg.Alert = e.Alert
	case pipeline.EventRunFinished:
		if e.Report != nil {
			msg.TotalFrames = e.Report.TotalFrames
			msg.Summary = e.Report.Summary
			msg.Alerts = len(e.Report.Alerts)
		}
	case pipeline.EventRunFailed:
		msg.Error = e.Err
	default:
		return nil
	}
	return msg
}
