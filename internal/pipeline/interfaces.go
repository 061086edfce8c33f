package pipeline

import (
	"context"
)

// FrameSource is a sequential provider of frames from one video.
// Grab advances to the next frame; Retrieve returns the grabbed frame encoded
// for detection. Either returning false ends the scan: end of stream and a
// decode failure are not distinguished.
type FrameSource interface {
	// Info returns the total frame count and frame rate reported by the container
	Info() SourceInfo

	// Grab advances to the next frame
	Grab() bool

	// Retrieve encodes the most recently grabbed frame
	Retrieve() (*FrameData, bool)

	// Close releases the underlying resource
	Close() error
}

// SourceOpener opens a FrameSource for a video location.
// A non-nil source returned together with an error is still closed by the caller.
type SourceOpener func(path string) (FrameSource, error)

// Detector recognizes objects in a single frame.
// Detections below confidence are filtered by the implementation, and the
// returned order is preserved as-is by the pipeline.
type Detector interface {
	// Name returns the detector identifier (e.g., "http", "grpc")
	Name() string

	// Detect runs detection on a frame
	Detect(ctx context.Context, frame *FrameData, confidence float64) ([]RawDetection, error)

	// Close releases detector resources
	Close() error
}

// EventHandler receives pipeline progress events
type EventHandler interface {
	// OnEvent is called synchronously, in order, from the scanning goroutine
	OnEvent(event *Event)
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(event *Event)

// OnEvent implements EventHandler
func (f EventHandlerFunc) OnEvent(event *Event) {
	f(event)
}
