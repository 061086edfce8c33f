// Package capture decodes video containers with OpenCV.
package capture

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
)

// Source reads frames from a video file through gocv.VideoCapture
type Source struct {
	path   string
	cap    *gocv.VideoCapture
	frame  gocv.Mat
	info   pipeline.SourceInfo
	closed bool
}

// Open opens the video at path. It satisfies pipeline.SourceOpener.
// When OpenCV hands back a capture it could not open, the source is
// returned alongside the error so the caller can release it.
func Open(path string) (pipeline.FrameSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if vc == nil {
		if err == nil {
			err = fmt.Errorf("no capture for %s", path)
		}
		return nil, err
	}

	s := &Source{
		path:  path,
		cap:   vc,
		frame: gocv.NewMat(),
	}
	if err != nil {
		return s, err
	}
	if !vc.IsOpened() {
		return s, fmt.Errorf("capture not opened: %s", path)
	}

	total := vc.Get(gocv.VideoCaptureFrameCount)
	if math.IsNaN(total) || total < 0 {
		total = 0
	}
	s.info = pipeline.SourceInfo{
		TotalFrames: int(total),
		FPS:         vc.Get(gocv.VideoCaptureFPS),
	}

	logger.Debug("Capture", "Opened %s (%dx%d, frames: %d, fps: %.2f)", path,
		int(vc.Get(gocv.VideoCaptureFrameWidth)), int(vc.Get(gocv.VideoCaptureFrameHeight)),
		s.info.TotalFrames, s.info.FPS)

	return s, nil
}

// Info implements pipeline.FrameSource
func (s *Source) Info() pipeline.SourceInfo {
	return s.info
}

// Grab decodes the next frame into the reusable buffer
func (s *Source) Grab() bool {
	if s.closed {
		return false
	}
	if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
		return false
	}
	return true
}

// Retrieve JPEG-encodes the frame decoded by the last Grab
func (s *Source) Retrieve() (*pipeline.FrameData, bool) {
	if s.closed || s.frame.Empty() {
		return nil, false
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, s.frame)
	if err != nil {
		logger.Warn("Capture", "Failed to encode frame from %s: %v", s.path, err)
		return nil, false
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return &pipeline.FrameData{
		Data:   data,
		Width:  s.frame.Cols(),
		Height: s.frame.Rows(),
	}, true
}

// Close releases the capture and the frame buffer
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.frame.Close()
	return s.cap.Close()
}

var _ pipeline.FrameSource = (*Source)(nil)
