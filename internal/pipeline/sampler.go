package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidInterval is returned for a sampling interval below 1
var ErrInvalidInterval = errors.New("sampling interval must be a positive integer")

// FrameSampler decides which frame indices are sent to the detector
type FrameSampler struct {
	interval int
}

// NewFrameSampler creates a sampler analyzing every interval-th frame, starting at frame 0
func NewFrameSampler(interval int) (*FrameSampler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}
	return &FrameSampler{interval: interval}, nil
}

// Interval returns the sampling stride
func (s *FrameSampler) Interval() int {
	return s.interval
}

// ShouldAnalyze reports whether frameIndex is on the sampling stride
func (s *FrameSampler) ShouldAnalyze(frameIndex int) bool {
	return ShouldAnalyze(frameIndex, s.interval)
}

// ShouldAnalyze reports whether frameIndex mod interval == 0.
// A non-positive interval never matches; callers validate it up front.
func ShouldAnalyze(frameIndex, interval int) bool {
	if interval <= 0 {
		return false
	}
	return frameIndex%interval == 0
}
