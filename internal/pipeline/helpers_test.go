package pipeline

import (
	"context"
	"errors"
	"testing"

	"monuguard/internal/logger"
)

// fakeSource yields frames 0..frames-1; failAt stops Retrieve at that index.
type fakeSource struct {
	info    SourceInfo
	frames  int
	failAt  int
	pos     int
	closed  int
	grabbed int
}

func newFakeSource(frames int, fps float64) *fakeSource {
	return &fakeSource{info: SourceInfo{TotalFrames: frames, FPS: fps}, frames: frames, failAt: -1, pos: -1}
}

func (s *fakeSource) Info() SourceInfo { return s.info }

func (s *fakeSource) Grab() bool {
	if s.pos+1 >= s.frames {
		return false
	}
	s.pos++
	s.grabbed++
	return true
}

func (s *fakeSource) Retrieve() (*FrameData, bool) {
	if s.pos == s.failAt {
		return nil, false
	}
	return &FrameData{Index: s.pos, Data: []byte{0xff, 0xd8}}, true
}

func (s *fakeSource) Close() error {
	s.closed++
	return nil
}

func openerFor(src FrameSource) SourceOpener {
	return func(string) (FrameSource, error) { return src, nil }
}

// scriptedDetector returns per-frame detections and records the frames it saw.
type scriptedDetector struct {
	byFrame map[int][]RawDetection
	errAt   int
	seen    []int
	confs   []float64
}

func newScriptedDetector(byFrame map[int][]RawDetection) *scriptedDetector {
	return &scriptedDetector{byFrame: byFrame, errAt: -1}
}

func (d *scriptedDetector) Name() string { return "scripted" }

func (d *scriptedDetector) Detect(_ context.Context, frame *FrameData, confidence float64) ([]RawDetection, error) {
	d.seen = append(d.seen, frame.Index)
	d.confs = append(d.confs, confidence)
	if frame.Index == d.errAt {
		return nil, errors.New("inference backend down")
	}
	return d.byFrame[frame.Index], nil
}

func (d *scriptedDetector) Close() error { return nil }

func raw(class string, conf float64, box ...float64) RawDetection {
	r := RawDetection{ClassName: class, Confidence: conf}
	copy(r.BBox[:], box)
	return r
}

func quietAnalyzer(t *testing.T, open SourceOpener, det Detector, bus *EventBus) *Analyzer {
	t.Helper()
	a := NewAnalyzer(open, det, bus)
	a.SetLogger(logger.New(logger.SILENT, nil))
	return a
}
