package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultFPS is used when a source reports no usable frame rate
const DefaultFPS = 30.0

// FrameData is one frame handed to a Detector
type FrameData struct {
	Index  int    // 0-based position in the source
	Data   []byte // JPEG-encoded frame
	Width  int    // Frame width (if known)
	Height int    // Frame height (if known)
}

// SourceInfo is the metadata a FrameSource reports once opened
type SourceInfo struct {
	TotalFrames int
	FPS         float64
}

// RawDetection is one object as returned by a Detector, before normalization
type RawDetection struct {
	ClassID    int
	ClassName  string
	Confidence float64
	BBox       [4]float64 // x1, y1, x2, y2 in pixels
}

// Float is a JSON number that always carries a fractional part ("0.0", "3.2", "30.0")
type Float float64

// String formats f with the shortest exact representation, keeping at least one decimal
func (f Float) String() string {
	s := strconv.FormatFloat(float64(f), 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// MarshalJSON implements json.Marshaler
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported float value: %v", v)
	}
	return []byte(f.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Float) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Detection is a normalized detection record.
// Time and Confidence are rounded once when the record is built.
type Detection struct {
	Frame      int    `json:"frame"`
	Time       Float  `json:"time"`
	Class      string `json:"class"`
	Confidence Float  `json:"confidence"`
	BBox       [4]int `json:"bbox"`
}

// AlertType classifies an alert
type AlertType string

const (
	AlertIntrusion AlertType = "intrusion"
	AlertMotion    AlertType = "motion"
	AlertVandalism AlertType = "vandalism"
	AlertOther     AlertType = "other"
)

// Severity ranks an alert
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ThreatRule maps a detected class to the alert it raises
type ThreatRule struct {
	Type     AlertType
	Severity Severity
}

// Alert is a raised, deduplicated alert
type Alert struct {
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
}

// Summary counts detections per class, remembering first-seen order
type Summary struct {
	order  []string
	counts map[string]int
}

// NewSummary creates an empty summary
func NewSummary() *Summary {
	return &Summary{counts: make(map[string]int)}
}

// Inc adds one detection of class
func (s *Summary) Inc(class string) {
	if _, ok := s.counts[class]; !ok {
		s.order = append(s.order, class)
	}
	s.counts[class]++
}

// Count returns the number of detections of class (0 if never seen)
func (s *Summary) Count(class string) int {
	return s.counts[class]
}

// Len returns the number of distinct classes
func (s *Summary) Len() int {
	return len(s.order)
}

// Classes returns the classes in first-seen order
func (s *Summary) Classes() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Map returns a copy of the counts
func (s *Summary) Map() map[string]int {
	out := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the counts as an object in first-seen order
func (s *Summary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if s != nil {
		for i, class := range s.order {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(class)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.WriteString(strconv.Itoa(s.counts[class]))
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Report is the result of one analysis run.
// A failed run carries only Error and marshals to {"error": ...}.
type Report struct {
	TotalFrames    int
	AnalyzedFrames int
	FPS            Float
	Detections     []Detection
	Summary        *Summary
	Alerts         []Alert
	Error          string
}

type reportJSON struct {
	TotalFrames    int         `json:"totalFrames"`
	AnalyzedFrames int         `json:"analyzedFrames"`
	FPS            Float       `json:"fps"`
	Detections     []Detection `json:"detections"`
	Summary        *Summary    `json:"summary"`
	Alerts         []Alert     `json:"alerts"`
}

// Failed reports whether the run ended in the error shape
func (r *Report) Failed() bool {
	return r.Error != ""
}

// MarshalJSON implements the two mutually exclusive report shapes
func (r *Report) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}

	out := reportJSON{
		TotalFrames:    r.TotalFrames,
		AnalyzedFrames: r.AnalyzedFrames,
		FPS:            r.FPS,
		Detections:     r.Detections,
		Summary:        r.Summary,
		Alerts:         r.Alerts,
	}
	if out.Detections == nil {
		out.Detections = []Detection{}
	}
	if out.Summary == nil {
		out.Summary = NewSummary()
	}
	if out.Alerts == nil {
		out.Alerts = []Alert{}
	}
	return json.Marshal(out)
}
