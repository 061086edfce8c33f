package pipeline

import (
	"math"
	"strconv"
)

// DetectionAggregator turns raw detections into Detection records and keeps
// the per-class summary. One instance belongs to one run.
type DetectionAggregator struct {
	detections []Detection
	summary    *Summary
}

// NewDetectionAggregator creates an empty aggregator
func NewDetectionAggregator() *DetectionAggregator {
	return &DetectionAggregator{
		detections: make([]Detection, 0),
		summary:    NewSummary(),
	}
}

// Add normalizes raw, appends it in arrival order and counts its class
func (a *DetectionAggregator) Add(frameIndex int, fps float64, raw RawDetection) Detection {
	d := Detection{
		Frame:      frameIndex,
		Time:       Float(roundTo(float64(frameIndex)/fps, 1)),
		Class:      raw.ClassName,
		Confidence: Float(roundTo(raw.Confidence, 2)),
		BBox: [4]int{
			truncate(raw.BBox[0]),
			truncate(raw.BBox[1]),
			truncate(raw.BBox[2]),
			truncate(raw.BBox[3]),
		},
	}

	a.detections = append(a.detections, d)
	a.summary.Inc(d.Class)
	return d
}

// Detections returns the records in arrival order
func (a *DetectionAggregator) Detections() []Detection {
	return a.detections
}

// Summary returns the per-class counts
func (a *DetectionAggregator) Summary() *Summary {
	return a.summary
}

// Count returns the number of records
func (a *DetectionAggregator) Count() int {
	return len(a.detections)
}

// roundTo rounds v to places decimals using the exact binary value of v,
// with exact ties going to the even digit.
func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// truncate drops the fractional part toward zero; pixel coordinates are not rounded
func truncate(v float64) int {
	return int(v)
}
