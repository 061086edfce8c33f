package pipeline

import (
	"reflect"
	"testing"
)

func TestRoundTo(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   float64
	}{
		{0.456789, 2, 0.46},
		{0.9, 2, 0.9},
		{1.0 / 3.0, 1, 0.3},
		{2.0 / 3.0, 1, 0.7},
		// 0.125 is exact in binary, so the tie goes to the even digit
		{0.125, 2, 0.12},
		// 2.675 is stored just below the tie
		{2.675, 2, 2.67},
		{10.0, 1, 10},
	}

	for _, tt := range tests {
		if got := roundTo(tt.v, tt.places); got != tt.want {
			t.Errorf("roundTo(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
		}
	}
}

func TestAggregatorNormalizes(t *testing.T) {
	agg := NewDetectionAggregator()
	d := agg.Add(100, 29.97, RawDetection{ClassName: "person", Confidence: 0.87654, BBox: [4]float64{10.9, 20.1, 30.5, -0.5}})

	want := Detection{Frame: 100, Time: 3.3, Class: "person", Confidence: 0.88, BBox: [4]int{10, 20, 30, 0}}
	if d != want {
		t.Fatalf("Add() = %+v, want %+v", d, want)
	}
}

func TestAggregatorKeepsArrivalOrder(t *testing.T) {
	agg := NewDetectionAggregator()
	agg.Add(0, 30, raw("car", 0.5))
	agg.Add(0, 30, raw("person", 0.9))
	agg.Add(30, 30, raw("car", 0.4))
	agg.Add(60, 30, raw("dog", 0.7))

	var classes []string
	for _, d := range agg.Detections() {
		classes = append(classes, d.Class)
	}
	if !reflect.DeepEqual(classes, []string{"car", "person", "car", "dog"}) {
		t.Fatalf("detection order = %v", classes)
	}
	if !reflect.DeepEqual(agg.Summary().Classes(), []string{"car", "person", "dog"}) {
		t.Fatalf("summary order = %v", agg.Summary().Classes())
	}
}

func TestSummaryTotalsMatchDetections(t *testing.T) {
	agg := NewDetectionAggregator()
	classes := []string{"a", "b", "a", "c", "a", "b"}
	for i, c := range classes {
		agg.Add(i, 30, raw(c, 0.5))
	}

	total := 0
	for _, c := range agg.Summary().Classes() {
		total += agg.Summary().Count(c)
	}
	if total != agg.Count() || total != len(classes) {
		t.Fatalf("summary total %d, detections %d", total, agg.Count())
	}
	if agg.Summary().Count("a") != 3 || agg.Summary().Count("missing") != 0 {
		t.Fatalf("counts = %v", agg.Summary().Map())
	}
}
