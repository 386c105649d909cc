package recognition

import (
	"image"
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Region
		expected float64
	}{
		{
			name:     "identical boxes",
			a:        Region{0, 0, 10, 10},
			b:        Region{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        Region{0, 0, 10, 10},
			b:        Region{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        Region{0, 0, 10, 10},
			b:        Region{5, 5, 15, 15},
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
		},
		{
			name:     "one inside other",
			a:        Region{0, 0, 20, 20},
			b:        Region{5, 5, 15, 15},
			expected: 100.0 / 400.0,
		},
		{
			name:     "touching edges",
			a:        Region{0, 0, 10, 10},
			b:        Region{10, 0, 20, 10},
			expected: 0.0,
		},
		{
			name:     "degenerate boxes",
			a:        Region{},
			b:        Region{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestRegionFromCorners(t *testing.T) {
	r, ok := RegionFromCorners([]float64{1, 2, 3, 4})
	if !ok || r != (Region{1, 2, 3, 4}) {
		t.Errorf("RegionFromCorners = %v, %v", r, ok)
	}
	if _, ok := RegionFromCorners([]float64{1, 2, 3}); ok {
		t.Error("expected failure for 3 values")
	}
}

func TestRegionGeometry(t *testing.T) {
	r := Region{10.2, 20.7, 50.5, 60}
	if got := r.Rect(); got != image.Rect(10, 20, 51, 60) {
		t.Errorf("Rect() = %v", got)
	}
	inverted := Region{10, 10, 0, 0}
	if inverted.Area() != 0 {
		t.Errorf("inverted region area = %v, want 0", inverted.Area())
	}
	e := Region{10, 10, 20, 30}.Expand(0.5)
	if e != (Region{5, 0, 25, 40}) {
		t.Errorf("Expand(0.5) = %v", e)
	}
}

func TestFilterDetections(t *testing.T) {
	dets := []Detection{
		{Region: Region{0, 0, 100, 100}, Confidence: 0.9},  // kept
		{Region: Region{0, 0, 100, 100}, Confidence: 0.5},  // below gate
		{Region: Region{0, 0, 20, 100}, Confidence: 0.95},  // too narrow
		{Region: Region{0, 0, 35, 35}, Confidence: 0.7},    // exactly at both gates
		{Region: Region{0, 0, 5000, 200}, Confidence: 0.8}, // too large
	}

	got := FilterDetections(dets, 0.7, 35, 4096)
	if len(got) != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", len(got), got)
	}
	if got[0].Confidence != 0.9 || got[1].Confidence != 0.7 {
		t.Errorf("unexpected detections kept: %+v", got)
	}
}

func TestPickPrimary(t *testing.T) {
	if _, ok := PickPrimary(nil); ok {
		t.Error("expected no primary for empty input")
	}

	small := Detection{Region: Region{0, 0, 50, 50}, Confidence: 0.99}
	large := Detection{Region: Region{0, 0, 80, 80}, Confidence: 0.75}
	largeSure := Detection{Region: Region{100, 100, 180, 180}, Confidence: 0.9}

	got, ok := PickPrimary([]Detection{small, large, largeSure})
	if !ok || got.Confidence != 0.9 {
		t.Errorf("PickPrimary = %+v, want the large confident face", got)
	}
	got, _ = PickPrimary([]Detection{small, large})
	if got.Confidence != 0.75 {
		t.Errorf("PickPrimary = %+v, want the largest face", got)
	}
}
