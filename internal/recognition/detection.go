// Package recognition turns raw images into gallery matches: it detects
// faces, picks the primary one, extracts and normalizes its embedding and
// hands it to the comparator.
package recognition

import (
	"cmp"
	"image"
	"math"
	"slices"
)

// EyeUnknown marks an eye-openness estimate the detector did not provide.
const EyeUnknown = -1.0

// Region is a face bounding box [X1, Y1, X2, Y2] in image pixels.
type Region struct {
	X1, Y1, X2, Y2 float64
}

// RegionFromCorners builds a Region from a [x1, y1, x2, y2] slice.
// It returns false for any other length.
func RegionFromCorners(bbox []float64) (Region, bool) {
	if len(bbox) != 4 {
		return Region{}, false
	}
	return Region{X1: bbox[0], Y1: bbox[1], X2: bbox[2], Y2: bbox[3]}, true
}

func (r Region) Width() float64  { return max(0, r.X2-r.X1) }
func (r Region) Height() float64 { return max(0, r.Y2-r.Y1) }
func (r Region) Area() float64   { return r.Width() * r.Height() }

// Rect rounds the region outwards to whole pixels.
func (r Region) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X1)), int(math.Floor(r.Y1)),
		int(math.Ceil(r.X2)), int(math.Ceil(r.Y2)),
	)
}

// Expand grows the region by frac of its size on every side.
func (r Region) Expand(frac float64) Region {
	dx, dy := r.Width()*frac, r.Height()*frac
	return Region{X1: r.X1 - dx, Y1: r.Y1 - dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// Detection is one face reported by a Detector.
type Detection struct {
	Region     Region
	Confidence float64

	// Head pose in degrees.
	Yaw, Pitch, Roll float64

	// Eye openness probabilities, EyeUnknown when not estimated.
	LeftEyeOpen  float64
	RightEyeOpen float64

	// TrackingID is stable across consecutive frames of the same face, 0 if untracked.
	TrackingID int

	// Embedding is set when the detector computes vectors as it detects.
	Embedding []float32
}

// ComputeIoU calculates Intersection over Union between two regions.
func ComputeIoU(a, b Region) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// FilterDetections keeps detections with confidence >= gate whose shorter
// side is at least minSize and longer side at most maxSize pixels.
func FilterDetections(dets []Detection, gate float64, minSize, maxSize int) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < gate {
			continue
		}
		w, h := d.Region.Width(), d.Region.Height()
		if min(w, h) < float64(minSize) || max(w, h) > float64(maxSize) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// PickPrimary returns the largest detection, preferring higher confidence
// on equal area. It returns false when dets is empty.
func PickPrimary(dets []Detection) (Detection, bool) {
	if len(dets) == 0 {
		return Detection{}, false
	}
	return slices.MaxFunc(dets, func(a, b Detection) int {
		if c := cmp.Compare(a.Region.Area(), b.Region.Area()); c != 0 {
			return c
		}
		return cmp.Compare(a.Confidence, b.Confidence)
	}), true
}
