package recognition

import "sync"

// DefaultTrackingIoU is the overlap above which a detection continues a track.
const DefaultTrackingIoU = 0.5

// Tracker assigns TrackingIDs across consecutive frames by matching each
// detection to the previous frame's detection it overlaps most.
type Tracker struct {
	mu     sync.Mutex
	minIoU float64
	last   []Detection
	nextID int
}

func NewTracker(minIoU float64) *Tracker {
	return &Tracker{minIoU: minIoU, nextID: 1}
}

// Update returns dets with TrackingID set. A previous track is reused at
// most once per frame; unmatched detections start new tracks.
func (t *Tracker) Update(dets []Detection) []Detection {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Detection, len(dets))
	used := make([]bool, len(t.last))
	for i, d := range dets {
		bestIdx, bestIoU := -1, t.minIoU
		for j, prev := range t.last {
			if used[j] {
				continue
			}
			if iou := ComputeIoU(d.Region, prev.Region); iou >= bestIoU {
				bestIdx, bestIoU = j, iou
			}
		}
		if bestIdx >= 0 {
			used[bestIdx] = true
			d.TrackingID = t.last[bestIdx].TrackingID
		} else {
			d.TrackingID = t.nextID
			t.nextID++
		}
		out[i] = d
	}
	t.last = out
	return out
}

// Reset forgets all tracks.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = nil
}
