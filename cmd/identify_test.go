package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/gallery/memory"
	"github.com/kozaktomas/face-gallery/internal/matcher"
	"github.com/kozaktomas/face-gallery/internal/recognition"
)

// stillCamera reports the same face on every frame.
type stillCamera struct{}

func (stillCamera) Detect(context.Context, []byte) ([]recognition.Detection, error) {
	return []recognition.Detection{{Region: recognition.Region{X1: 10, Y1: 10, X2: 110, Y2: 110}, Confidence: 0.99}}, nil
}

func (stillCamera) Extract(context.Context, []byte, recognition.Detection) (recognition.Features, error) {
	return recognition.Features{Values: []float32{1, 0, 0, 0}}, nil
}

func newTestRecognizer(t *testing.T, opts ...recognition.Option) *recognition.Recognizer {
	t.Helper()
	s := config.DefaultMatcherSettings()
	s.Dimension = 4
	cfg, err := config.NewMatcher(s)
	if err != nil {
		t.Fatal(err)
	}
	g := gallery.New(memory.New(), cfg)
	t.Cleanup(func() { g.Close() })
	if _, err := g.Enroll(context.Background(), embedding.New("alice", []float32{1, 0, 0, 0})); err != nil {
		t.Fatal(err)
	}
	return recognition.NewRecognizer(stillCamera{}, stillCamera{}, g, matcher.New(cfg), cfg, opts...)
}

func writeFrames(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, n)
	for i := range paths {
		paths[i] = filepath.Join(dir, fmt.Sprintf("frame%03d.jpg", i))
		if err := os.WriteFile(paths[i], []byte("frame"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func TestIdentifyImage_TrackAcrossFrames(t *testing.T) {
	ctx := context.Background()
	rec := newTestRecognizer(t, recognition.WithTracker(recognition.NewTracker(recognition.DefaultTrackingIoU)))

	var ids []int
	for _, path := range writeFrames(t, 3) {
		id, err := identifyImage(ctx, rec, path)
		if err != nil {
			t.Fatalf("identifyImage(%s) error: %v", path, err)
		}
		if !id.Matched() || id.Best.Identity != "alice" {
			t.Errorf("expected alice to match, got %+v", id.Best)
		}
		ids = append(ids, id.Detection.TrackingID)
	}
	if ids[0] == 0 || ids[1] != ids[0] || ids[2] != ids[0] {
		t.Errorf("tracking ids = %v, want one stable non-zero id", ids)
	}
}

func TestIdentifyImage_Untracked(t *testing.T) {
	rec := newTestRecognizer(t)

	id, err := identifyImage(context.Background(), rec, writeFrames(t, 1)[0])
	if err != nil {
		t.Fatal(err)
	}
	if id.Detection.TrackingID != 0 {
		t.Errorf("TrackingID = %d without a tracker", id.Detection.TrackingID)
	}
}

func TestIdentifyImage_MissingFile(t *testing.T) {
	rec := newTestRecognizer(t)
	if _, err := identifyImage(context.Background(), rec, filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}
