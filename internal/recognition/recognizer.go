package recognition

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/logger"
	"github.com/kozaktomas/face-gallery/internal/matcher"
)

// ErrNoFaceDetected is returned when no detection passes the configured
// confidence and size gates.
var ErrNoFaceDetected = errors.New("no face detected")

const (
	defaultTopK          = 5
	defaultThumbnailSize = 160
)

// Detector locates faces in an encoded image.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
}

// Extractor computes the embedding of one detected face.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte, det Detection) (Features, error)
}

// Features is a raw extractor output.
type Features struct {
	Values     []float32
	Quality    float64
	HasQuality bool
}

// Recognizer runs detection, extraction and matching for whole images.
type Recognizer struct {
	detector   Detector
	extractor  Extractor
	gallery    *gallery.Gallery
	comparator *matcher.Comparator
	tracker    *Tracker

	gate             float64
	minSize, maxSize int
	topK             int
	thumbnailSize    int
	log              *zap.Logger
}

type Option func(*Recognizer)

func WithLogger(l *zap.Logger) Option {
	return func(r *Recognizer) { r.log = logger.OrNop(l) }
}

// WithTracker assigns tracking ids to detections across calls, for callers
// feeding consecutive frames of one camera.
func WithTracker(t *Tracker) Option {
	return func(r *Recognizer) { r.tracker = t }
}

// WithTopK sets how many ranked candidates Identify returns.
func WithTopK(k int) Option {
	return func(r *Recognizer) { r.topK = k }
}

func NewRecognizer(d Detector, e Extractor, g *gallery.Gallery, c *matcher.Comparator, cfg config.Matcher, opts ...Option) *Recognizer {
	r := &Recognizer{
		detector:      d,
		extractor:     e,
		gallery:       g,
		comparator:    c,
		gate:          cfg.DetectionConfidenceGate(),
		minSize:       cfg.MinFaceSize(),
		maxSize:       cfg.MaxFaceSize(),
		topK:          defaultTopK,
		thumbnailSize: defaultThumbnailSize,
		log:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identification is the outcome of Identify.
type Identification struct {
	Detection Detection
	Faces     int // detections that passed the gates
	Best      *matcher.Result
	Top       []matcher.Result
}

// Matched reports whether the best candidate reached the threshold.
func (id Identification) Matched() bool {
	return id.Best != nil && id.Best.IsMatch
}

// embed detects the primary face of imageData and returns its normalized embedding.
func (r *Recognizer) embed(ctx context.Context, identity string, imageData []byte) (embedding.Embedding, Detection, int, error) {
	dets, err := r.detector.Detect(ctx, imageData)
	if err != nil {
		return embedding.Embedding{}, Detection{}, 0, fmt.Errorf("detect faces: %w", err)
	}
	passed := FilterDetections(dets, r.gate, r.minSize, r.maxSize)
	if r.tracker != nil {
		passed = r.tracker.Update(passed)
	}
	primary, ok := PickPrimary(passed)
	if !ok {
		r.log.Debug("no face passed the gates", zap.Int("detections", len(dets)))
		return embedding.Embedding{}, Detection{}, 0, ErrNoFaceDetected
	}

	features, err := r.extractor.Extract(ctx, imageData, primary)
	if err != nil {
		return embedding.Embedding{}, Detection{}, 0, fmt.Errorf("extract embedding: %w", err)
	}
	values, ok := embedding.Normalize(features.Values)
	if !ok {
		return embedding.Embedding{}, Detection{}, 0, fmt.Errorf("extract embedding: %w", embedding.ErrInvalidVector)
	}

	e := embedding.New(identity, values)
	if features.HasQuality {
		e = e.WithQuality(features.Quality)
	}
	return e, primary, len(passed), nil
}

// Identify matches the primary face in imageData against the enabled gallery.
func (r *Recognizer) Identify(ctx context.Context, imageData []byte) (Identification, error) {
	query, primary, faces, err := r.embed(ctx, "", imageData)
	if err != nil {
		return Identification{}, err
	}

	candidates, err := r.gallery.Candidates(ctx)
	if err != nil {
		return Identification{}, fmt.Errorf("load candidates: %w", err)
	}
	top, err := r.comparator.TopMatches(query, candidates, max(r.topK, 1))
	if err != nil {
		return Identification{}, err
	}

	id := Identification{Detection: primary, Faces: faces, Top: top}
	if len(top) > 0 {
		best := top[0]
		id.Best = &best
	}
	if id.Best != nil {
		r.log.Debug("identified face",
			zap.String("identity", id.Best.Identity),
			zap.Float64("similarity", id.Best.Similarity),
			zap.Bool("match", id.Best.IsMatch),
			zap.Int("tracking_id", primary.TrackingID))
	}
	return id, nil
}

// Enroll enrolls the primary face in imageData under identity and stores a
// JPEG thumbnail of the face as the record's attachment.
func (r *Recognizer) Enroll(ctx context.Context, identity string, imageData []byte, opts ...gallery.EnrollOption) (int64, error) {
	e, primary, _, err := r.embed(ctx, identity, imageData)
	if err != nil {
		return 0, err
	}

	if img, err := DecodeImage(imageData); err != nil {
		r.log.Warn("skipping thumbnail", zap.String("identity", identity), zap.Error(err))
	} else if thumb, err := CropFace(img, primary.Region, r.thumbnailSize); err != nil {
		r.log.Warn("skipping thumbnail", zap.String("identity", identity), zap.Error(err))
	} else {
		opts = append([]gallery.EnrollOption{gallery.WithAttachment(thumb)}, opts...)
	}

	return r.gallery.Enroll(ctx, e, opts...)
}
