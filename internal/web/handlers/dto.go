package handlers

import (
	"math"
	"time"

	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/matcher"
)

// EmbeddingInput is an embedding as sent by API clients.
type EmbeddingInput struct {
	Identity string    `json:"identity"`
	Values   []float32 `json:"values"`
	Quality  *float64  `json:"quality,omitempty"`
}

func (in EmbeddingInput) embedding() embedding.Embedding {
	e := embedding.New(in.Identity, in.Values)
	if in.Quality != nil {
		e = e.WithQuality(*in.Quality)
	}
	return e
}

func toEmbeddings(in []EmbeddingInput) []embedding.Embedding {
	out := make([]embedding.Embedding, len(in))
	for i, e := range in {
		out[i] = e.embedding()
	}
	return out
}

// RecordResponse is a gallery record without its vector.
type RecordResponse struct {
	ID            int64     `json:"id"`
	Identity      string    `json:"identity"`
	Dimension     int       `json:"dimension"`
	Quality       *float64  `json:"quality,omitempty"`
	Remarks       string    `json:"remarks,omitempty"`
	HasAttachment bool      `json:"has_attachment"`
	Enabled       bool      `json:"enabled"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRecordResponse(rec gallery.Record) RecordResponse {
	return RecordResponse{
		ID:            rec.ID,
		Identity:      rec.Identity,
		Dimension:     rec.Dimension,
		Quality:       rec.Quality,
		Remarks:       rec.Remarks,
		HasAttachment: len(rec.Attachment) > 0,
		Enabled:       rec.Enabled,
		Version:       rec.Version,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func toRecordResponses(recs []gallery.Record) []RecordResponse {
	out := make([]RecordResponse, len(recs))
	for i, rec := range recs {
		out[i] = toRecordResponse(rec)
	}
	return out
}

// ResultResponse is a comparator result. Distance is null for invalid vectors.
type ResultResponse struct {
	Identity      string   `json:"identity"`
	Similarity    float64  `json:"similarity"`
	RawSimilarity float64  `json:"raw_similarity"`
	QualityWeight float64  `json:"quality_weight"`
	Distance      *float64 `json:"distance"`
	IsMatch       bool     `json:"is_match"`
	Metric        string   `json:"metric"`
	Status        string   `json:"status"`
	Reason        string   `json:"reason,omitempty"`
}

func toResultResponse(r matcher.Result) ResultResponse {
	resp := ResultResponse{
		Identity:      r.Identity,
		Similarity:    r.Similarity,
		RawSimilarity: r.RawSimilarity,
		QualityWeight: r.QualityWeight,
		IsMatch:       r.IsMatch,
		Metric:        r.Metric.String(),
		Status:        r.Status.String(),
		Reason:        r.Reason,
	}
	if !math.IsInf(r.Distance, 0) && !math.IsNaN(r.Distance) {
		d := r.Distance
		resp.Distance = &d
	}
	return resp
}

func toResultResponses(results []matcher.Result) []ResultResponse {
	out := make([]ResultResponse, len(results))
	for i, r := range results {
		out[i] = toResultResponse(r)
	}
	return out
}

func toResultPtr(r *matcher.Result) *ResultResponse {
	if r == nil {
		return nil
	}
	resp := toResultResponse(*r)
	return &resp
}
