package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/matcher"
)

const defaultTopK = 5

// MatchHandler exposes the comparator.
type MatchHandler struct {
	gallery    *gallery.Gallery
	comparator *matcher.Comparator
}

func NewMatchHandler(g *gallery.Gallery, c *matcher.Comparator) *MatchHandler {
	return &MatchHandler{gallery: g, comparator: c}
}

// MatchRequest scores a query against explicit candidates, or against the
// enabled gallery when Candidates is omitted.
type MatchRequest struct {
	Query      EmbeddingInput   `json:"query"`
	Candidates []EmbeddingInput `json:"candidates,omitempty"`
	TopK       int              `json:"top_k,omitempty"`
	ReturnAll  bool             `json:"return_all,omitempty"`
}

type MatchResponse struct {
	Best      *ResultResponse  `json:"best"`
	Top       []ResultResponse `json:"top"`
	Results   []ResultResponse `json:"results"`
	Threshold float64          `json:"threshold"`
	ElapsedMS float64          `json:"elapsed_ms"`
}

func (h *MatchHandler) candidates(r *http.Request, req MatchRequest) ([]embedding.Embedding, error) {
	if req.Candidates != nil {
		return toEmbeddings(req.Candidates), nil
	}
	return h.gallery.Candidates(r.Context())
}

// Match returns the best candidate, the top-K ranking and the batch results.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	candidates, err := h.candidates(r, req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	query := req.Query.embedding()

	batch, err := h.comparator.BatchCompare(query, candidates, req.ReturnAll)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	top, err := h.comparator.TopMatches(query, candidates, topK)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, MatchResponse{
		Best:      toResultPtr(batch.Best),
		Top:       toResultResponses(top),
		Results:   toResultResponses(batch.Results),
		Threshold: h.comparator.Threshold(),
		ElapsedMS: float64(batch.Elapsed.Microseconds()) / 1000,
	})
}

// Verify compares two embeddings one to one.
func (h *MatchHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		A EmbeddingInput `json:"a"`
		B EmbeddingInput `json:"b"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.comparator.Compare(req.A.embedding(), req.B.embedding())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toResultResponse(result))
}

// Threshold proposes a per-identity threshold from several samples.
func (h *MatchHandler) Threshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Samples []EmbeddingInput `json:"samples"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, map[string]float64{
		"threshold":  h.comparator.DynamicThreshold(toEmbeddings(req.Samples)),
		"configured": h.comparator.Threshold(),
	})
}
