package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// GalleryHandler serves the enrolled-identity endpoints.
type GalleryHandler struct {
	gallery *gallery.Gallery
	log     *zap.Logger
}

func NewGalleryHandler(g *gallery.Gallery, log *zap.Logger) *GalleryHandler {
	return &GalleryHandler{gallery: g, log: log}
}

// EnrollRequest enrolls or replaces one identity.
type EnrollRequest struct {
	EmbeddingInput
	Remarks    *string `json:"remarks,omitempty"`
	Attachment []byte  `json:"attachment,omitempty"` // base64 in JSON
}

func (req EnrollRequest) options() []gallery.EnrollOption {
	var opts []gallery.EnrollOption
	if req.Remarks != nil {
		opts = append(opts, gallery.WithRemarks(*req.Remarks))
	}
	if len(req.Attachment) > 0 {
		opts = append(opts, gallery.WithAttachment(req.Attachment))
	}
	return opts
}

type EnrollResponse struct {
	ID       int64  `json:"id"`
	Identity string `json:"identity"`
}

type CapacityResponse struct {
	Capacity  int `json:"capacity"`
	Enabled   int `json:"enabled"`
	Remaining int `json:"remaining"`
}

// List returns the enabled records, newest first.
func (h *GalleryHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, err := h.gallery.ListEnabled(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponses(recs))
}

// Search matches ?q= against identities and remarks, enabled or not.
func (h *GalleryHandler) Search(w http.ResponseWriter, r *http.Request) {
	recs, err := h.gallery.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponses(recs))
}

func (h *GalleryHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.gallery.Get(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponse(rec))
}

// GetByID looks a record up by the id returned from enrollment.
func (h *GalleryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	rec, err := h.gallery.GetByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRecordResponse(rec))
}

// Attachment returns the stored thumbnail bytes.
func (h *GalleryHandler) Attachment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.gallery.Get(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if len(rec.Attachment) == 0 {
		respondError(w, http.StatusNotFound, "no attachment")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(rec.Attachment))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Attachment)
}

func (h *GalleryHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	enabled, err := h.gallery.Count(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CapacityResponse{
		Capacity:  h.gallery.Capacity(),
		Enabled:   enabled,
		Remaining: max(0, h.gallery.Capacity()-enabled),
	})
}

func (h *GalleryHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.gallery.Enroll(r.Context(), req.embedding(), req.options()...)
	if err != nil {
		h.log.Info("enroll rejected", zap.String("identity", sanitizeForLog(req.Identity)), zap.Error(err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, EnrollResponse{ID: id, Identity: req.Identity})
}

// EnrollBatch enrolls every item or none.
func (h *GalleryHandler) EnrollBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []EnrollRequest `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "items must not be empty")
		return
	}

	items := make([]gallery.Enrollment, len(req.Items))
	for i, it := range req.Items {
		items[i] = gallery.Enrollment{Embedding: it.embedding(), Attachment: it.Attachment}
		if it.Remarks != nil {
			items[i].Remarks = *it.Remarks
		}
	}
	ids, err := h.gallery.EnrollBatch(r.Context(), items)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	resp := make([]EnrollResponse, len(ids))
	for i, id := range ids {
		resp[i] = EnrollResponse{ID: id, Identity: req.Items[i].Identity}
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (h *GalleryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	deleted, err := h.gallery.Delete(r.Context(), identity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GalleryHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if err := h.gallery.SetEnabled(r.Context(), chi.URLParam(r, "identity"), *req.Enabled); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GalleryHandler) UpdateRemarks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Remarks string `json:"remarks"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.gallery.UpdateRemarks(r.Context(), chi.URLParam(r, "identity"), req.Remarks); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evict deletes the oldest enabled records until at most target remain.
func (h *GalleryHandler) Evict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target *int `json:"target"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Target == nil || *req.Target < 0 {
		respondError(w, http.StatusBadRequest, "target must be a non-negative integer")
		return
	}
	n, err := h.gallery.EvictOldest(r.Context(), *req.Target)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"evicted": n})
}

// Events streams a snapshot of the enabled records now and after every change.
func (h *GalleryHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	feed, err := h.gallery.Subscribe(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, ok := <-feed:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "snapshot", toRecordResponses(snapshot))
		}
	}
}
