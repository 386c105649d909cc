package handlers

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/recognition"
)

// maxImageBytes caps uploaded images.
const maxImageBytes = 20 << 20

// RecognizeHandler runs the image pipeline. It is only routed when an
// embedding server is configured.
type RecognizeHandler struct {
	recognizer *recognition.Recognizer
	log        *zap.Logger
}

func NewRecognizeHandler(rec *recognition.Recognizer, log *zap.Logger) *RecognizeHandler {
	return &RecognizeHandler{recognizer: rec, log: log}
}

type RecognizeResponse struct {
	Matched    bool             `json:"matched"`
	Best       *ResultResponse  `json:"best"`
	Top        []ResultResponse `json:"top"`
	Faces      int              `json:"faces"`
	BBox       []float64        `json:"bbox"`
	Confidence float64          `json:"confidence"`
	TrackingID int              `json:"tracking_id,omitempty"`
}

// readImage reads the "file" part of a multipart upload.
func readImage(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Recognize identifies the primary face of an uploaded image.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	data, err := readImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.recognizer.Identify(r.Context(), data)
	if err != nil {
		h.log.Info("recognition failed", zap.Error(err))
		respondDomainError(w, err)
		return
	}

	region := id.Detection.Region
	respondJSON(w, http.StatusOK, RecognizeResponse{
		Matched:    id.Matched(),
		Best:       toResultPtr(id.Best),
		Top:        toResultResponses(id.Top),
		Faces:      id.Faces,
		BBox:       []float64{region.X1, region.Y1, region.X2, region.Y2},
		Confidence: id.Detection.Confidence,
		TrackingID: id.Detection.TrackingID,
	})
}

// Enroll enrolls the primary face of an uploaded image under the "identity"
// form field, with optional "remarks".
func (h *RecognizeHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	data, err := readImage(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	identity := r.FormValue("identity")

	var opts []gallery.EnrollOption
	if remarks := r.FormValue("remarks"); remarks != "" {
		opts = append(opts, gallery.WithRemarks(remarks))
	}
	id, err := h.recognizer.Enroll(r.Context(), identity, data, opts...)
	if err != nil {
		h.log.Info("image enroll rejected", zap.String("identity", sanitizeForLog(identity)), zap.Error(err))
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, EnrollResponse{ID: id, Identity: identity})
}
