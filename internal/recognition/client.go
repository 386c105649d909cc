package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client talks to an InsightFace-style embedding server. One call to
// /embed/face both detects faces and computes their embeddings, so Client
// serves as Detector and Extractor.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for baseURL. A zero timeout means no timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type faceDetection struct {
	FaceIndex    int       `json:"face_index"`
	Dim          int       `json:"dim"`
	Embedding    []float32 `json:"embedding"`
	BBox         []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore     float64   `json:"det_score"`
	Pose         []float64 `json:"pose,omitempty"` // [yaw, pitch, roll]
	LeftEyeOpen  *float64  `json:"left_eye_open,omitempty"`
	RightEyeOpen *float64  `json:"right_eye_open,omitempty"`
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

func (f faceDetection) detection() (Detection, error) {
	region, ok := RegionFromCorners(f.BBox)
	if !ok {
		return Detection{}, fmt.Errorf("face %d: bbox has %d values, want 4", f.FaceIndex, len(f.BBox))
	}
	d := Detection{
		Region:       region,
		Confidence:   f.DetScore,
		LeftEyeOpen:  EyeUnknown,
		RightEyeOpen: EyeUnknown,
		Embedding:    f.Embedding,
	}
	if len(f.Pose) == 3 {
		d.Yaw, d.Pitch, d.Roll = f.Pose[0], f.Pose[1], f.Pose[2]
	}
	if f.LeftEyeOpen != nil {
		d.LeftEyeOpen = *f.LeftEyeOpen
	}
	if f.RightEyeOpen != nil {
		d.RightEyeOpen = *f.RightEyeOpen
	}
	return d, nil
}

// postMultipartImage posts imageData as the "file" form field to endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", http.DetectContentType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Detect finds faces in imageData. Detections carry their embeddings.
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp faceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	dets := make([]Detection, 0, len(faceResp.Faces))
	for _, f := range faceResp.Faces {
		d, err := f.detection()
		if err != nil {
			return nil, err
		}
		dets = append(dets, d)
	}
	return dets, nil
}

// Extract returns the embedding of det. If det came from Detect it already
// holds one; otherwise the image is sent again and the returned face that
// overlaps det the most is used. The detection score serves as quality.
func (c *Client) Extract(ctx context.Context, imageData []byte, det Detection) (Features, error) {
	if len(det.Embedding) > 0 {
		return Features{Values: det.Embedding, Quality: det.Confidence, HasQuality: true}, nil
	}

	dets, err := c.Detect(ctx, imageData)
	if err != nil {
		return Features{}, err
	}
	var (
		best    Detection
		bestIoU float64
	)
	for _, d := range dets {
		if iou := ComputeIoU(det.Region, d.Region); iou > bestIoU {
			best, bestIoU = d, iou
		}
	}
	if bestIoU == 0 || len(best.Embedding) == 0 {
		return Features{}, errors.New("no embedding returned for the face region")
	}
	return Features{Values: best.Embedding, Quality: best.Confidence, HasQuality: true}, nil
}
