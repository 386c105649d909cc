package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

func enrollBody(identity string, values ...float32) EnrollRequest {
	if len(values) == 0 {
		values = []float32{1, 0, 0, 0}
	}
	return EnrollRequest{EmbeddingInput: EmbeddingInput{Identity: identity, Values: values}}
}

func TestGalleryHandler_Enroll(t *testing.T) {
	g, _ := testGallery(t, 1)
	h := NewGalleryHandler(g, zap.NewNop())

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"created", EnrollRequest{
			EmbeddingInput: EmbeddingInput{Identity: "alice", Values: []float32{1, 0, 0, 0}, Quality: ptr(0.9)},
			Remarks:        ptr("badge 17"),
		}, http.StatusCreated},
		{"replace existing", enrollBody("alice", 0, 1, 0, 0), http.StatusCreated},
		{"over capacity", enrollBody("bob"), http.StatusConflict},
		{"wrong dimension", enrollBody("carol", 1, 0, 0), http.StatusBadRequest},
		{"zero vector", enrollBody("dave", 0, 0, 0, 0), http.StatusBadRequest},
		{"empty identity", enrollBody(""), http.StatusBadRequest},
		{"unknown field", map[string]any{"identity": "x", "vector": []float32{1}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.Enroll(recorder, jsonRequest(t, http.MethodPost, "/api/v1/gallery", tt.body))
			if recorder.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
		})
	}

	rec, err := g.Get(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Values[1] != 1 || rec.Version != 2 || rec.Remarks != "badge 17" {
		t.Errorf("unexpected stored record %+v", rec)
	}
}

func TestGalleryHandler_ListSearchCapacity(t *testing.T) {
	g, _ := testGallery(t, 5)
	h := NewGalleryHandler(g, zap.NewNop())
	ctx := context.Background()

	g.Enroll(ctx, embedding.New("Jan Novák", []float32{1, 0, 0, 0}), gallery.WithAttachment([]byte{0xff, 0xd8, 0xff}))
	g.Enroll(ctx, embedding.New("visitor-42", []float32{0, 1, 0, 0}))
	g.SetEnabled(ctx, "visitor-42", false)

	recorder := httptest.NewRecorder()
	h.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/gallery", nil))
	list := decodeBody[[]RecordResponse](t, recorder)
	if len(list) != 1 || list[0].Identity != "Jan Novák" || !list[0].HasAttachment {
		t.Errorf("unexpected list %+v", list)
	}

	recorder = httptest.NewRecorder()
	h.Search(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/gallery/search?q=VISITOR+42", nil))
	found := decodeBody[[]RecordResponse](t, recorder)
	if len(found) != 1 || found[0].Identity != "visitor-42" || found[0].Enabled {
		t.Errorf("unexpected search result %+v", found)
	}

	recorder = httptest.NewRecorder()
	h.Capacity(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/gallery/capacity", nil))
	capResp := decodeBody[CapacityResponse](t, recorder)
	if capResp != (CapacityResponse{Capacity: 5, Enabled: 1, Remaining: 4}) {
		t.Errorf("unexpected capacity %+v", capResp)
	}

	recorder = httptest.NewRecorder()
	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"identity": "Jan Novák"})
	h.Attachment(recorder, req)
	if recorder.Code != http.StatusOK || recorder.Header().Get("Content-Type") != "image/jpeg" {
		t.Errorf("attachment: %d %s", recorder.Code, recorder.Header().Get("Content-Type"))
	}

	recorder = httptest.NewRecorder()
	req = requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"identity": "visitor-42"})
	h.Attachment(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing attachment, got %d", recorder.Code)
	}
}

func TestGalleryHandler_Mutations(t *testing.T) {
	g, _ := testGallery(t, 5)
	h := NewGalleryHandler(g, zap.NewNop())
	ctx := context.Background()
	g.Enroll(ctx, embedding.New("alice", []float32{1, 0, 0, 0}))

	call := func(fn http.HandlerFunc, method, identity string, body any) int {
		recorder := httptest.NewRecorder()
		req := requestWithChiParams(jsonRequest(t, method, "/", body), map[string]string{"identity": identity})
		fn(recorder, req)
		return recorder.Code
	}

	if code := call(h.SetEnabled, http.MethodPut, "alice", map[string]bool{"enabled": false}); code != http.StatusNoContent {
		t.Errorf("disable: %d", code)
	}
	if code := call(h.SetEnabled, http.MethodPut, "alice", map[string]any{}); code != http.StatusBadRequest {
		t.Errorf("missing flag: %d", code)
	}
	if code := call(h.SetEnabled, http.MethodPut, "nobody", map[string]bool{"enabled": true}); code != http.StatusNotFound {
		t.Errorf("unknown identity: %d", code)
	}
	if code := call(h.UpdateRemarks, http.MethodPut, "alice", map[string]string{"remarks": "moved"}); code != http.StatusNoContent {
		t.Errorf("remarks: %d", code)
	}

	recorder := httptest.NewRecorder()
	h.Get(recorder, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"identity": "alice"}))
	got := decodeBody[RecordResponse](t, recorder)
	if got.Enabled || got.Remarks != "moved" || got.Version != 3 {
		t.Errorf("unexpected record %+v", got)
	}

	if code := call(h.Delete, http.MethodDelete, "alice", nil); code != http.StatusNoContent {
		t.Errorf("delete: %d", code)
	}
	if code := call(h.Delete, http.MethodDelete, "alice", nil); code != http.StatusNotFound {
		t.Errorf("second delete: %d", code)
	}
}

func TestGalleryHandler_GetByID(t *testing.T) {
	g, _ := testGallery(t, 5)
	h := NewGalleryHandler(g, zap.NewNop())
	id, err := g.Enroll(context.Background(), embedding.New("alice", []float32{1, 0, 0, 0}))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"found", strconv.FormatInt(id, 10), http.StatusOK},
		{"unknown", strconv.FormatInt(id+1, 10), http.StatusNotFound},
		{"not a number", "alice", http.StatusBadRequest},
		{"zero", "0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			h.GetByID(recorder, requestWithChiParams(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": tt.id}))
			if recorder.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if got := decodeBody[RecordResponse](t, recorder); got.Identity != "alice" || got.ID != id {
					t.Errorf("unexpected record %+v", got)
				}
			}
		})
	}
}

func TestGalleryHandler_BatchAndEvict(t *testing.T) {
	g, _ := testGallery(t, 3)
	h := NewGalleryHandler(g, zap.NewNop())

	recorder := httptest.NewRecorder()
	h.EnrollBatch(recorder, jsonRequest(t, http.MethodPost, "/", map[string]any{
		"items": []EnrollRequest{enrollBody("a"), enrollBody("b"), enrollBody("c")},
	}))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("batch: %d %s", recorder.Code, recorder.Body.String())
	}
	ids := decodeBody[[]EnrollResponse](t, recorder)
	if len(ids) != 3 || ids[2].Identity != "c" {
		t.Errorf("unexpected ids %+v", ids)
	}

	recorder = httptest.NewRecorder()
	h.EnrollBatch(recorder, jsonRequest(t, http.MethodPost, "/", map[string]any{
		"items": []EnrollRequest{enrollBody("d")},
	}))
	if recorder.Code != http.StatusConflict {
		t.Errorf("expected 409 over capacity, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	h.EnrollBatch(recorder, jsonRequest(t, http.MethodPost, "/", map[string]any{"items": []EnrollRequest{}}))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	h.Evict(recorder, jsonRequest(t, http.MethodPost, "/", map[string]int{"target": 1}))
	if got := decodeBody[map[string]int](t, recorder); got["evicted"] != 2 {
		t.Errorf("evicted %v, want 2", got)
	}

	recorder = httptest.NewRecorder()
	h.Evict(recorder, jsonRequest(t, http.MethodPost, "/", map[string]int{"target": -1}))
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative target, got %d", recorder.Code)
	}
}

func TestGalleryHandler_Events(t *testing.T) {
	g, _ := testGallery(t, 5)
	h := NewGalleryHandler(g, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(h.Events))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := make(chan []RecordResponse)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var snap []RecordResponse
			if json.Unmarshal([]byte(data), &snap) == nil {
				events <- snap
			}
		}
	}()

	next := func() []RecordResponse {
		select {
		case snap, ok := <-events:
			if !ok {
				t.Fatal("stream ended")
			}
			return snap
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
		return nil
	}

	if initial := next(); len(initial) != 0 {
		t.Errorf("expected empty initial snapshot, got %+v", initial)
	}
	if _, err := g.Enroll(context.Background(), embedding.New("alice", []float32{1, 0, 0, 0})); err != nil {
		t.Fatal(err)
	}
	if snap := next(); len(snap) != 1 || snap[0].Identity != "alice" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}
