package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/gallery/memory"
	"github.com/kozaktomas/face-gallery/internal/matcher"
)

// testMatcher creates a 4-dimensional matcher config for testing
func testMatcher(t *testing.T, capacity int) config.Matcher {
	t.Helper()
	s := config.DefaultMatcherSettings()
	s.Dimension = 4
	s.Capacity = capacity
	m, err := config.NewMatcher(s)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	return m
}

// testGallery creates an in-memory gallery that is closed with the test
func testGallery(t *testing.T, capacity int) (*gallery.Gallery, *matcher.Comparator) {
	t.Helper()
	cfg := testMatcher(t, capacity)
	g := gallery.New(memory.New(), cfg)
	t.Cleanup(func() { g.Close() })
	return g, matcher.New(cfg)
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(recorder.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return v
}

func ptr[T any](v T) *T { return &v }
