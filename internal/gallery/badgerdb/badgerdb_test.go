package badgerdb

import (
	"context"
	"testing"

	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/gallery/gallerytest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	gallerytest.Run(t, func(t *testing.T) gallery.Backend { return newTestStore(t) })
}

func TestOpenRequiresDir(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Error("expected error without Dir")
	}
}

func TestRecordEncoding(t *testing.T) {
	q := 0.75
	rec := gallerytest.NewRecord("alice", 0, 0.5, -0.25, 0, 1)
	rec.ID = 7
	rec.Quality = &q
	rec.Attachment = []byte{0xff, 0xd8}
	rec.Remarks = "front door"

	data, err := encodeRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	got, err := decodeRecord(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 7 || got.Identity != "alice" || got.Remarks != "front door" || !got.Enabled {
		t.Errorf("unexpected record %+v", got)
	}
	if got.Quality == nil || *got.Quality != q {
		t.Errorf("quality = %v, want %v", got.Quality, q)
	}
	for i, v := range rec.Values {
		if got.Values[i] != v {
			t.Errorf("values[%d] = %v, want %v", i, got.Values[i], v)
		}
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || got.CreatedAt.Location().String() != "UTC" {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	first, err := s.Insert(ctx, gallerytest.NewRecord("alice", 0))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Delete(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Insert(ctx, gallerytest.NewRecord("bob", 0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	got, err := s.Get(ctx, "bob")
	if err != nil || got == nil {
		t.Fatalf("bob missing after reopen: %v", err)
	}
	next, err := s.Insert(ctx, gallerytest.NewRecord("carol", 0))
	if err != nil {
		t.Fatal(err)
	}
	if next <= got.ID || next <= first {
		t.Errorf("id %d reused or not increasing (previous %d, %d)", next, first, got.ID)
	}
}
