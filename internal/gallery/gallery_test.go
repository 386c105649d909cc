package gallery_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/gallery/memory"
)

// stepClock returns a clock that advances by one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newGallery(t *testing.T, capacity int) (*gallery.Gallery, *memory.Store) {
	t.Helper()
	s := config.DefaultMatcherSettings()
	s.Dimension = 4
	s.Capacity = capacity
	m, err := config.NewMatcher(s)
	if err != nil {
		t.Fatalf("NewMatcher: %v", err)
	}
	store := memory.New()
	g := gallery.New(store, m, gallery.WithClock(stepClock()))
	t.Cleanup(func() { g.Close() })
	return g, store
}

func emb(identity string, values ...float32) embedding.Embedding {
	if len(values) == 0 {
		values = []float32{1, 0, 0, 0}
	}
	return embedding.New(identity, values)
}

func mustEnroll(t *testing.T, g *gallery.Gallery, e embedding.Embedding, opts ...gallery.EnrollOption) int64 {
	t.Helper()
	id, err := g.Enroll(context.Background(), e, opts...)
	if err != nil {
		t.Fatalf("Enroll(%q) error: %v", e.Identity, err)
	}
	return id
}

func remaining(t *testing.T, g *gallery.Gallery) int {
	t.Helper()
	n, err := g.RemainingCapacity(context.Background())
	if err != nil {
		t.Fatalf("RemainingCapacity error: %v", err)
	}
	return n
}

func TestEnroll_BeyondCapacity(t *testing.T) {
	g, _ := newGallery(t, 2)

	mustEnroll(t, g, emb("a"))
	mustEnroll(t, g, emb("b"))
	_, err := g.Enroll(context.Background(), emb("c"))

	if !errors.Is(err, gallery.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	var capErr *gallery.CapacityError
	if !errors.As(err, &capErr) || capErr.Limit != 2 {
		t.Errorf("expected CapacityError{Limit: 2}, got %#v", err)
	}
	if n := remaining(t, g); n != 0 {
		t.Errorf("RemainingCapacity() = %d, want 0", n)
	}
}

func TestEnroll_ReplaceExisting(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 2)

	id := mustEnroll(t, g, emb("a"), gallery.WithRemarks("first"))
	before, err := g.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	capBefore := remaining(t, g)

	again := mustEnroll(t, g, emb("a", 0, 1, 0, 0).WithQuality(0.5))
	after, err := g.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}

	if again != id || after.ID != id {
		t.Errorf("re-enroll changed id: %d -> %d", id, again)
	}
	if after.Version != before.Version+1 {
		t.Errorf("version = %d, want %d", after.Version, before.Version+1)
	}
	if remaining(t, g) != capBefore {
		t.Errorf("re-enroll changed remaining capacity")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
	if !after.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
	if after.Values[1] != 1 || after.Quality == nil || *after.Quality != 0.5 {
		t.Errorf("vector/quality not replaced: %+v", after)
	}
	if after.Remarks != "first" {
		t.Errorf("remarks should be kept when not given, got %q", after.Remarks)
	}
}

func TestEnroll_ReplaceAtCapacity(t *testing.T) {
	g, _ := newGallery(t, 1)
	mustEnroll(t, g, emb("a"))
	if _, err := g.Enroll(context.Background(), emb("a", 0, 0, 1, 0)); err != nil {
		t.Errorf("replacing at capacity should succeed, got %v", err)
	}
}

func TestEnroll_Validation(t *testing.T) {
	g, _ := newGallery(t, 5)
	nan := float32(math.NaN())

	tests := []struct {
		name    string
		e       embedding.Embedding
		wantErr error
	}{
		{"empty identity", emb(""), gallery.ErrInvalidIdentity},
		{"blank identity", emb("  "), gallery.ErrInvalidIdentity},
		{"wrong dimension", emb("a", 1, 0), embedding.ErrDimensionMismatch},
		{"nan", emb("a", nan, 0, 0, 1), embedding.ErrInvalidVector},
		{"zero", emb("a", 0, 0, 0, 0), embedding.ErrInvalidVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Enroll(context.Background(), tt.e); !errors.Is(err, tt.wantErr) {
				t.Errorf("Enroll() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if n := remaining(t, g); n != 5 {
		t.Errorf("rejected enrollments changed capacity: %d", n)
	}
}

func TestEnroll_Attachment(t *testing.T) {
	g, _ := newGallery(t, 2)
	thumb := []byte{0xff, 0xd8, 0xff}
	mustEnroll(t, g, emb("a"), gallery.WithAttachment(thumb))
	thumb[0] = 0

	rec, err := g.Get(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Attachment) != "\xff\xd8\xff" {
		t.Errorf("attachment = %x", rec.Attachment)
	}
}

func TestEnroll_BackendFailure(t *testing.T) {
	g, store := newGallery(t, 2)
	store.InsertError = errors.New("disk full")

	if _, err := g.Enroll(context.Background(), emb("a")); err == nil {
		t.Fatal("expected error from backend")
	}
	if n := remaining(t, g); n != 2 {
		t.Errorf("failed insert changed capacity: %d", n)
	}
}

func TestEnroll_ConcurrentRespectsCapacity(t *testing.T) {
	const capacity = 5
	g, _ := newGallery(t, capacity)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 40; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Enroll(context.Background(), emb(fmt.Sprintf("id-%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, gallery.ErrCapacityExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != capacity || rejected != 40-capacity {
		t.Errorf("succeeded/rejected = %d/%d, want %d/%d", succeeded, rejected, capacity, 40-capacity)
	}
	if n, _ := g.Count(context.Background()); n != capacity {
		t.Errorf("Count() = %d, want %d", n, capacity)
	}
}

func TestSetEnabled(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 2)
	mustEnroll(t, g, emb("a"))
	mustEnroll(t, g, emb("b"))

	if err := g.SetEnabled(ctx, "a", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if n := remaining(t, g); n != 1 {
		t.Errorf("disabled record should free capacity, remaining = %d", n)
	}
	rec, _ := g.Get(ctx, "a")
	if rec.Enabled || rec.Version != 2 {
		t.Errorf("after disable: enabled=%v version=%d", rec.Enabled, rec.Version)
	}

	// same state is a no-op
	if err := g.SetEnabled(ctx, "a", false); err != nil {
		t.Fatal(err)
	}
	if rec, _ := g.Get(ctx, "a"); rec.Version != 2 {
		t.Errorf("no-op bumped version to %d", rec.Version)
	}

	candidates, err := g.Candidates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].Identity != "b" {
		t.Errorf("disabled record should not be a candidate: %+v", candidates)
	}

	mustEnroll(t, g, emb("c"))
	if err := g.SetEnabled(ctx, "a", true); !errors.Is(err, gallery.ErrCapacityExceeded) {
		t.Errorf("enabling when full: expected ErrCapacityExceeded, got %v", err)
	}

	if err := g.SetEnabled(ctx, "nobody", true); !errors.Is(err, gallery.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestEnroll_ReenablesDisabled(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 1)
	id := mustEnroll(t, g, emb("a"))
	if err := g.SetEnabled(ctx, "a", false); err != nil {
		t.Fatal(err)
	}
	mustEnroll(t, g, emb("b"))

	if _, err := g.Enroll(ctx, emb("a")); !errors.Is(err, gallery.ErrCapacityExceeded) {
		t.Fatalf("re-enrolling a disabled identity when full: got %v", err)
	}

	if _, err := g.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	again := mustEnroll(t, g, emb("a", 0, 1, 0, 0))
	rec, _ := g.Get(ctx, "a")
	if again != id || !rec.Enabled || rec.Version != 3 {
		t.Errorf("re-enabled record: id=%d enabled=%v version=%d", again, rec.Enabled, rec.Version)
	}
}

func TestUpdateRemarks(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 2)
	mustEnroll(t, g, emb("Jiří"))

	if err := g.UpdateRemarks(ctx, "Jiří", "night shift"); err != nil {
		t.Fatal(err)
	}
	rec, _ := g.Get(ctx, "Jiří")
	if rec.Remarks != "night shift" || rec.Version != 2 {
		t.Errorf("remarks=%q version=%d", rec.Remarks, rec.Version)
	}
	if err := g.UpdateRemarks(ctx, "nobody", "x"); !errors.Is(err, gallery.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}

	found, err := g.Search(ctx, "JIRI")
	if err != nil || len(found) != 1 {
		t.Errorf("Search(JIRI) = %v, %v", found, err)
	}
	found, err = g.Search(ctx, "night-shift")
	if err != nil || len(found) != 1 {
		t.Errorf("Search(night-shift) = %v, %v", found, err)
	}
	all, err := g.Search(ctx, " ")
	if err != nil || len(all) != 1 {
		t.Errorf("empty keyword should list all, got %v, %v", all, err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 2)
	mustEnroll(t, g, emb("a"))

	deleted, err := g.Delete(ctx, "a")
	if err != nil || !deleted {
		t.Errorf("Delete(a) = %v, %v; want true", deleted, err)
	}
	deleted, err = g.Delete(ctx, "a")
	if err != nil || deleted {
		t.Errorf("Delete(a) again = %v, %v; want false", deleted, err)
	}
	if _, err := g.Get(ctx, "a"); !errors.Is(err, gallery.ErrIdentityNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 2)
	id := mustEnroll(t, g, emb("a"))
	mustEnroll(t, g, emb("b"))
	if err := g.SetEnabled(ctx, "a", false); err != nil {
		t.Fatal(err)
	}

	rec, err := g.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID(%d) error: %v", id, err)
	}
	if rec.Identity != "a" || rec.ID != id || rec.Enabled {
		t.Errorf("unexpected record %+v", rec)
	}

	if _, err := g.GetByID(ctx, id+100); !errors.Is(err, gallery.ErrIdentityNotFound) {
		t.Errorf("GetByID unknown id: %v", err)
	}
}

func TestListEnabled_NewestFirst(t *testing.T) {
	g, _ := newGallery(t, 5)
	for _, id := range []string{"first", "second", "third"} {
		mustEnroll(t, g, emb(id))
	}
	recs, err := g.ListEnabled(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"third", "second", "first"}
	for i, rec := range recs {
		if rec.Identity != want[i] {
			t.Fatalf("ListEnabled order = %v..., want %v", rec.Identity, want)
		}
	}
}

func TestEvictOldest(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 5)
	mustEnroll(t, g, emb("older"))
	mustEnroll(t, g, emb("newer"))

	// re-enrolling does not make a record younger
	mustEnroll(t, g, emb("older", 0, 1, 0, 0))

	n, err := g.EvictOldest(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("EvictOldest(1) = %d, want 1", n)
	}
	recs, _ := g.ListEnabled(ctx)
	if len(recs) != 1 || recs[0].Identity != "newer" {
		t.Errorf("remaining = %+v, want [newer]", recs)
	}

	if n, err := g.EvictOldest(ctx, 5); err != nil || n != 0 {
		t.Errorf("EvictOldest above population = %d, %v", n, err)
	}
	if _, err := g.EvictOldest(ctx, -1); err == nil {
		t.Error("expected error for negative target")
	}
}

func TestEvictOldest_TieBreaksByID(t *testing.T) {
	ctx := context.Background()
	s := config.DefaultMatcherSettings()
	s.Dimension = 4
	m, _ := config.NewMatcher(s)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := gallery.New(memory.New(), m, gallery.WithClock(func() time.Time { return fixed }))
	defer g.Close()

	mustEnroll(t, g, emb("x"))
	mustEnroll(t, g, emb("y"))
	mustEnroll(t, g, emb("z"))

	if _, err := g.EvictOldest(ctx, 1); err != nil {
		t.Fatal(err)
	}
	recs, _ := g.ListEnabled(ctx)
	if len(recs) != 1 || recs[0].Identity != "z" {
		t.Errorf("remaining = %+v, want [z]", recs)
	}
}

func TestEnrollBatch(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 3)
	existing := mustEnroll(t, g, emb("a"))

	ids, err := g.EnrollBatch(ctx, []gallery.Enrollment{
		{Embedding: emb("b"), Remarks: "from import"},
		{Embedding: emb("a", 0, 1, 0, 0)},
		{Embedding: emb("c")},
	})
	if err != nil {
		t.Fatalf("EnrollBatch error: %v", err)
	}
	if len(ids) != 3 || ids[1] != existing || ids[0] == ids[2] {
		t.Errorf("ids = %v", ids)
	}
	if b, _ := g.Get(ctx, "b"); b.Remarks != "from import" || b.ID != ids[0] {
		t.Errorf("b = %+v", b)
	}
	if a, _ := g.Get(ctx, "a"); a.Version != 2 {
		t.Errorf("a version = %d, want 2", a.Version)
	}
	if n := remaining(t, g); n != 0 {
		t.Errorf("remaining = %d, want 0", n)
	}
}

func TestEnrollBatch_RejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 3)
	mustEnroll(t, g, emb("a"))

	_, err := g.EnrollBatch(ctx, []gallery.Enrollment{
		{Embedding: emb("b")},
		{Embedding: emb("c")},
		{Embedding: emb("d")},
	})
	var capErr *gallery.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if capErr.Requested != 3 || capErr.Enabled != 1 {
		t.Errorf("CapacityError = %+v", capErr)
	}
	if n, _ := g.Count(ctx); n != 1 {
		t.Errorf("partial batch applied: count = %d", n)
	}

	_, err = g.EnrollBatch(ctx, []gallery.Enrollment{{Embedding: emb("x")}, {Embedding: emb("x")}})
	if !errors.Is(err, gallery.ErrInvalidIdentity) {
		t.Errorf("duplicate identity in batch: got %v", err)
	}

	_, err = g.EnrollBatch(ctx, []gallery.Enrollment{{Embedding: emb("ok")}, {Embedding: emb("bad", 1, 2)}})
	if !errors.Is(err, embedding.ErrDimensionMismatch) {
		t.Errorf("invalid item: got %v", err)
	}
	if n, _ := g.Count(ctx); n != 1 {
		t.Errorf("rejected batch applied: count = %d", n)
	}
}

func receive(t *testing.T, ch <-chan []gallery.Record) []gallery.Record {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("feed closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	g, _ := newGallery(t, 5)
	mustEnroll(t, g, emb("a"))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	feed, err := g.Subscribe(subCtx)
	if err != nil {
		t.Fatal(err)
	}

	if snap := receive(t, feed); len(snap) != 1 || snap[0].Identity != "a" {
		t.Errorf("initial snapshot = %+v", snap)
	}

	mustEnroll(t, g, emb("b"))
	if snap := receive(t, feed); len(snap) != 2 || snap[0].Identity != "b" {
		t.Errorf("snapshot after enroll = %+v", snap)
	}

	// a slow reader only sees the latest complete state
	mustEnroll(t, g, emb("c"))
	if err := g.SetEnabled(ctx, "a", false); err != nil {
		t.Fatal(err)
	}
	mustEnroll(t, g, emb("d"))
	snap := receive(t, feed)
	if len(snap) != 3 || snap[0].Identity != "d" {
		t.Errorf("latest snapshot = %+v", snap)
	}
	select {
	case extra := <-feed:
		t.Errorf("unexpected stale snapshot %+v", extra)
	default:
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-feed:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed not closed after cancel")
		}
	}
}

func TestClose(t *testing.T) {
	g, _ := newGallery(t, 2)
	feed, err := g.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	receive(t, feed)

	if err := g.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-feed; ok {
		t.Error("feed should be closed")
	}
	if _, err := g.Enroll(context.Background(), emb("a")); !errors.Is(err, gallery.ErrClosed) {
		t.Errorf("Enroll after close: %v", err)
	}
	if err := g.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
