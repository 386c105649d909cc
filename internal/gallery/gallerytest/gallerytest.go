// Package gallerytest holds the behavior every gallery.Backend must share.
// Backend packages call Run from their own tests.
package gallerytest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// Epoch is the creation time of the first record built by NewRecord helpers.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// NewRecord builds an enabled version-1 record created at Epoch plus offset.
func NewRecord(identity string, offset time.Duration, values ...float32) gallery.Record {
	if len(values) == 0 {
		values = []float32{1, 0, 0, 0}
	}
	at := Epoch.Add(offset)
	return gallery.Record{
		Identity:  identity,
		Values:    values,
		Dimension: len(values),
		Enabled:   true,
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Run executes the contract against fresh backends from newBackend.
func Run(t *testing.T, newBackend func(t *testing.T) gallery.Backend) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b gallery.Backend)
	}{
		{"RoundTrip", testRoundTrip},
		{"DuplicateIdentity", testDuplicateIdentity},
		{"IDsNeverReused", testIDsNeverReused},
		{"UpdateCompareAndSwap", testUpdateCompareAndSwap},
		{"EnabledListing", testEnabledListing},
		{"Search", testSearch},
		{"WriteBatch", testWriteBatch},
		{"WriteBatchAtomic", testWriteBatchAtomic},
		{"Delete", testDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { b.Close() })
			tt.fn(t, b)
		})
	}
}

func mustInsert(t *testing.T, b gallery.Backend, rec gallery.Record) int64 {
	t.Helper()
	id, err := b.Insert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Insert(%q) error: %v", rec.Identity, err)
	}
	return id
}

func mustGet(t *testing.T, b gallery.Backend, identity string) gallery.Record {
	t.Helper()
	rec, err := b.Get(context.Background(), identity)
	if err != nil {
		t.Fatalf("Get(%q) error: %v", identity, err)
	}
	if rec == nil {
		t.Fatalf("Get(%q) returned nil", identity)
	}
	return *rec
}

func identities(recs []gallery.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Identity
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func testRoundTrip(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	values := []float32{0.1, -0.25, 1.0 / 3.0, math.SmallestNonzeroFloat32}
	quality := 0.875
	rec := NewRecord("Jiří Novák", 0, values...)
	rec.Quality = &quality
	rec.Remarks = "front door camera"
	rec.Attachment = []byte{0xff, 0xd8, 0x00, 0x01}

	id := mustInsert(t, b, rec)
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	got := mustGet(t, b, "Jiří Novák")
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if len(got.Values) != len(values) {
		t.Fatalf("got %d values, want %d", len(got.Values), len(values))
	}
	for i := range values {
		if math.Float32bits(got.Values[i]) != math.Float32bits(values[i]) {
			t.Errorf("value %d = %v, want %v", i, got.Values[i], values[i])
		}
	}
	if got.Dimension != 4 {
		t.Errorf("Dimension = %d, want 4", got.Dimension)
	}
	if got.Quality == nil || *got.Quality != quality {
		t.Errorf("Quality = %v, want %v", got.Quality, quality)
	}
	if got.Remarks != rec.Remarks || string(got.Attachment) != string(rec.Attachment) {
		t.Errorf("metadata mismatch: %+v", got)
	}
	if !got.Enabled || got.Version != 1 {
		t.Errorf("Enabled/Version = %v/%d, want true/1", got.Enabled, got.Version)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, rec.CreatedAt)
	}

	byID, err := b.GetByID(ctx, id)
	if err != nil || byID == nil || byID.Identity != "Jiří Novák" {
		t.Errorf("GetByID(%d) = %+v, %v", id, byID, err)
	}

	noQuality := NewRecord("no-quality", time.Second)
	mustInsert(t, b, noQuality)
	if got := mustGet(t, b, "no-quality"); got.Quality != nil {
		t.Errorf("expected nil quality, got %v", *got.Quality)
	}

	missing, err := b.Get(ctx, "missing")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %+v, %v; want nil, nil", missing, err)
	}
	missingID, err := b.GetByID(ctx, id+1000)
	if err != nil || missingID != nil {
		t.Errorf("GetByID(missing) = %+v, %v; want nil, nil", missingID, err)
	}
}

func testDuplicateIdentity(t *testing.T, b gallery.Backend) {
	mustInsert(t, b, NewRecord("alice", 0))
	_, err := b.Insert(context.Background(), NewRecord("alice", time.Second))
	if !errors.Is(err, gallery.ErrDuplicateIdentity) {
		t.Errorf("expected ErrDuplicateIdentity, got %v", err)
	}
}

func testIDsNeverReused(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	first := mustInsert(t, b, NewRecord("a", 0))
	second := mustInsert(t, b, NewRecord("b", time.Second))
	if second <= first {
		t.Fatalf("ids not increasing: %d then %d", first, second)
	}
	if _, err := b.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	third := mustInsert(t, b, NewRecord("c", 2*time.Second))
	if third <= second {
		t.Errorf("id %d reused or decreased after deleting %d", third, second)
	}
}

func testUpdateCompareAndSwap(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	id := mustInsert(t, b, NewRecord("alice", 0))
	rec := mustGet(t, b, "alice")

	next := rec.WithVector([]float32{0, 1, 0, 0}, nil, Epoch.Add(time.Hour))
	next.Remarks = "updated"
	if err := b.Update(ctx, next, rec.Version); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got := mustGet(t, b, "alice")
	if got.ID != id || got.Version != 2 || got.Values[1] != 1 || got.Remarks != "updated" {
		t.Errorf("unexpected record after update: %+v", got)
	}
	if !got.CreatedAt.Equal(Epoch) || !got.UpdatedAt.Equal(Epoch.Add(time.Hour)) {
		t.Errorf("timestamps after update = %v/%v", got.CreatedAt, got.UpdatedAt)
	}

	stale := rec.WithRemarks("stale", Epoch.Add(2*time.Hour))
	if err := b.Update(ctx, stale, rec.Version); !errors.Is(err, gallery.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
	if got := mustGet(t, b, "alice"); got.Remarks != "updated" || got.Version != 2 {
		t.Errorf("conflicting update was applied: %+v", got)
	}

	ghost := NewRecord("ghost", 0)
	if err := b.Update(ctx, ghost, 1); !errors.Is(err, gallery.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func testEnabledListing(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	mustInsert(t, b, NewRecord("old", 0))
	mustInsert(t, b, NewRecord("new", 2*time.Hour))
	mustInsert(t, b, NewRecord("middle", time.Hour))
	disabled := NewRecord("disabled", 3*time.Hour)
	disabled.Enabled = false
	mustInsert(t, b, disabled)

	n, err := b.CountEnabled(ctx)
	if err != nil || n != 3 {
		t.Errorf("CountEnabled() = %d, %v; want 3", n, err)
	}

	enabled, err := b.ListEnabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := identities(enabled), []string{"new", "middle", "old"}; !equalStrings(got, want) {
		t.Errorf("ListEnabled() = %v, want %v", got, want)
	}

	all, err := b.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := identities(all), []string{"old", "new", "middle", "disabled"}; !equalStrings(got, want) {
		t.Errorf("List() = %v, want %v", got, want)
	}
}

func testSearch(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	mustInsert(t, b, NewRecord("Jan Novák", 0))
	withRemarks := NewRecord("visitor-42", time.Second)
	withRemarks.Remarks = "Delivery Driver, Thursdays"
	mustInsert(t, b, withRemarks)
	mustInsert(t, b, NewRecord("Petra", 2*time.Second))

	tests := []struct {
		keyword string
		want    []string
	}{
		{gallery.NormalizeKeyword("jan-novak"), []string{"Jan Novák"}},
		{gallery.NormalizeKeyword("NOVÁK"), []string{"Jan Novák"}},
		{gallery.NormalizeKeyword("driver"), []string{"visitor-42"}},
		{gallery.NormalizeKeyword("visitor 42"), []string{"visitor-42"}},
		{gallery.NormalizeKeyword("a"), []string{"Jan Novák", "visitor-42", "Petra"}},
		{gallery.NormalizeKeyword("nobody"), nil},
	}
	for _, tt := range tests {
		got, err := b.Search(ctx, tt.keyword)
		if err != nil {
			t.Fatalf("Search(%q) error: %v", tt.keyword, err)
		}
		if !equalStrings(identities(got), tt.want) {
			t.Errorf("Search(%q) = %v, want %v", tt.keyword, identities(got), tt.want)
		}
	}
}

func testWriteBatch(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	mustInsert(t, b, NewRecord("existing", 0))
	existing := mustGet(t, b, "existing")

	ids, err := b.WriteBatch(ctx, gallery.Batch{
		Inserts: []gallery.Record{NewRecord("x", time.Second), NewRecord("y", 2*time.Second)},
		Updates: []gallery.VersionedUpdate{{
			Record:          existing.WithRemarks("touched", Epoch.Add(time.Hour)),
			ExpectedVersion: existing.Version,
		}},
	})
	if err != nil {
		t.Fatalf("WriteBatch error: %v", err)
	}
	if len(ids) != 2 || ids[0] <= existing.ID || ids[1] <= ids[0] {
		t.Errorf("unexpected ids %v", ids)
	}
	if got := mustGet(t, b, "y"); got.ID != ids[1] {
		t.Errorf("y has id %d, want %d", got.ID, ids[1])
	}
	if got := mustGet(t, b, "existing"); got.Remarks != "touched" || got.Version != 2 {
		t.Errorf("update not applied: %+v", got)
	}

	empty, err := b.WriteBatch(ctx, gallery.Batch{})
	if err != nil || len(empty) != 0 {
		t.Errorf("empty batch = %v, %v", empty, err)
	}
}

func testWriteBatchAtomic(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	mustInsert(t, b, NewRecord("existing", 0))
	existing := mustGet(t, b, "existing")

	_, err := b.WriteBatch(ctx, gallery.Batch{
		Inserts: []gallery.Record{NewRecord("new", time.Second)},
		Updates: []gallery.VersionedUpdate{{
			Record:          existing.WithRemarks("touched", Epoch.Add(time.Hour)),
			ExpectedVersion: existing.Version + 5,
		}},
	})
	if !errors.Is(err, gallery.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if rec, err := b.Get(ctx, "new"); err != nil || rec != nil {
		t.Errorf("insert from failed batch is visible: %+v, %v", rec, err)
	}

	_, err = b.WriteBatch(ctx, gallery.Batch{
		Inserts: []gallery.Record{NewRecord("other", time.Second), NewRecord("existing", 2*time.Second)},
	})
	if !errors.Is(err, gallery.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if rec, err := b.Get(ctx, "other"); err != nil || rec != nil {
		t.Errorf("insert from failed batch is visible: %+v, %v", rec, err)
	}
}

func testDelete(t *testing.T, b gallery.Backend) {
	ctx := context.Background()
	a := mustInsert(t, b, NewRecord("a", 0))
	bID := mustInsert(t, b, NewRecord("b", time.Second))
	mustInsert(t, b, NewRecord("c", 2*time.Second))

	deleted, err := b.Delete(ctx, "c")
	if err != nil || !deleted {
		t.Errorf("Delete(c) = %v, %v; want true", deleted, err)
	}
	deleted, err = b.Delete(ctx, "c")
	if err != nil || deleted {
		t.Errorf("second Delete(c) = %v, %v; want false", deleted, err)
	}

	n, err := b.DeleteIDs(ctx, []int64{a, bID, bID + 1000})
	if err != nil || n != 2 {
		t.Errorf("DeleteIDs() = %d, %v; want 2", n, err)
	}
	if count, _ := b.CountEnabled(ctx); count != 0 {
		t.Errorf("CountEnabled() after deletes = %d, want 0", count)
	}
	if n, err := b.DeleteIDs(ctx, nil); err != nil || n != 0 {
		t.Errorf("DeleteIDs(nil) = %d, %v", n, err)
	}
}
