package gallery

import (
	"cmp"
	"slices"
	"time"

	"github.com/kozaktomas/face-gallery/internal/embedding"
)

// Record is the persisted form of an enrolled embedding.
type Record struct {
	ID         int64
	Identity   string
	Values     []float32
	Dimension  int
	Quality    *float64 // nil when the extractor gave no estimate
	Remarks    string
	Attachment []byte // opaque, e.g. a JPEG thumbnail
	Enabled    bool
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Values = slices.Clone(r.Values)
	r.Attachment = slices.Clone(r.Attachment)
	if r.Quality != nil {
		q := *r.Quality
		r.Quality = &q
	}
	return r
}

// Embedding converts the record into the comparator's input type.
func (r Record) Embedding() embedding.Embedding {
	e := embedding.Embedding{
		Identity:  r.Identity,
		Values:    slices.Clone(r.Values),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Quality != nil {
		e = e.WithQuality(*r.Quality)
	}
	return e
}

// next returns a copy of r prepared for one mutation.
func (r Record) next(now time.Time) Record {
	n := r.Clone()
	n.Version = r.Version + 1
	n.UpdatedAt = now
	return n
}

// WithVector returns a copy of r carrying a new vector and quality.
func (r Record) WithVector(values []float32, quality *float64, now time.Time) Record {
	n := r.next(now)
	n.Values = slices.Clone(values)
	n.Dimension = len(values)
	n.Quality = nil
	if quality != nil {
		q := *quality
		n.Quality = &q
	}
	return n
}

// WithEnabled returns a copy of r with the enabled flag set.
func (r Record) WithEnabled(enabled bool, now time.Time) Record {
	n := r.next(now)
	n.Enabled = enabled
	return n
}

// WithRemarks returns a copy of r with new remarks.
func (r Record) WithRemarks(remarks string, now time.Time) Record {
	n := r.next(now)
	n.Remarks = remarks
	return n
}

// SortNewestFirst orders records by CreatedAt descending, newer IDs first on ties.
func SortNewestFirst(recs []Record) {
	slices.SortFunc(recs, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
}

// SortOldestFirst orders records by CreatedAt ascending, lower IDs first on ties.
func SortOldestFirst(recs []Record) {
	slices.SortFunc(recs, func(a, b Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
