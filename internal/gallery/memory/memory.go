// Package memory provides an in-process gallery backend. Records live only as
// long as the Store; use it for tests and ephemeral galleries.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

// Store implements gallery.Backend with maps guarded by an RWMutex.
// Records are copied on the way in and out.
type Store struct {
	mu         sync.RWMutex
	byIdentity map[string]*gallery.Record
	byID       map[int64]string
	nextID     int64

	// Error injection
	GetError    error
	ListError   error
	CountError  error
	InsertError error
	UpdateError error
	DeleteError error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byIdentity: make(map[string]*gallery.Record),
		byID:       make(map[int64]string),
	}
}

// Get returns the record for identity, or nil.
func (s *Store) Get(ctx context.Context, identity string) (*gallery.Record, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byIdentity[identity]
	if !ok {
		return nil, nil
	}
	c := rec.Clone()
	return &c, nil
}

// GetByID returns the record with the given id, or nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*gallery.Record, error) {
	if s.GetError != nil {
		return nil, s.GetError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	c := s.byIdentity[identity].Clone()
	return &c, nil
}

// CountEnabled returns the number of enabled records.
func (s *Store) CountEnabled(ctx context.Context) (int, error) {
	if s.CountError != nil {
		return 0, s.CountError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.byIdentity {
		if rec.Enabled {
			n++
		}
	}
	return n, nil
}

func (s *Store) collect(keep func(*gallery.Record) bool) []gallery.Record {
	out := make([]gallery.Record, 0, len(s.byIdentity))
	for _, rec := range s.byIdentity {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func sortByID(recs []gallery.Record) {
	slices.SortFunc(recs, func(a, b gallery.Record) int { return cmp.Compare(a.ID, b.ID) })
}

// ListEnabled returns enabled records, newest first.
func (s *Store) ListEnabled(ctx context.Context) ([]gallery.Record, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	recs := s.collect(func(r *gallery.Record) bool { return r.Enabled })
	s.mu.RUnlock()
	gallery.SortNewestFirst(recs)
	return recs, nil
}

// List returns all records ordered by id.
func (s *Store) List(ctx context.Context) ([]gallery.Record, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	recs := s.collect(func(*gallery.Record) bool { return true })
	s.mu.RUnlock()
	sortByID(recs)
	return recs, nil
}

// Search returns records matching an already normalized keyword, ordered by id.
func (s *Store) Search(ctx context.Context, keyword string) ([]gallery.Record, error) {
	if s.ListError != nil {
		return nil, s.ListError
	}
	s.mu.RLock()
	recs := s.collect(func(r *gallery.Record) bool { return gallery.MatchesKeyword(*r, keyword) })
	s.mu.RUnlock()
	sortByID(recs)
	return recs, nil
}

func (s *Store) insertLocked(rec gallery.Record) int64 {
	s.nextID++
	c := rec.Clone()
	c.ID = s.nextID
	s.byIdentity[c.Identity] = &c
	s.byID[c.ID] = c.Identity
	return c.ID
}

// Insert stores a new record.
func (s *Store) Insert(ctx context.Context, rec gallery.Record) (int64, error) {
	if s.InsertError != nil {
		return 0, s.InsertError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byIdentity[rec.Identity]; exists {
		return 0, fmt.Errorf("%w: %q", gallery.ErrDuplicateIdentity, rec.Identity)
	}
	return s.insertLocked(rec), nil
}

func (s *Store) checkVersionLocked(rec gallery.Record, expected int64) error {
	current, ok := s.byIdentity[rec.Identity]
	if !ok {
		return fmt.Errorf("%w: %q", gallery.ErrIdentityNotFound, rec.Identity)
	}
	if current.Version != expected {
		return fmt.Errorf("%w: %q is at version %d, expected %d",
			gallery.ErrVersionConflict, rec.Identity, current.Version, expected)
	}
	return nil
}

func (s *Store) replaceLocked(rec gallery.Record) {
	c := rec.Clone()
	c.ID = s.byIdentity[rec.Identity].ID
	s.byIdentity[c.Identity] = &c
}

// Update replaces a record if its stored version equals expectedVersion.
func (s *Store) Update(ctx context.Context, rec gallery.Record, expectedVersion int64) error {
	if s.UpdateError != nil {
		return s.UpdateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkVersionLocked(rec, expectedVersion); err != nil {
		return err
	}
	s.replaceLocked(rec)
	return nil
}

// WriteBatch validates every write before applying any of them.
func (s *Store) WriteBatch(ctx context.Context, batch gallery.Batch) ([]int64, error) {
	if s.InsertError != nil {
		return nil, s.InsertError
	}
	if s.UpdateError != nil {
		return nil, s.UpdateError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(batch.Inserts))
	for _, rec := range batch.Inserts {
		if _, exists := s.byIdentity[rec.Identity]; exists {
			return nil, fmt.Errorf("%w: %q", gallery.ErrDuplicateIdentity, rec.Identity)
		}
		if _, dup := seen[rec.Identity]; dup {
			return nil, fmt.Errorf("%w: %q", gallery.ErrDuplicateIdentity, rec.Identity)
		}
		seen[rec.Identity] = struct{}{}
	}
	for _, u := range batch.Updates {
		if err := s.checkVersionLocked(u.Record, u.ExpectedVersion); err != nil {
			return nil, err
		}
	}

	ids := make([]int64, len(batch.Inserts))
	for i, rec := range batch.Inserts {
		ids[i] = s.insertLocked(rec)
	}
	for _, u := range batch.Updates {
		s.replaceLocked(u.Record)
	}
	return ids, nil
}

// Delete removes the record for identity.
func (s *Store) Delete(ctx context.Context, identity string) (bool, error) {
	if s.DeleteError != nil {
		return false, s.DeleteError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byIdentity[identity]
	if !ok {
		return false, nil
	}
	delete(s.byID, rec.ID)
	delete(s.byIdentity, identity)
	return true, nil
}

// DeleteIDs removes records by id.
func (s *Store) DeleteIDs(ctx context.Context, ids []int64) (int, error) {
	if s.DeleteError != nil {
		return 0, s.DeleteError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		identity, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byID, id)
		delete(s.byIdentity, identity)
		n++
	}
	return n, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ gallery.Backend = (*Store)(nil)
