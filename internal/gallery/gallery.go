// Package gallery maintains the capacity-bounded set of enrolled identities.
//
// Gallery owns every write to its Backend. Writers are serialized by a single
// mutex, so the enabled-count check and the insert that depends on it cannot
// interleave with another enrollment. Reads go straight to the backend and do
// not wait for writers.
package gallery

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/logger"
)

type Gallery struct {
	backend   Backend
	dimension int
	capacity  int
	log       *zap.Logger
	now       func() time.Time

	mu     sync.Mutex // serializes writers
	closed bool

	feed *feed
}

type Option func(*Gallery)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(g *Gallery) { g.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Gallery) { g.log = logger.OrNop(l) }
}

// New wraps backend with the dimension and capacity of cfg.
func New(backend Backend, cfg config.Matcher, opts ...Option) *Gallery {
	g := &Gallery{
		backend:   backend,
		dimension: cfg.Dimension(),
		capacity:  cfg.Capacity(),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.feed = newFeed(g.log)
	return g
}

// Capacity returns the maximum number of enabled records.
func (g *Gallery) Capacity() int {
	return g.capacity
}

// Dimension returns the vector length every record must have.
func (g *Gallery) Dimension() int {
	return g.dimension
}

// timestamp truncates to microseconds so that values survive SQL backends unchanged.
func (g *Gallery) timestamp() time.Time {
	return g.now().UTC().Truncate(time.Microsecond)
}

type enrollOptions struct {
	attachment    []byte
	hasAttachment bool
	remarks       string
	hasRemarks    bool
}

type EnrollOption func(*enrollOptions)

// WithAttachment stores opaque data (e.g. a thumbnail) alongside the record.
func WithAttachment(data []byte) EnrollOption {
	return func(o *enrollOptions) {
		o.attachment = slices.Clone(data)
		o.hasAttachment = true
	}
}

// WithRemarks sets free-text remarks searched by Search.
func WithRemarks(remarks string) EnrollOption {
	return func(o *enrollOptions) {
		o.remarks = remarks
		o.hasRemarks = true
	}
}

func (o enrollOptions) apply(rec *Record) {
	if o.hasAttachment {
		rec.Attachment = o.attachment
	}
	if o.hasRemarks {
		rec.Remarks = o.remarks
	}
}

// Enrollment is one item of EnrollBatch.
type Enrollment struct {
	Embedding  embedding.Embedding
	Attachment []byte
	Remarks    string
}

func (g *Gallery) validate(e embedding.Embedding) error {
	if strings.TrimSpace(e.Identity) == "" {
		return fmt.Errorf("%w: identity must not be empty", ErrInvalidIdentity)
	}
	if err := e.Validate(g.dimension); err != nil {
		return fmt.Errorf("enroll %q: %w", e.Identity, err)
	}
	return nil
}

func qualityOf(e embedding.Embedding) *float64 {
	if !e.HasQuality {
		return nil
	}
	q := e.EffectiveQuality()
	return &q
}

// Enroll stores e under its identity and returns the record id.
//
// An enabled record for the same identity is replaced in place: its version
// is incremented and capacity is not checked. A disabled record is
// re-enabled with the new vector, which grows the population and is
// therefore capacity-checked like a new identity.
func (g *Gallery) Enroll(ctx context.Context, e embedding.Embedding, opts ...EnrollOption) (int64, error) {
	if err := g.validate(e); err != nil {
		return 0, err
	}
	var o enrollOptions
	for _, opt := range opts {
		opt(&o)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}

	existing, err := g.backend.Get(ctx, e.Identity)
	if err != nil {
		return 0, fmt.Errorf("get %q: %w", e.Identity, err)
	}
	now := g.timestamp()

	if existing != nil {
		if !existing.Enabled {
			if err := g.checkCapacityLocked(ctx, 1); err != nil {
				return 0, err
			}
		}
		next := existing.WithVector(e.Values, qualityOf(e), now)
		next.Enabled = true
		o.apply(&next)
		if err := g.backend.Update(ctx, next, existing.Version); err != nil {
			return 0, fmt.Errorf("update %q: %w", e.Identity, err)
		}
		g.log.Info("re-enrolled identity",
			zap.String("identity", e.Identity),
			zap.Int64("id", existing.ID),
			zap.Int64("version", next.Version),
			zap.Bool("reenabled", !existing.Enabled))
		g.publishLocked(ctx)
		return existing.ID, nil
	}

	if err := g.checkCapacityLocked(ctx, 1); err != nil {
		return 0, err
	}
	rec := g.newRecord(e, now)
	o.apply(&rec)
	id, err := g.backend.Insert(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("insert %q: %w", e.Identity, err)
	}
	g.log.Info("enrolled identity", zap.String("identity", e.Identity), zap.Int64("id", id))
	g.publishLocked(ctx)
	return id, nil
}

func (g *Gallery) newRecord(e embedding.Embedding, now time.Time) Record {
	return Record{
		Identity:  e.Identity,
		Values:    slices.Clone(e.Values),
		Dimension: len(e.Values),
		Quality:   qualityOf(e),
		Enabled:   true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// EnrollBatch enrolls all items or none. Capacity is checked once against the
// number of identities in the batch that would grow the enabled population.
func (g *Gallery) EnrollBatch(ctx context.Context, items []Enrollment) ([]int64, error) {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := g.validate(item.Embedding); err != nil {
			return nil, err
		}
		if _, dup := seen[item.Embedding.Identity]; dup {
			return nil, fmt.Errorf("%w: %q appears more than once in batch", ErrInvalidIdentity, item.Embedding.Identity)
		}
		seen[item.Embedding.Identity] = struct{}{}
	}
	if len(items) == 0 {
		return []int64{}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}

	now := g.timestamp()
	var batch Batch
	// position of each item in the result: insert index or existing id
	insertAt := make([]int, len(items))
	ids := make([]int64, len(items))
	growth := 0

	for i, item := range items {
		e := item.Embedding
		existing, err := g.backend.Get(ctx, e.Identity)
		if err != nil {
			return nil, fmt.Errorf("get %q: %w", e.Identity, err)
		}
		if existing == nil {
			rec := g.newRecord(e, now)
			rec.Attachment = slices.Clone(item.Attachment)
			rec.Remarks = item.Remarks
			insertAt[i] = len(batch.Inserts)
			batch.Inserts = append(batch.Inserts, rec)
			growth++
			continue
		}
		if !existing.Enabled {
			growth++
		}
		next := existing.WithVector(e.Values, qualityOf(e), now)
		next.Enabled = true
		if item.Attachment != nil {
			next.Attachment = slices.Clone(item.Attachment)
		}
		if item.Remarks != "" {
			next.Remarks = item.Remarks
		}
		batch.Updates = append(batch.Updates, VersionedUpdate{Record: next, ExpectedVersion: existing.Version})
		insertAt[i] = -1
		ids[i] = existing.ID
	}

	if err := g.checkCapacityLocked(ctx, growth); err != nil {
		return nil, err
	}

	inserted, err := g.backend.WriteBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("write batch: %w", err)
	}
	for i := range items {
		if insertAt[i] >= 0 {
			ids[i] = inserted[insertAt[i]]
		}
	}

	g.log.Info("enrolled batch",
		zap.Int("items", len(items)),
		zap.Int("inserted", len(batch.Inserts)),
		zap.Int("replaced", len(batch.Updates)))
	g.publishLocked(ctx)
	return ids, nil
}

// checkCapacityLocked fails if adding n enabled records would exceed capacity.
func (g *Gallery) checkCapacityLocked(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}
	count, err := g.backend.CountEnabled(ctx)
	if err != nil {
		return fmt.Errorf("count enabled: %w", err)
	}
	if count+n > g.capacity {
		return &CapacityError{Limit: g.capacity, Enabled: count, Requested: n}
	}
	return nil
}

// Delete removes the record for identity and reports whether it existed.
func (g *Gallery) Delete(ctx context.Context, identity string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false, ErrClosed
	}

	deleted, err := g.backend.Delete(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("delete %q: %w", identity, err)
	}
	if deleted {
		g.log.Info("deleted identity", zap.String("identity", identity))
		g.publishLocked(ctx)
	}
	return deleted, nil
}

// mutateLocked loads identity, applies fn and stores the result. fn returns
// false when nothing needs to change.
func (g *Gallery) mutateLocked(ctx context.Context, identity string, fn func(Record) (Record, bool, error)) error {
	existing, err := g.backend.Get(ctx, identity)
	if err != nil {
		return fmt.Errorf("get %q: %w", identity, err)
	}
	if existing == nil {
		return fmt.Errorf("%w: %q", ErrIdentityNotFound, identity)
	}
	next, changed, err := fn(*existing)
	if err != nil || !changed {
		return err
	}
	if err := g.backend.Update(ctx, next, existing.Version); err != nil {
		return fmt.Errorf("update %q: %w", identity, err)
	}
	g.publishLocked(ctx)
	return nil
}

// SetEnabled enables or disables a record without deleting it. Enabling is
// capacity-checked; setting the current state is a no-op.
func (g *Gallery) SetEnabled(ctx context.Context, identity string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}

	return g.mutateLocked(ctx, identity, func(rec Record) (Record, bool, error) {
		if rec.Enabled == enabled {
			return rec, false, nil
		}
		if enabled {
			if err := g.checkCapacityLocked(ctx, 1); err != nil {
				return rec, false, err
			}
		}
		g.log.Info("changed identity state", zap.String("identity", identity), zap.Bool("enabled", enabled))
		return rec.WithEnabled(enabled, g.timestamp()), true, nil
	})
}

// UpdateRemarks replaces the remarks of a record.
func (g *Gallery) UpdateRemarks(ctx context.Context, identity, remarks string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}

	return g.mutateLocked(ctx, identity, func(rec Record) (Record, bool, error) {
		return rec.WithRemarks(remarks, g.timestamp()), true, nil
	})
}

// Get returns the record for identity or ErrIdentityNotFound.
func (g *Gallery) Get(ctx context.Context, identity string) (Record, error) {
	rec, err := g.backend.Get(ctx, identity)
	if err != nil {
		return Record{}, fmt.Errorf("get %q: %w", identity, err)
	}
	if rec == nil {
		return Record{}, fmt.Errorf("%w: %q", ErrIdentityNotFound, identity)
	}
	return *rec, nil
}

// GetByID returns the record with the given storage id, enabled or not.
func (g *Gallery) GetByID(ctx context.Context, id int64) (Record, error) {
	rec, err := g.backend.GetByID(ctx, id)
	if err != nil {
		return Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	if rec == nil {
		return Record{}, fmt.Errorf("%w: record %d", ErrIdentityNotFound, id)
	}
	return *rec, nil
}

// Search finds records by identity or remarks, ignoring case, diacritics and
// dashes. An empty keyword lists every record.
func (g *Gallery) Search(ctx context.Context, keyword string) ([]Record, error) {
	kw := NormalizeKeyword(keyword)
	var (
		recs []Record
		err  error
	)
	if kw == "" {
		recs, err = g.backend.List(ctx)
	} else {
		recs, err = g.backend.Search(ctx, kw)
	}
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	return recs, nil
}

// ListEnabled returns enabled records, most recently created first.
func (g *Gallery) ListEnabled(ctx context.Context) ([]Record, error) {
	recs, err := g.backend.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled: %w", err)
	}
	return recs, nil
}

// Candidates returns the enabled records as comparator input.
func (g *Gallery) Candidates(ctx context.Context) ([]embedding.Embedding, error) {
	recs, err := g.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]embedding.Embedding, len(recs))
	for i, rec := range recs {
		out[i] = rec.Embedding()
	}
	return out, nil
}

// Count returns the number of enabled records.
func (g *Gallery) Count(ctx context.Context) (int, error) {
	n, err := g.backend.CountEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("count enabled: %w", err)
	}
	return n, nil
}

// RemainingCapacity returns max(0, capacity - enabled).
func (g *Gallery) RemainingCapacity(ctx context.Context) (int, error) {
	n, err := g.Count(ctx)
	if err != nil {
		return 0, err
	}
	return max(0, g.capacity-n), nil
}

// EvictOldest deletes the oldest enabled records until at most target remain
// and returns how many were deleted.
func (g *Gallery) EvictOldest(ctx context.Context, target int) (int, error) {
	if target < 0 {
		return 0, fmt.Errorf("evict: target must not be negative, got %d", target)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, ErrClosed
	}

	recs, err := g.backend.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("list enabled: %w", err)
	}
	if len(recs) <= target {
		return 0, nil
	}

	SortOldestFirst(recs)
	victims := recs[:len(recs)-target]
	ids := make([]int64, len(victims))
	names := make([]string, len(victims))
	for i, rec := range victims {
		ids[i] = rec.ID
		names[i] = rec.Identity
	}

	n, err := g.backend.DeleteIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("evict: %w", err)
	}
	g.log.Info("evicted oldest identities", zap.Int("count", n), zap.Strings("identities", names))
	g.publishLocked(ctx)
	return n, nil
}

// Subscribe returns a feed of enabled-record snapshots. The current snapshot
// is delivered immediately, then a complete snapshot after every committed
// write. A slow reader only ever sees the latest snapshot. The channel is
// closed when ctx is done or the gallery is closed.
func (g *Gallery) Subscribe(ctx context.Context) (<-chan []Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrClosed
	}

	snapshot, err := g.backend.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled: %w", err)
	}
	sub := g.feed.add(snapshot)

	go func() {
		select {
		case <-ctx.Done():
			g.feed.remove(sub)
		case <-sub.done:
		}
	}()
	return sub.ch, nil
}

// publishLocked sends the committed state to subscribers. Must hold g.mu.
func (g *Gallery) publishLocked(ctx context.Context) {
	if g.feed.empty() {
		return
	}
	// the write is already committed; a cancelled caller must not suppress the snapshot
	snapshot, err := g.backend.ListEnabled(context.WithoutCancel(ctx))
	if err != nil {
		g.log.Warn("failed to snapshot gallery for subscribers", zap.Error(err))
		return
	}
	g.feed.publish(snapshot)
}

// Close ends all subscriptions and closes the backend.
func (g *Gallery) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.feed.closeAll()
	if err := g.backend.Close(); err != nil {
		return fmt.Errorf("closing backend: %w", err)
	}
	return nil
}
