package gallery

import "context"

// Backend persists gallery records. Every method is atomic on its own; the
// Gallery serializes writers so that a capacity check and the following
// write happen as one unit.
type Backend interface {
	// Get returns the record for identity, or nil if there is none.
	Get(ctx context.Context, identity string) (*Record, error)
	// GetByID returns the record with the given surrogate id, or nil.
	GetByID(ctx context.Context, id int64) (*Record, error)
	// CountEnabled returns the number of enabled records.
	CountEnabled(ctx context.Context) (int, error)
	// ListEnabled returns enabled records, most recently created first.
	ListEnabled(ctx context.Context) ([]Record, error)
	// List returns all records ordered by id.
	List(ctx context.Context) ([]Record, error)
	// Search returns records whose normalized identity or remarks contain
	// keyword, which is already normalized by NormalizeKeyword.
	Search(ctx context.Context, keyword string) ([]Record, error)
	// Insert stores a new record and returns its assigned id.
	// It fails with ErrDuplicateIdentity if the identity exists.
	Insert(ctx context.Context, rec Record) (int64, error)
	// Update replaces the stored record with the same identity if its
	// version still equals expectedVersion, otherwise ErrVersionConflict.
	Update(ctx context.Context, rec Record, expectedVersion int64) error
	// WriteBatch applies all inserts and updates or none of them and returns
	// the ids assigned to the inserts, in order.
	WriteBatch(ctx context.Context, batch Batch) ([]int64, error)
	// Delete removes the record for identity and reports whether it existed.
	Delete(ctx context.Context, identity string) (bool, error)
	// DeleteIDs removes records by id and returns how many were removed.
	DeleteIDs(ctx context.Context, ids []int64) (int, error)
	Close() error
}

// Batch is a set of writes applied atomically by Backend.WriteBatch.
type Batch struct {
	Inserts []Record
	Updates []VersionedUpdate
}

// VersionedUpdate is a compare-and-swap replacement of one record.
type VersionedUpdate struct {
	Record          Record
	ExpectedVersion int64
}
