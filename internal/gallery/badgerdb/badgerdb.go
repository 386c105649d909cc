// Package badgerdb stores the gallery in an embedded BadgerDB database.
//
// Layout:
//
//	rec/<identity>  msgpack-encoded record
//	id/<id>         identity owning the surrogate id
//	seq/record      badger sequence that hands out ids
package badgerdb

import (
	"cmp"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-gallery/internal/embedding"
	"github.com/kozaktomas/face-gallery/internal/gallery"
)

const (
	recordPrefix = "rec/"
	idPrefix     = "id/"
	sequenceKey  = "seq/record"

	// ids leased from the sequence at a time
	sequenceBandwidth = 64
)

// Options configures the badger store.
type Options struct {
	// Dir is the data directory. Required unless InMemory is set.
	Dir string

	// InMemory runs badger without disk persistence, for tests.
	InMemory bool

	// Logger receives badger warnings and errors. Nil silences badger.
	Logger *zap.Logger
}

// Store implements gallery.Backend on BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerdb: Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(zapLogger{opts.Logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening id sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

type storedRecord struct {
	ID         int64     `msgpack:"id"`
	Identity   string    `msgpack:"identity"`
	Values     []byte    `msgpack:"values"`
	Dimension  int       `msgpack:"dim"`
	Quality    *float64  `msgpack:"quality"`
	Remarks    string    `msgpack:"remarks"`
	Attachment []byte    `msgpack:"attachment"`
	Enabled    bool      `msgpack:"enabled"`
	Version    int64     `msgpack:"version"`
	CreatedAt  time.Time `msgpack:"created_at"`
	UpdatedAt  time.Time `msgpack:"updated_at"`
}

func encodeRecord(rec gallery.Record) ([]byte, error) {
	data, err := msgpack.Marshal(storedRecord{
		ID:         rec.ID,
		Identity:   rec.Identity,
		Values:     embedding.EncodeValues(rec.Values),
		Dimension:  rec.Dimension,
		Quality:    rec.Quality,
		Remarks:    rec.Remarks,
		Attachment: rec.Attachment,
		Enabled:    rec.Enabled,
		Version:    rec.Version,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record %q: %w", rec.Identity, err)
	}
	return data, nil
}

func decodeRecord(data []byte) (gallery.Record, error) {
	var s storedRecord
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return gallery.Record{}, fmt.Errorf("decode record: %w", err)
	}
	values, err := embedding.DecodeValues(s.Values)
	if err != nil {
		return gallery.Record{}, fmt.Errorf("decode record %q: %w", s.Identity, err)
	}
	return gallery.Record{
		ID:         s.ID,
		Identity:   s.Identity,
		Values:     values,
		Dimension:  s.Dimension,
		Quality:    s.Quality,
		Remarks:    s.Remarks,
		Attachment: s.Attachment,
		Enabled:    s.Enabled,
		Version:    s.Version,
		CreatedAt:  s.CreatedAt.UTC(),
		UpdatedAt:  s.UpdatedAt.UTC(),
	}, nil
}

func recordKey(identity string) []byte {
	return []byte(recordPrefix + identity)
}

func idKey(id int64) []byte {
	k := make([]byte, len(idPrefix)+8)
	copy(k, idPrefix)
	binary.BigEndian.PutUint64(k[len(idPrefix):], uint64(id))
	return k
}

func getRecord(txn *badger.Txn, identity string) (*gallery.Record, error) {
	item, err := txn.Get(recordKey(identity))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func identityForID(txn *badger.Txn, id int64) (string, bool, error) {
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// Get returns the record for identity, or nil.
func (s *Store) Get(_ context.Context, identity string) (*gallery.Record, error) {
	var rec *gallery.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, identity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetByID returns the record with the given id, or nil.
func (s *Store) GetByID(_ context.Context, id int64) (*gallery.Record, error) {
	var rec *gallery.Record
	err := s.db.View(func(txn *badger.Txn) error {
		identity, ok, err := identityForID(txn, id)
		if err != nil || !ok {
			return err
		}
		rec, err = getRecord(txn, identity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get record by id: %w", err)
	}
	return rec, nil
}

// scan decodes every record, in key order.
func (s *Store) scan(keep func(gallery.Record) bool) ([]gallery.Record, error) {
	var out []gallery.Record
	prefix := []byte(recordPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(data)
			if err != nil {
				return err
			}
			if keep(rec) {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return out, nil
}

func sortRecordsByID(recs []gallery.Record) {
	slices.SortFunc(recs, func(a, b gallery.Record) int { return cmp.Compare(a.ID, b.ID) })
}

// CountEnabled returns the number of enabled records.
func (s *Store) CountEnabled(_ context.Context) (int, error) {
	recs, err := s.scan(func(r gallery.Record) bool { return r.Enabled })
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// ListEnabled returns enabled records, newest first.
func (s *Store) ListEnabled(_ context.Context) ([]gallery.Record, error) {
	recs, err := s.scan(func(r gallery.Record) bool { return r.Enabled })
	if err != nil {
		return nil, err
	}
	gallery.SortNewestFirst(recs)
	return recs, nil
}

// List returns all records ordered by id.
func (s *Store) List(_ context.Context) ([]gallery.Record, error) {
	recs, err := s.scan(func(gallery.Record) bool { return true })
	if err != nil {
		return nil, err
	}
	sortRecordsByID(recs)
	return recs, nil
}

// Search returns records matching an already normalized keyword, ordered by id.
func (s *Store) Search(_ context.Context, keyword string) ([]gallery.Record, error) {
	recs, err := s.scan(func(r gallery.Record) bool { return gallery.MatchesKeyword(r, keyword) })
	if err != nil {
		return nil, err
	}
	sortRecordsByID(recs)
	return recs, nil
}

func (s *Store) nextID() (int64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return int64(n) + 1, nil
}

func (s *Store) insertTxn(txn *badger.Txn, rec gallery.Record) (int64, error) {
	existing, err := getRecord(txn, rec.Identity)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, fmt.Errorf("%w: %q", gallery.ErrDuplicateIdentity, rec.Identity)
	}
	id, err := s.nextID()
	if err != nil {
		return 0, err
	}
	rec.ID = id
	data, err := encodeRecord(rec)
	if err != nil {
		return 0, err
	}
	if err := txn.Set(recordKey(rec.Identity), data); err != nil {
		return 0, err
	}
	if err := txn.Set(idKey(id), []byte(rec.Identity)); err != nil {
		return 0, err
	}
	return id, nil
}

func updateTxn(txn *badger.Txn, rec gallery.Record, expectedVersion int64) error {
	current, err := getRecord(txn, rec.Identity)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("%w: %q", gallery.ErrIdentityNotFound, rec.Identity)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: %q is at version %d, expected %d",
			gallery.ErrVersionConflict, rec.Identity, current.Version, expectedVersion)
	}
	rec.ID = current.ID
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return txn.Set(recordKey(rec.Identity), data)
}

// Insert stores a new record.
func (s *Store) Insert(_ context.Context, rec gallery.Record) (int64, error) {
	var id int64
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		id, err = s.insertTxn(txn, rec)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

// Update replaces a record if its stored version equals expectedVersion.
func (s *Store) Update(_ context.Context, rec gallery.Record, expectedVersion int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return updateTxn(txn, rec, expectedVersion)
	})
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// WriteBatch applies the batch in a single transaction.
func (s *Store) WriteBatch(_ context.Context, batch gallery.Batch) ([]int64, error) {
	ids := make([]int64, len(batch.Inserts))
	err := s.db.Update(func(txn *badger.Txn) error {
		for i, rec := range batch.Inserts {
			id, err := s.insertTxn(txn, rec)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		for _, u := range batch.Updates {
			if err := updateTxn(txn, u.Record, u.ExpectedVersion); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write batch: %w", err)
	}
	return ids, nil
}

func deleteTxn(txn *badger.Txn, identity string) (bool, error) {
	rec, err := getRecord(txn, identity)
	if err != nil || rec == nil {
		return false, err
	}
	if err := txn.Delete(recordKey(identity)); err != nil {
		return false, err
	}
	if err := txn.Delete(idKey(rec.ID)); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the record for identity.
func (s *Store) Delete(_ context.Context, identity string) (bool, error) {
	var deleted bool
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		deleted, err = deleteTxn(txn, identity)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return deleted, nil
}

// DeleteIDs removes records by id.
func (s *Store) DeleteIDs(_ context.Context, ids []int64) (int, error) {
	n := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		n = 0
		for _, id := range ids {
			identity, ok, err := identityForID(txn, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			deleted, err := deleteTxn(txn, identity)
			if err != nil {
				return err
			}
			if deleted {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return n, nil
}

// Close releases the id sequence and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return fmt.Errorf("releasing id sequence: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing badger: %w", err)
	}
	return nil
}

var _ gallery.Backend = (*Store)(nil)

// zapLogger routes badger warnings and errors to zap and drops the rest.
type zapLogger struct {
	l *zap.Logger
}

func (z zapLogger) Errorf(f string, v ...any) {
	if z.l != nil {
		z.l.Sugar().Errorf("badger: "+f, v...)
	}
}

func (z zapLogger) Warningf(f string, v ...any) {
	if z.l != nil {
		z.l.Sugar().Warnf("badger: "+f, v...)
	}
}

func (zapLogger) Infof(string, ...any)  {}
func (zapLogger) Debugf(string, ...any) {}
