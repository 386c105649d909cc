package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-gallery/internal/gallery"
)

const recordColumns = `id, identity, vals, dimension, quality, remarks, attachment,
	enabled, version, created_at, updated_at`

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements gallery.Backend on PostgreSQL.
type Store struct {
	pool *Pool
}

// New wraps an already migrated pool. The store owns the pool from then on.
func New(pool *Pool) *Store {
	return &Store{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (gallery.Record, error) {
	var (
		rec     gallery.Record
		vec     pgvector.Vector
		quality sql.NullFloat64
	)
	err := row.Scan(&rec.ID, &rec.Identity, &vec, &rec.Dimension, &quality, &rec.Remarks,
		&rec.Attachment, &rec.Enabled, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return gallery.Record{}, err
	}
	rec.Values = vec.Slice()
	if quality.Valid {
		q := quality.Float64
		rec.Quality = &q
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]gallery.Record, error) {
	defer rows.Close()
	var out []gallery.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func nullQuality(q *float64) sql.NullFloat64 {
	if q == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *q, Valid: true}
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Get returns the record for identity, or nil.
func (s *Store) Get(ctx context.Context, identity string) (*gallery.Record, error) {
	return getOne(ctx, s.pool.db, "identity = $1", identity)
}

// GetByID returns the record with the given id, or nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*gallery.Record, error) {
	return getOne(ctx, s.pool.db, "id = $1", id)
}

func getOne(ctx context.Context, q querier, where string, arg any) (*gallery.Record, error) {
	row := q.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM gallery_records WHERE "+where, arg)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// CountEnabled returns the number of enabled records.
func (s *Store) CountEnabled(ctx context.Context) (int, error) {
	var n int
	err := s.pool.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM gallery_records WHERE enabled").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count enabled records: %w", err)
	}
	return n, nil
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]gallery.Record, error) {
	rows, err := s.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return scanRecords(rows)
}

// ListEnabled returns enabled records, newest first.
func (s *Store) ListEnabled(ctx context.Context) ([]gallery.Record, error) {
	return s.list(ctx, "SELECT "+recordColumns+` FROM gallery_records
		WHERE enabled ORDER BY created_at DESC, id DESC`)
}

// List returns all records ordered by id.
func (s *Store) List(ctx context.Context) ([]gallery.Record, error) {
	return s.list(ctx, "SELECT "+recordColumns+" FROM gallery_records ORDER BY id")
}

// escapeLike escapes LIKE wildcards using the default backslash escape.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Search matches an already normalized keyword against identity and remarks
// normalized the same way: unaccented, lowercased, hyphens as spaces.
func (s *Store) Search(ctx context.Context, keyword string) ([]gallery.Record, error) {
	return s.list(ctx, "SELECT "+recordColumns+` FROM gallery_records
		WHERE LOWER(REPLACE(unaccent(identity), '-', ' ')) LIKE '%' || $1 || '%'
		   OR LOWER(REPLACE(unaccent(remarks), '-', ' ')) LIKE '%' || $1 || '%'
		ORDER BY id`, escapeLike(keyword))
}

func insert(ctx context.Context, q querier, rec gallery.Record) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO gallery_records (identity, vals, dimension, quality, remarks, attachment,
		                             enabled, version, created_at, updated_at)
		VALUES ($1, $2::vector, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`,
		rec.Identity,
		pgvector.NewVector(rec.Values),
		rec.Dimension,
		nullQuality(rec.Quality),
		rec.Remarks,
		nullBytes(rec.Attachment),
		rec.Enabled,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %q", gallery.ErrDuplicateIdentity, rec.Identity)
	}
	if err != nil {
		return 0, fmt.Errorf("insert record %q: %w", rec.Identity, err)
	}
	return id, nil
}

func update(ctx context.Context, q querier, rec gallery.Record, expectedVersion int64) error {
	res, err := q.ExecContext(ctx, `
		UPDATE gallery_records
		SET vals = $2::vector, dimension = $3, quality = $4, remarks = $5, attachment = $6,
		    enabled = $7, version = $8, created_at = $9, updated_at = $10
		WHERE identity = $1 AND version = $11
	`,
		rec.Identity,
		pgvector.NewVector(rec.Values),
		rec.Dimension,
		nullQuality(rec.Quality),
		rec.Remarks,
		nullBytes(rec.Attachment),
		rec.Enabled,
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update record %q: %w", rec.Identity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record %q: %w", rec.Identity, err)
	}
	if n == 1 {
		return nil
	}

	var current int64
	err = q.QueryRowContext(ctx, "SELECT version FROM gallery_records WHERE identity = $1", rec.Identity).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", gallery.ErrIdentityNotFound, rec.Identity)
	}
	if err != nil {
		return fmt.Errorf("update record %q: %w", rec.Identity, err)
	}
	return fmt.Errorf("%w: %q is at version %d, expected %d",
		gallery.ErrVersionConflict, rec.Identity, current, expectedVersion)
}

// Insert stores a new record.
func (s *Store) Insert(ctx context.Context, rec gallery.Record) (int64, error) {
	return insert(ctx, s.pool.db, rec)
}

// Update replaces a record if its stored version equals expectedVersion.
func (s *Store) Update(ctx context.Context, rec gallery.Record, expectedVersion int64) error {
	return update(ctx, s.pool.db, rec, expectedVersion)
}

// WriteBatch applies the batch in one transaction.
func (s *Store) WriteBatch(ctx context.Context, batch gallery.Batch) ([]int64, error) {
	ids := make([]int64, len(batch.Inserts))
	if len(batch.Inserts) == 0 && len(batch.Updates) == 0 {
		return ids, nil
	}

	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, rec := range batch.Inserts {
		if ids[i], err = insert(ctx, tx, rec); err != nil {
			return nil, err
		}
	}
	for _, u := range batch.Updates {
		if err := update(ctx, tx, u.Record, u.ExpectedVersion); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return ids, nil
}

// Delete removes the record for identity.
func (s *Store) Delete(ctx context.Context, identity string) (bool, error) {
	res, err := s.pool.db.ExecContext(ctx, "DELETE FROM gallery_records WHERE identity = $1", identity)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return n > 0, nil
}

// DeleteIDs removes records by id.
func (s *Store) DeleteIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.pool.db.ExecContext(ctx, "DELETE FROM gallery_records WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

var _ gallery.Backend = (*Store)(nil)
