// Package mariadb stores the gallery in MariaDB (or MySQL). Vectors are kept
// as little-endian float32 blobs.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const schema = `
	CREATE TABLE IF NOT EXISTS gallery_records (
		id          BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		identity    VARCHAR(255) COLLATE utf8mb4_bin NOT NULL,
		vals        LONGBLOB NOT NULL,
		dimension   INT NOT NULL,
		quality     DOUBLE NULL,
		remarks     TEXT NOT NULL,
		attachment  LONGBLOB NULL,
		enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		version     BIGINT NOT NULL DEFAULT 1,
		created_at  DATETIME(6) NOT NULL,
		updated_at  DATETIME(6) NOT NULL,
		UNIQUE KEY uq_gallery_identity (identity),
		KEY idx_gallery_enabled_created (enabled, created_at, id)
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci
`

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. The DSN is adjusted so that
// DATETIME columns scan into UTC time.Time values and UPDATE reports matched
// rather than changed rows.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// EnsureSchema creates the gallery table if it does not exist.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create gallery_records: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Open connects to MariaDB, creates the schema and returns a gallery backend
// that owns the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}
