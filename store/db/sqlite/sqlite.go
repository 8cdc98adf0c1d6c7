package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	perrors "github.com/pkg/errors"
	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/store"
)

// ============================================================================
// SQLITE SUPPORT (Default - single operator)
// ============================================================================
// Documents live in one table keyed by document name. SQLite is the default
// driver because the monitor runs as a single process with low write volume.
// ============================================================================

const schema = `CREATE TABLE IF NOT EXISTS document (
	key TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL,
	updated_ts BIGINT NOT NULL
)`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at profile.DSN and ensures the schema exists.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, perrors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, perrors.New("dsn required")
	}

	// WAL and a busy timeout keep the scheduler and API from tripping over each other.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, perrors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(2 * time.Hour)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, perrors.Wrap(err, "failed to create document table")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Load(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM document WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load document %s: %w", key, err)
	}
	return []byte(value), nil
}

func (d *DB) Save(ctx context.Context, key string, data []byte) error {
	stmt := `INSERT INTO document (key, value, updated_ts) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_ts = excluded.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, key, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save document %s: %w", key, err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}
