package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	perrors "github.com/pkg/errors"

	"github.com/hrygo/adpilot/internal/profile"
	"github.com/hrygo/adpilot/store"
)

// ============================================================================
// POSTGRESQL SUPPORT (Shared deployments)
// ============================================================================
// Use PostgreSQL when the API server and scheduled runs are split across
// processes. Documents are stored as JSONB so operators can inspect them.
// ============================================================================

const schema = `CREATE TABLE IF NOT EXISTS document (
	key TEXT NOT NULL PRIMARY KEY,
	value JSONB NOT NULL,
	updated_ts BIGINT NOT NULL
)`

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, perrors.New("profile is nil")
	}

	// Open the PostgreSQL connection
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return nil, perrors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	// Verify connection is working before returning
	if err := db.Ping(); err != nil {
		slog.Error("failed to ping database", "error", err)
		return nil, perrors.Wrap(err, "failed to ping database")
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, perrors.Wrap(err, "failed to create document table")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := d.db.QueryRowContext(ctx, `SELECT value FROM document WHERE key = `+placeholder(1), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load document %s: %w", key, err)
	}
	return value, nil
}

func (d *DB) Save(ctx context.Context, key string, data []byte) error {
	stmt := `INSERT INTO document (key, value, updated_ts)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_ts = EXCLUDED.updated_ts`
	if _, err := d.db.ExecContext(ctx, stmt, key, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save document %s: %w", key, err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// placeholder returns the nth positional parameter for PostgreSQL.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
