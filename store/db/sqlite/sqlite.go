package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/wsu2059q/qvqchat/internal/profile"
	"github.com/wsu2059q/qvqchat/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at profile.DSN. A DSN of ":memory:"
// opens an in-memory database, used by tests.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent scope handling.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure pragmas")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS memory_record (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL UNIQUE,
	owner_id TEXT NOT NULL,
	scope_id TEXT NOT NULL,
	content TEXT NOT NULL,
	created_ts INTEGER NOT NULL,
	expires_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_memory_record_owner_scope ON memory_record (owner_id, scope_id);

CREATE TABLE IF NOT EXISTS conversation_state (
	owner_id TEXT NOT NULL,
	scope_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_ts INTEGER NOT NULL,
	PRIMARY KEY (owner_id, scope_id)
);
`

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}
	return nil
}
