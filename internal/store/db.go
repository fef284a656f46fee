package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/mirrorsync/internal/utils"
	_ "modernc.org/sqlite"
)

// DB is the durable state store: remote items, local files, delta cursors,
// transfer log, and conflicts. All access goes through its methods; it is the
// single source of truth for sync state.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	instance := &DB{db: db}
	if err := instance.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return instance, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schemaSQL)
	return storeErr(err)
}

// storeErr classifies database failures as StoreUnavailable so callers can
// abort the pass without advancing the cursor. Row-absence is passed through.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeStoreUnavailable, err.Error()).Build(), err)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS delta_cursors (
	account_id TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	last_synced INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS remote_items (
	account_id TEXT NOT NULL,
	item_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	etag TEXT,
	ctag TEXT,
	size INTEGER NOT NULL DEFAULT 0,
	modified INTEGER NOT NULL DEFAULT 0,
	is_folder INTEGER NOT NULL DEFAULT 0,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (account_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_remote_items_path ON remote_items(account_id, relative_path);

CREATE TABLE IF NOT EXISTS local_files (
	account_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	item_id TEXT,
	content_hash TEXT,
	size INTEGER NOT NULL DEFAULT 0,
	last_write INTEGER NOT NULL DEFAULT 0,
	sync_state TEXT NOT NULL DEFAULT 'unknown',
	PRIMARY KEY (account_id, relative_path)
);

CREATE INDEX IF NOT EXISTS idx_local_files_state ON local_files(account_id, sync_state);

CREATE TABLE IF NOT EXISTS transfer_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	transfer_type TEXT NOT NULL,
	item_id TEXT NOT NULL,
	started INTEGER NOT NULL,
	completed INTEGER,
	status TEXT NOT NULL,
	bytes_transferred INTEGER NOT NULL DEFAULT 0,
	error_text TEXT
);

CREATE TABLE IF NOT EXISTS conflicts (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	local_modified INTEGER NOT NULL,
	remote_modified INTEGER NOT NULL,
	local_size INTEGER NOT NULL,
	remote_size INTEGER NOT NULL,
	detected INTEGER NOT NULL,
	strategy TEXT,
	resolved INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_conflicts_unresolved ON conflicts(account_id, resolved);
`
