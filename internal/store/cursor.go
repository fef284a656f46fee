package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// GetCursor returns the stored delta cursor for the account, or nil when the
// account has never completed an enumeration.
func (d *DB) GetCursor(ctx context.Context, accountID string) (*DeltaCursor, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT account_id, token, last_synced FROM delta_cursors WHERE account_id = ?
	`, accountID)

	var cursor DeltaCursor
	var lastSynced int64
	err := row.Scan(&cursor.AccountID, &cursor.Token, &lastSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	cursor.LastSynced = time.Unix(lastSynced, 0).UTC()
	return &cursor, nil
}

// SaveCursor upserts the account's cursor. Single-row semantics per account.
func (d *DB) SaveCursor(ctx context.Context, cursor DeltaCursor) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO delta_cursors (account_id, token, last_synced)
		VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			token=excluded.token,
			last_synced=excluded.last_synced
	`, cursor.AccountID, cursor.Token, cursor.LastSynced.UTC().Unix())
	return storeErr(err)
}

// DeleteCursor drops the account's cursor, forcing the next ingestion to run
// a full enumeration.
func (d *DB) DeleteCursor(ctx context.Context, accountID string) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM delta_cursors WHERE account_id = ?
	`, accountID)
	return storeErr(err)
}
