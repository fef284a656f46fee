package store

import (
	"context"
	"database/sql"
	"time"
)

// AppendTransferLog records one transfer attempt. Entries are append-only;
// new attempts always create new rows.
func (d *DB) AppendTransferLog(ctx context.Context, entry TransferLogEntry) (int64, error) {
	var completed interface{}
	if !entry.Completed.IsZero() {
		completed = entry.Completed.UTC().Unix()
	}
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO transfer_log (account_id, transfer_type, item_id, started, completed, status, bytes_transferred, error_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.AccountID, string(entry.Type), entry.ItemID, entry.Started.UTC().Unix(),
		completed, string(entry.Status), entry.BytesTransferred, entry.ErrorText)
	if err != nil {
		return 0, storeErr(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, storeErr(err)
	}
	return id, nil
}

// ListTransferLog returns the most recent transfer attempts, newest first.
func (d *DB) ListTransferLog(ctx context.Context, accountID string, limit int) (entries []TransferLogEntry, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, account_id, transfer_type, item_id, started, completed, status, bytes_transferred, error_text
		FROM transfer_log WHERE account_id = ?
		ORDER BY id DESC LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = storeErr(closeErr)
		}
	}()

	for rows.Next() {
		var entry TransferLogEntry
		var transferType, status string
		var started int64
		var completed sql.NullInt64
		var errorText sql.NullString
		if err := rows.Scan(&entry.ID, &entry.AccountID, &transferType, &entry.ItemID,
			&started, &completed, &status, &entry.BytesTransferred, &errorText); err != nil {
			return nil, storeErr(err)
		}
		entry.Type = TransferType(transferType)
		entry.Status = TransferStatus(status)
		entry.Started = time.Unix(started, 0).UTC()
		if completed.Valid {
			entry.Completed = time.Unix(completed.Int64, 0).UTC()
		}
		entry.ErrorText = errorText.String
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}
