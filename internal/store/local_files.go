package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const localFileColumns = `account_id, relative_path, item_id, content_hash, size, last_write, sync_state`

// UpsertLocalFile inserts or replaces the record for one path.
func (d *DB) UpsertLocalFile(ctx context.Context, file LocalFile) error {
	if file.State == "" {
		file.State = StateUnknown
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO local_files (`+localFileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, relative_path) DO UPDATE SET
			item_id=excluded.item_id,
			content_hash=excluded.content_hash,
			size=excluded.size,
			last_write=excluded.last_write,
			sync_state=excluded.sync_state
	`, file.AccountID, file.RelativePath, file.ItemID, file.ContentHash,
		file.Size, file.LastWriteUtc.UTC().Unix(), string(file.State))
	return storeErr(err)
}

// SetLocalFileState transitions the sync state of one path.
func (d *DB) SetLocalFileState(ctx context.Context, accountID, relPath string, state SyncState) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE local_files SET sync_state = ? WHERE account_id = ? AND relative_path = ?
	`, string(state), accountID, relPath)
	return storeErr(err)
}

// GetLocalFileByPath returns the record for a path, or nil.
func (d *DB) GetLocalFileByPath(ctx context.Context, accountID, relPath string) (*LocalFile, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+localFileColumns+` FROM local_files
		WHERE account_id = ? AND relative_path = ?
	`, accountID, relPath)
	file, err := scanLocalFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// ListLocalFiles returns every tracked local record for the account.
func (d *DB) ListLocalFiles(ctx context.Context, accountID string) (files []LocalFile, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+localFileColumns+` FROM local_files WHERE account_id = ?
		ORDER BY relative_path
	`, accountID)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = storeErr(closeErr)
		}
	}()

	for rows.Next() {
		file, err := scanLocalFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return files, nil
}

// ListLocalFilesPage returns one path-ordered page of local records starting
// strictly after afterPath.
func (d *DB) ListLocalFilesPage(ctx context.Context, accountID, afterPath string, limit int) (files []LocalFile, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+localFileColumns+` FROM local_files
		WHERE account_id = ? AND relative_path > ?
		ORDER BY relative_path LIMIT ?
	`, accountID, afterPath, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = storeErr(closeErr)
		}
	}()

	for rows.Next() {
		file, err := scanLocalFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return files, nil
}

// ListPendingUploads returns a bounded batch of files awaiting upload.
func (d *DB) ListPendingUploads(ctx context.Context, accountID string, limit int) (files []LocalFile, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+localFileColumns+` FROM local_files
		WHERE account_id = ? AND sync_state = ?
		ORDER BY relative_path LIMIT ?
	`, accountID, string(StatePendingUpload), limit)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = storeErr(closeErr)
		}
	}()

	for rows.Next() {
		file, err := scanLocalFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return files, nil
}

// CountPendingUploads counts files awaiting upload.
func (d *DB) CountPendingUploads(ctx context.Context, accountID string) (int, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM local_files WHERE account_id = ? AND sync_state = ?
	`, accountID, string(StatePendingUpload))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

func scanLocalFile(scanner interface {
	Scan(dest ...interface{}) error
}) (LocalFile, error) {
	var file LocalFile
	var lastWrite int64
	var state string
	var itemID, hash sql.NullString
	err := scanner.Scan(&file.AccountID, &file.RelativePath, &itemID, &hash,
		&file.Size, &lastWrite, &state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LocalFile{}, err
		}
		return LocalFile{}, storeErr(err)
	}
	file.ItemID = itemID.String
	file.ContentHash = hash.String
	file.LastWriteUtc = time.Unix(lastWrite, 0).UTC()
	file.State = SyncState(state)
	return file, nil
}
