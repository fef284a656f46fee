package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const remoteItemColumns = `account_id, item_id, relative_path, etag, ctag, size, modified, is_folder, is_deleted`

// ApplyRemoteItems upserts one delta page's items in a single transaction.
// All-or-nothing: a failure leaves remote state untouched so the cursor saved
// afterwards never runs ahead of the applied items. Re-applying the same page
// is idempotent.
func (d *DB) ApplyRemoteItems(ctx context.Context, items []RemoteItem) (err error) {
	if len(items) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO remote_items (`+remoteItemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, item_id) DO UPDATE SET
			relative_path=excluded.relative_path,
			etag=excluded.etag,
			ctag=excluded.ctag,
			size=excluded.size,
			modified=excluded.modified,
			is_folder=excluded.is_folder,
			is_deleted=excluded.is_deleted
	`)
	if err != nil {
		_ = tx.Rollback()
		return storeErr(err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil && err == nil {
			err = storeErr(closeErr)
		}
	}()

	for _, item := range items {
		_, err := stmt.ExecContext(ctx, item.AccountID, item.ItemID, item.RelativePath,
			item.ETag, item.CTag, item.Size, item.ModifiedAt.UTC().Unix(),
			boolToInt(item.Folder), boolToInt(item.Deleted))
		if err != nil {
			_ = tx.Rollback()
			return storeErr(err)
		}
	}

	return storeErr(tx.Commit())
}

// GetRemoteItemByPath returns the non-deleted item at a path, or nil.
func (d *DB) GetRemoteItemByPath(ctx context.Context, accountID, relPath string) (*RemoteItem, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+remoteItemColumns+` FROM remote_items
		WHERE account_id = ? AND relative_path = ? AND is_deleted = 0 LIMIT 1
	`, accountID, relPath)
	item, err := scanRemoteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetRemoteItem returns an item by its remote ID, or nil.
func (d *DB) GetRemoteItem(ctx context.Context, accountID, itemID string) (*RemoteItem, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+remoteItemColumns+` FROM remote_items
		WHERE account_id = ? AND item_id = ?
	`, accountID, itemID)
	item, err := scanRemoteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListRemoteItems returns every tracked item for the account, deleted ones
// included; reconciliation decides what deletion means locally.
func (d *DB) ListRemoteItems(ctx context.Context, accountID string) (items []RemoteItem, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+remoteItemColumns+` FROM remote_items WHERE account_id = ?
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
		item, err := scanRemoteItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

// ListRemoteItemsPage returns one path-ordered page of tracked items starting
// strictly after afterPath, deleted ones included. Keyset pagination keeps
// later pages stable while earlier rows change state mid-pass.
func (d *DB) ListRemoteItemsPage(ctx context.Context, accountID, afterPath string, limit int) (items []RemoteItem, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+remoteItemColumns+` FROM remote_items
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
		item, err := scanRemoteItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

// pendingDownloadsWhere selects remote files whose local record is absent or
// not yet in downloaded state.
const pendingDownloadsWhere = `
	FROM remote_items r
	LEFT JOIN local_files l ON l.account_id = r.account_id AND l.relative_path = r.relative_path
	WHERE r.account_id = ? AND r.is_deleted = 0 AND r.is_folder = 0
	  AND (l.relative_path IS NULL OR l.sync_state NOT IN ('downloaded', 'uploaded'))
`

// ListPendingDownloads returns a bounded page of remote items needing download.
func (d *DB) ListPendingDownloads(ctx context.Context, accountID string, limit, offset int) (items []RemoteItem, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.account_id, r.item_id, r.relative_path, r.etag, r.ctag, r.size, r.modified, r.is_folder, r.is_deleted
	`+pendingDownloadsWhere+`
		ORDER BY r.relative_path LIMIT ? OFFSET ?
	`, accountID, limit, offset)
	if err != nil {
		return nil, storeErr(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = storeErr(closeErr)
		}
	}()

	for rows.Next() {
		item, err := scanRemoteItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

// CountPendingDownloads counts remote items needing download.
func (d *DB) CountPendingDownloads(ctx context.Context, accountID string) (int, error) {
	row := d.db.QueryRowContext(ctx, `SELECT COUNT(*)`+pendingDownloadsWhere, accountID)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

func scanRemoteItem(scanner interface {
	Scan(dest ...interface{}) error
}) (RemoteItem, error) {
	var item RemoteItem
	var modified int64
	var isFolder, isDeleted int
	var etag, ctag sql.NullString
	err := scanner.Scan(&item.AccountID, &item.ItemID, &item.RelativePath, &etag, &ctag,
		&item.Size, &modified, &isFolder, &isDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RemoteItem{}, err
		}
		return RemoteItem{}, storeErr(err)
	}
	item.ETag = etag.String
	item.CTag = ctag.String
	item.ModifiedAt = time.Unix(modified, 0).UTC()
	item.Folder = isFolder != 0
	item.Deleted = isDeleted != 0
	return item, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
