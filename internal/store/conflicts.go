package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const conflictColumns = `id, account_id, relative_path, local_modified, remote_modified, local_size, remote_size, detected, strategy, resolved`

// UpsertConflict inserts or updates a conflict record. Resolved conflicts are
// never reopened; a genuine re-divergence gets a fresh ID from the caller.
func (d *DB) UpsertConflict(ctx context.Context, conflict Conflict) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO conflicts (`+conflictColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			local_modified=excluded.local_modified,
			remote_modified=excluded.remote_modified,
			local_size=excluded.local_size,
			remote_size=excluded.remote_size,
			strategy=excluded.strategy,
			resolved=excluded.resolved
	`, conflict.ID, conflict.AccountID, conflict.RelativePath,
		conflict.LocalModified.UTC().Unix(), conflict.RemoteModified.UTC().Unix(),
		conflict.LocalSize, conflict.RemoteSize, conflict.Detected.UTC().Unix(),
		conflict.Strategy, boolToInt(conflict.Resolved))
	return storeErr(err)
}

// GetConflict returns one conflict by ID, or nil.
func (d *DB) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+conflictColumns+` FROM conflicts WHERE id = ?
	`, id)
	conflict, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

// GetUnresolvedConflictByPath returns the open conflict for a path, or nil.
// Used to avoid piling up duplicate records while a conflict awaits a
// resolution decision.
func (d *DB) GetUnresolvedConflictByPath(ctx context.Context, accountID, relPath string) (*Conflict, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+conflictColumns+` FROM conflicts
		WHERE account_id = ? AND relative_path = ? AND resolved = 0 LIMIT 1
	`, accountID, relPath)
	conflict, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conflict, nil
}

// ListUnresolvedConflicts returns open conflicts, oldest first.
func (d *DB) ListUnresolvedConflicts(ctx context.Context, accountID string) (conflicts []Conflict, err error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+conflictColumns+` FROM conflicts
		WHERE account_id = ? AND resolved = 0
		ORDER BY detected
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
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return conflicts, nil
}

// ResolveConflict marks a conflict resolved with the applied strategy.
// Resolving an already-resolved conflict is a no-op.
func (d *DB) ResolveConflict(ctx context.Context, id, strategy string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE conflicts SET strategy = ?, resolved = 1
		WHERE id = ? AND resolved = 0
	`, strategy, id)
	return storeErr(err)
}

func scanConflict(scanner interface {
	Scan(dest ...interface{}) error
}) (Conflict, error) {
	var conflict Conflict
	var localModified, remoteModified, detected int64
	var strategy sql.NullString
	var resolved int
	err := scanner.Scan(&conflict.ID, &conflict.AccountID, &conflict.RelativePath,
		&localModified, &remoteModified, &conflict.LocalSize, &conflict.RemoteSize,
		&detected, &strategy, &resolved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conflict{}, err
		}
		return Conflict{}, storeErr(err)
	}
	conflict.LocalModified = time.Unix(localModified, 0).UTC()
	conflict.RemoteModified = time.Unix(remoteModified, 0).UTC()
	conflict.Detected = time.Unix(detected, 0).UTC()
	conflict.Strategy = strategy.String
	conflict.Resolved = resolved != 0
	return conflict, nil
}
