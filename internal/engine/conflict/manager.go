package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dl-alexandre/mirrorsync/internal/engine/events"
	"github.com/dl-alexandre/mirrorsync/internal/engine/reconcile"
	"github.com/dl-alexandre/mirrorsync/internal/localfs"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/store"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	// StrategyKeepLocal keeps the local copy and schedules it for upload.
	StrategyKeepLocal Strategy = "keep-local"
	// StrategyKeepRemote renames the local copy aside as a backup and
	// schedules the remote copy for download.
	StrategyKeepRemote Strategy = "keep-remote"
	// StrategyNewerWins collapses to keep-local or keep-remote by comparing
	// modification timestamps. The local copy wins ties.
	StrategyNewerWins Strategy = "newer-wins"
	// StrategyPrompt defers the decision; the conflict stays open until a
	// concrete strategy is applied.
	StrategyPrompt Strategy = "prompt"
)

// ParseStrategy validates a strategy name from config or the CLI.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyKeepLocal, StrategyKeepRemote, StrategyNewerWins, StrategyPrompt:
		return Strategy(s), nil
	}
	return "", utils.NewAppError(utils.NewSyncError(utils.ErrCodeInvalidArgument,
		fmt.Sprintf("unknown conflict strategy %q", s)).Build())
}

// Resolution describes what applying a strategy did. The follow-up transfer
// runs in the next pass, driven by the state the resolution left behind.
type Resolution struct {
	Conflict        store.Conflict
	Applied         Strategy
	FollowUp        reconcile.ActionType
	BackupPath      string
	AlreadyResolved bool
}

// Manager records divergent edits and applies resolution strategies. A
// resolved conflict never reopens; fresh divergence on the same path gets a
// new record.
type Manager struct {
	accountID string
	db        *store.DB
	fs        localfs.Adapter
	bus       *events.Bus
	logger    logging.Logger
	now       func() time.Time
}

// NewManager creates a conflict manager for one account.
func NewManager(accountID string, db *store.DB, fs localfs.Adapter, bus *events.Bus, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Manager{
		accountID: accountID,
		db:        db,
		fs:        fs,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// Record registers a detected conflict. An open conflict already covering the
// path is returned as-is so repeated passes do not pile up duplicates.
func (m *Manager) Record(ctx context.Context, item reconcile.WorkItem) (*store.Conflict, error) {
	existing, err := m.db.GetUnresolvedConflictByPath(ctx, m.accountID, item.Path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	conflict := store.Conflict{
		ID:           uuid.New().String(),
		AccountID:    m.accountID,
		RelativePath: item.Path,
		Detected:     m.now().UTC(),
	}
	if item.Local != nil {
		conflict.LocalModified = item.Local.LastWriteUtc
		conflict.LocalSize = item.Local.Size
	}
	if item.Remote != nil {
		conflict.RemoteModified = item.Remote.ModifiedAt
		conflict.RemoteSize = item.Remote.Size
	}

	if err := m.db.UpsertConflict(ctx, conflict); err != nil {
		return nil, err
	}
	m.bus.Publish(events.ConflictDetected{ConflictID: conflict.ID, Path: conflict.RelativePath})
	m.logger.Warn("conflict detected",
		logging.F("path", conflict.RelativePath),
		logging.F("conflict_id", conflict.ID),
	)
	return &conflict, nil
}

// Resolve applies a strategy to an open conflict. Re-resolving is a no-op that
// reports the existing outcome; prompt is not applicable here because it names
// the absence of a decision.
func (m *Manager) Resolve(ctx context.Context, conflictID string, strategy Strategy) (*Resolution, error) {
	if strategy == StrategyPrompt {
		return nil, utils.NewAppError(utils.NewSyncError(utils.ErrCodeInvalidArgument,
			"resolving requires a concrete strategy, not prompt").Build())
	}
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return nil, err
	}

	conflict, err := m.db.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict == nil {
		return nil, utils.NewAppError(utils.NewSyncError(utils.ErrCodeNotFound,
			fmt.Sprintf("conflict %s not found", conflictID)).Build())
	}
	if conflict.Resolved {
		return &Resolution{
			Conflict:        *conflict,
			Applied:         Strategy(conflict.Strategy),
			AlreadyResolved: true,
		}, nil
	}

	applied := strategy
	if applied == StrategyNewerWins {
		if conflict.RemoteModified.After(conflict.LocalModified) {
			applied = StrategyKeepRemote
		} else {
			applied = StrategyKeepLocal
		}
	}

	resolution := &Resolution{Conflict: *conflict, Applied: applied}
	switch applied {
	case StrategyKeepLocal:
		resolution.FollowUp = reconcile.ActionUpload
		err = m.keepLocal(ctx, conflict)
	case StrategyKeepRemote:
		resolution.FollowUp = reconcile.ActionDownload
		resolution.BackupPath, err = m.keepRemote(ctx, conflict)
	}
	if err != nil {
		return nil, err
	}

	if err := m.db.ResolveConflict(ctx, conflict.ID, string(applied)); err != nil {
		return nil, err
	}
	resolution.Conflict.Strategy = string(applied)
	resolution.Conflict.Resolved = true

	m.logger.Info("conflict resolved",
		logging.F("path", conflict.RelativePath),
		logging.F("conflict_id", conflict.ID),
		logging.F("strategy", string(applied)),
	)
	return resolution, nil
}

// keepLocal marks the local copy for upload so it overwrites the remote edit
// on the next pass.
func (m *Manager) keepLocal(ctx context.Context, conflict *store.Conflict) error {
	local, err := m.db.GetLocalFileByPath(ctx, m.accountID, conflict.RelativePath)
	if err != nil {
		return err
	}
	if local != nil {
		return m.db.SetLocalFileState(ctx, m.accountID, conflict.RelativePath, store.StatePendingUpload)
	}
	return m.db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID:    m.accountID,
		RelativePath: conflict.RelativePath,
		Size:         conflict.LocalSize,
		LastWriteUtc: conflict.LocalModified,
		State:        store.StatePendingUpload,
	})
}

// keepRemote moves the local copy aside as a timestamped backup, marks the
// backup for upload, and resets the original path so the next pass downloads
// the remote copy.
func (m *Manager) keepRemote(ctx context.Context, conflict *store.Conflict) (string, error) {
	backupPath := ""

	info, err := m.fs.GetFileInfo(conflict.RelativePath)
	if err != nil {
		return "", err
	}
	if info != nil && !info.IsDir {
		suffix := "-conflict-" + m.now().UTC().Format("20060102-150405")
		backupPath, err = m.fs.RenameAside(conflict.RelativePath, suffix)
		if err != nil {
			return "", err
		}
		backupInfo, err := m.fs.GetFileInfo(backupPath)
		if err != nil {
			return "", err
		}
		if backupInfo != nil {
			if err := m.db.UpsertLocalFile(ctx, store.LocalFile{
				AccountID:    m.accountID,
				RelativePath: backupPath,
				Size:         backupInfo.Size,
				LastWriteUtc: backupInfo.LastWriteUtc,
				State:        store.StatePendingUpload,
			}); err != nil {
				return "", err
			}
		}
	}

	local, err := m.db.GetLocalFileByPath(ctx, m.accountID, conflict.RelativePath)
	if err != nil {
		return "", err
	}
	if local != nil {
		if err := m.db.SetLocalFileState(ctx, m.accountID, conflict.RelativePath, store.StatePendingDownload); err != nil {
			return "", err
		}
	}
	return backupPath, nil
}
