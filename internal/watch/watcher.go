// Package watch marks locally edited files as pending uploads in near real
// time, so the next sync pass picks them up without a full enumeration.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dl-alexandre/mirrorsync/internal/exclude"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/store"
)

// debounceWindow coalesces rapid write bursts on the same path into one
// state transition.
const debounceWindow = 500 * time.Millisecond

// Watcher follows filesystem events under the mirror root and records
// changed paths in the state store. It never transfers anything itself.
type Watcher struct {
	accountID string
	root      string
	db        *store.DB
	matcher   *exclude.Matcher
	logger    logging.Logger

	fsw     *fsnotify.Watcher
	pending map[string]time.Time
}

// New creates a watcher over the mirror root.
func New(accountID, root string, db *store.DB, matcher *exclude.Matcher, logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		accountID: accountID,
		root:      abs,
		db:        db,
		matcher:   matcher,
		logger:    logger,
		fsw:       fsw,
		pending:   make(map[string]time.Time),
	}, nil
}

// Run watches until the context is cancelled. Directories are registered
// recursively; new directories are picked up as they appear.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.logger.Info("watching for local changes", logging.F("root", w.root))

	ticker := time.NewTicker(debounceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", logging.F("error", err.Error()))

		case now := <-ticker.C:
			w.flush(ctx, now)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." {
		return
	}

	info, statErr := os.Lstat(event.Name)
	isDir := statErr == nil && info.IsDir()

	if w.matcher != nil && w.matcher.IsExcluded(rel, isDir) {
		return
	}

	if isDir && event.Op&fsnotify.Create != 0 {
		if err := w.addRecursive(event.Name); err != nil {
			w.logger.Warn("failed to watch new directory",
				logging.F("path", rel),
				logging.F("error", err.Error()),
			)
		}
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if statErr == nil && info.Mode().IsRegular() {
			w.pending[rel] = time.Now()
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, rel)
		if err := w.markDeleted(ctx, rel); err != nil {
			w.logger.Warn("failed to record local deletion",
				logging.F("path", rel),
				logging.F("error", err.Error()),
			)
		}
	}
}

// flush commits debounced writes older than the window.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	for rel, seen := range w.pending {
		if now.Sub(seen) < debounceWindow {
			continue
		}
		delete(w.pending, rel)

		info, err := os.Lstat(filepath.Join(w.root, filepath.FromSlash(rel)))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		rec, err := w.db.GetLocalFileByPath(ctx, w.accountID, rel)
		if err != nil {
			w.logger.Warn("failed to read local record",
				logging.F("path", rel),
				logging.F("error", err.Error()),
			)
			continue
		}

		file := store.LocalFile{
			AccountID:    w.accountID,
			RelativePath: rel,
			Size:         info.Size(),
			LastWriteUtc: info.ModTime().UTC(),
			State:        store.StatePendingUpload,
		}
		if rec != nil {
			file.ItemID = rec.ItemID
			file.ContentHash = rec.ContentHash
		}
		if err := w.db.UpsertLocalFile(ctx, file); err != nil {
			w.logger.Warn("failed to mark file pending upload",
				logging.F("path", rel),
				logging.F("error", err.Error()),
			)
			continue
		}
		w.logger.Debug("local change recorded", logging.F("path", rel))
	}
}

// markDeleted flags a synced file as deleted; untracked paths are ignored.
func (w *Watcher) markDeleted(ctx context.Context, rel string) error {
	rec, err := w.db.GetLocalFileByPath(ctx, w.accountID, rel)
	if err != nil {
		return err
	}
	if rec == nil || (rec.State != store.StateDownloaded && rec.State != store.StateUploaded) {
		return nil
	}
	return w.db.SetLocalFileState(ctx, w.accountID, rel, store.StateDeleted)
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(current string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, current)
		if relErr == nil && rel != "." {
			rel = path.Clean(filepath.ToSlash(rel))
			if w.matcher != nil && w.matcher.IsExcluded(rel, true) {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(current)
	})
}
