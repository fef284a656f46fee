package reconcile

import (
	"sort"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/store"
)

// ActionType classifies what a path needs.
type ActionType string

const (
	ActionDownload     ActionType = "download"
	ActionUpload       ActionType = "upload"
	ActionDeleteLocal  ActionType = "delete_local"
	ActionDeleteRemote ActionType = "delete_remote"
	ActionConflict     ActionType = "conflict"
	ActionSkip         ActionType = "skip"
)

// WorkItem is one classified path handed to the transfer scheduler or the
// conflict manager.
type WorkItem struct {
	Type   ActionType
	Path   string
	Remote *store.RemoteItem
	Local  *store.LocalFile
}

// Snapshot is the input to classification: the store's view of both sides
// plus the baseline timestamp from the delta cursor.
type Snapshot struct {
	Remote     []store.RemoteItem
	Local      []store.LocalFile
	LastSynced time.Time
}

// Classify compares remote and local state per path and emits an ordered work
// list: downloads first, then uploads, then deletes, so the local mirror is
// brought current before anything is removed. Pure function; identical inputs
// give identical output.
func Classify(snapshot Snapshot) []WorkItem {
	remoteByPath := make(map[string]*store.RemoteItem, len(snapshot.Remote))
	for i := range snapshot.Remote {
		item := &snapshot.Remote[i]
		remoteByPath[item.RelativePath] = item
	}
	localByPath := make(map[string]*store.LocalFile, len(snapshot.Local))
	for i := range snapshot.Local {
		file := &snapshot.Local[i]
		localByPath[file.RelativePath] = file
	}

	paths := make([]string, 0, len(remoteByPath)+len(localByPath))
	seen := make(map[string]struct{}, len(remoteByPath)+len(localByPath))
	for p := range remoteByPath {
		paths = append(paths, p)
		seen[p] = struct{}{}
	}
	for p := range localByPath {
		if _, ok := seen[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var downloads, uploads, deletes, conflicts []WorkItem
	for _, path := range paths {
		remote := remoteByPath[path]
		local := localByPath[path]

		action := ClassifyOne(remote, local, snapshot.LastSynced)
		item := WorkItem{Type: action, Path: path, Remote: remote, Local: local}

		switch action {
		case ActionDownload:
			downloads = append(downloads, item)
		case ActionUpload:
			uploads = append(uploads, item)
		case ActionDeleteLocal, ActionDeleteRemote:
			deletes = append(deletes, item)
		case ActionConflict:
			conflicts = append(conflicts, item)
		}
	}

	ordered := make([]WorkItem, 0, len(downloads)+len(uploads)+len(deletes)+len(conflicts))
	ordered = append(ordered, downloads...)
	ordered = append(ordered, uploads...)
	ordered = append(ordered, deletes...)
	ordered = append(ordered, conflicts...)
	return ordered
}

// ClassifyOne decides the action for a single path. Changed-since-baseline
// uses strictly-greater-than on both sides; equal timestamps count as
// unchanged so clock-resolution ties never produce false conflicts.
func ClassifyOne(remote *store.RemoteItem, local *store.LocalFile, lastSynced time.Time) ActionType {
	if remote == nil && local == nil {
		return ActionSkip
	}

	// Folders materialize as a side effect of file transfers.
	if remote != nil && remote.Folder {
		return ActionSkip
	}

	localChanged := local != nil && localModified(local, lastSynced)
	remoteChanged := remote != nil && !remote.Deleted && remote.ModifiedAt.After(lastSynced)

	switch {
	case remote == nil:
		// Nothing tracked remotely for this path.
		if local.State == store.StatePendingUpload {
			return ActionUpload
		}
		return ActionSkip

	case remote.Deleted:
		if local == nil || local.State == store.StateDeleted {
			return ActionSkip
		}
		if localChanged {
			// Remote deletion versus unsynced local edits is a divergence,
			// not a silent local delete.
			return ActionConflict
		}
		return ActionDeleteLocal

	case local == nil:
		return ActionDownload

	case local.State == store.StateDeleted:
		if remoteChanged {
			return ActionConflict
		}
		return ActionDeleteRemote

	case localChanged && remoteChanged:
		return ActionConflict

	case remoteChanged:
		return ActionDownload

	case localChanged:
		return ActionUpload

	case local.State != store.StateDownloaded && local.State != store.StateUploaded:
		// Never fully synced (pending, error, unknown): bring it current.
		return ActionDownload
	}

	return ActionSkip
}

func localModified(local *store.LocalFile, lastSynced time.Time) bool {
	if local.State == store.StatePendingUpload {
		return true
	}
	return local.LastWriteUtc.After(lastSynced)
}
