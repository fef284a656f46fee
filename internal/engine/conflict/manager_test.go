package conflict

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/engine/reconcile"
	"github.com/dl-alexandre/mirrorsync/internal/localfs"
	"github.com/dl-alexandre/mirrorsync/internal/store"
)

func newManager(t *testing.T) (*Manager, *store.DB, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	root := filepath.Join(dir, "mirror")
	fs, err := localfs.NewOSAdapter(root)
	if err != nil {
		t.Fatalf("NewOSAdapter: %v", err)
	}
	return NewManager("acct", db, fs, nil, nil), db, root
}

func divergedItem(path string) reconcile.WorkItem {
	return reconcile.WorkItem{
		Type: reconcile.ActionConflict,
		Path: path,
		Local: &store.LocalFile{
			AccountID: "acct", RelativePath: path,
			LastWriteUtc: time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC),
			Size:         100, State: store.StatePendingUpload,
		},
		Remote: &store.RemoteItem{
			AccountID: "acct", ItemID: "i1", RelativePath: path,
			ModifiedAt: time.Date(2026, 8, 10, 11, 0, 0, 0, time.UTC),
			Size:       120,
		},
	}
}

func TestRecordDeduplicatesOpenConflicts(t *testing.T) {
	m, db, _ := newManager(t)
	ctx := context.Background()

	first, err := m.Record(ctx, divergedItem("doc.txt"))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	second, err := m.Record(ctx, divergedItem("doc.txt"))
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("repeated detection created a new record: %s vs %s", first.ID, second.ID)
	}

	open, err := db.ListUnresolvedConflicts(ctx, "acct")
	if err != nil {
		t.Fatalf("ListUnresolvedConflicts: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected one open conflict, got %d", len(open))
	}
}

func TestResolveKeepLocal(t *testing.T) {
	m, db, _ := newManager(t)
	ctx := context.Background()

	item := divergedItem("doc.txt")
	if err := db.UpsertLocalFile(ctx, *item.Local); err != nil {
		t.Fatal(err)
	}
	recorded, err := m.Record(ctx, item)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	resolution, err := m.Resolve(ctx, recorded.ID, StrategyKeepLocal)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.Applied != StrategyKeepLocal || resolution.FollowUp != reconcile.ActionUpload {
		t.Fatalf("unexpected resolution: %+v", resolution)
	}

	rec, _ := db.GetLocalFileByPath(ctx, "acct", "doc.txt")
	if rec.State != store.StatePendingUpload {
		t.Errorf("expected pending upload, got %s", rec.State)
	}

	got, _ := db.GetConflict(ctx, recorded.ID)
	if !got.Resolved || got.Strategy != string(StrategyKeepLocal) {
		t.Fatalf("conflict not marked resolved: %+v", got)
	}
}

func TestResolveKeepRemoteRenamesAside(t *testing.T) {
	m, db, root := newManager(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "doc.txt"), []byte("local edit"), 0600); err != nil {
		t.Fatal(err)
	}
	item := divergedItem("doc.txt")
	if err := db.UpsertLocalFile(ctx, *item.Local); err != nil {
		t.Fatal(err)
	}
	recorded, err := m.Record(ctx, item)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	resolution, err := m.Resolve(ctx, recorded.ID, StrategyKeepRemote)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.FollowUp != reconcile.ActionDownload {
		t.Fatalf("expected download follow-up, got %+v", resolution)
	}
	if resolution.BackupPath == "" || !strings.Contains(resolution.BackupPath, "-conflict-") {
		t.Fatalf("expected timestamped backup path, got %q", resolution.BackupPath)
	}

	// The edited bytes survive at the backup path.
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(resolution.BackupPath)))
	if err != nil {
		t.Fatalf("backup not on disk: %v", err)
	}
	if string(data) != "local edit" {
		t.Errorf("backup content mismatch: %q", data)
	}
	if _, err := os.Stat(filepath.Join(root, "doc.txt")); !os.IsNotExist(err) {
		t.Error("original path should be vacated for the download")
	}

	backup, _ := db.GetLocalFileByPath(ctx, "acct", resolution.BackupPath)
	if backup == nil || backup.State != store.StatePendingUpload {
		t.Errorf("backup should be scheduled for upload: %+v", backup)
	}
	original, _ := db.GetLocalFileByPath(ctx, "acct", "doc.txt")
	if original.State != store.StatePendingDownload {
		t.Errorf("original should await download, got %s", original.State)
	}
}

func TestResolveNewerWins(t *testing.T) {
	m, db, _ := newManager(t)
	ctx := context.Background()

	// Remote modified after local in divergedItem.
	item := divergedItem("doc.txt")
	if err := db.UpsertLocalFile(ctx, *item.Local); err != nil {
		t.Fatal(err)
	}
	recorded, err := m.Record(ctx, item)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	resolution, err := m.Resolve(ctx, recorded.ID, StrategyNewerWins)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.Applied != StrategyKeepRemote {
		t.Fatalf("newer remote should win, applied %s", resolution.Applied)
	}
}

func TestResolveNewerWinsTieFavorsLocal(t *testing.T) {
	m, db, _ := newManager(t)
	ctx := context.Background()

	item := divergedItem("doc.txt")
	item.Remote.ModifiedAt = item.Local.LastWriteUtc
	if err := db.UpsertLocalFile(ctx, *item.Local); err != nil {
		t.Fatal(err)
	}
	recorded, err := m.Record(ctx, item)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	resolution, err := m.Resolve(ctx, recorded.ID, StrategyNewerWins)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolution.Applied != StrategyKeepLocal {
		t.Fatalf("tie should favor local, applied %s", resolution.Applied)
	}
}

func TestResolveIdempotent(t *testing.T) {
	m, db, _ := newManager(t)
	ctx := context.Background()

	item := divergedItem("doc.txt")
	if err := db.UpsertLocalFile(ctx, *item.Local); err != nil {
		t.Fatal(err)
	}
	recorded, err := m.Record(ctx, item)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if _, err := m.Resolve(ctx, recorded.ID, StrategyKeepLocal); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	again, err := m.Resolve(ctx, recorded.ID, StrategyKeepRemote)
	if err != nil {
		t.Fatalf("repeat Resolve: %v", err)
	}
	if !again.AlreadyResolved {
		t.Error("expected repeat resolution to report already resolved")
	}
	if again.Applied != StrategyKeepLocal {
		t.Errorf("repeat resolution changed the outcome to %s", again.Applied)
	}
}

func TestResolveRejectsPromptAndUnknown(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	if _, err := m.Resolve(ctx, "whatever", StrategyPrompt); err == nil {
		t.Error("prompt must not be applied as a resolution")
	}
	if _, err := m.Resolve(ctx, "whatever", Strategy("coin-flip")); err == nil {
		t.Error("unknown strategy must be rejected")
	}
	if _, err := m.Resolve(ctx, "missing-id", StrategyKeepLocal); err == nil {
		t.Error("unknown conflict id must be rejected")
	}
}

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"keep-local", "keep-remote", "newer-wins", "prompt"} {
		if _, err := ParseStrategy(valid); err != nil {
			t.Errorf("ParseStrategy(%q): %v", valid, err)
		}
	}
	if _, err := ParseStrategy("overwrite"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
