package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dl-alexandre/mirrorsync/internal/exclude"
	"github.com/dl-alexandre/mirrorsync/internal/store"
)

func newTestWatcher(t *testing.T) (*Watcher, *store.DB, string) {
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
	if err := os.MkdirAll(root, 0700); err != nil {
		t.Fatal(err)
	}

	w, err := New("acct", root, db, exclude.New(nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = w.fsw.Close() })
	return w, db, w.root
}

func writeEvent(root, rel string) fsnotify.Event {
	return fsnotify.Event{Name: filepath.Join(root, filepath.FromSlash(rel)), Op: fsnotify.Write}
}

func TestWriteEventMarksPendingUploadAfterDebounce(t *testing.T) {
	w, db, root := newTestWatcher(t)
	ctx := context.Background()

	path := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}

	w.handleEvent(ctx, writeEvent(root, "notes.txt"))
	if len(w.pending) != 1 {
		t.Fatalf("event not queued: %v", w.pending)
	}

	// Inside the window nothing is committed.
	w.flush(ctx, time.Now())
	if rec, _ := db.GetLocalFileByPath(ctx, "acct", "notes.txt"); rec != nil {
		t.Fatalf("flushed too early: %+v", rec)
	}

	w.flush(ctx, time.Now().Add(debounceWindow))
	rec, err := db.GetLocalFileByPath(ctx, "acct", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.State != store.StatePendingUpload || rec.Size != 5 {
		t.Errorf("change not recorded: %+v", rec)
	}
	if len(w.pending) != 0 {
		t.Errorf("pending entry not drained: %v", w.pending)
	}
}

func TestWriteBurstCoalesces(t *testing.T) {
	w, db, root := newTestWatcher(t)
	ctx := context.Background()

	path := filepath.Join(root, "doc.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("rev"), 0600); err != nil {
			t.Fatal(err)
		}
		w.handleEvent(ctx, writeEvent(root, "doc.txt"))
	}
	if len(w.pending) != 1 {
		t.Fatalf("burst not coalesced: %v", w.pending)
	}

	w.flush(ctx, time.Now().Add(debounceWindow))
	rec, _ := db.GetLocalFileByPath(ctx, "acct", "doc.txt")
	if rec == nil || rec.State != store.StatePendingUpload {
		t.Errorf("coalesced change not recorded: %+v", rec)
	}
}

func TestFlushPreservesItemIDOfTrackedFile(t *testing.T) {
	w, db, root := newTestWatcher(t)
	ctx := context.Background()

	if err := db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID: "acct", RelativePath: "doc.txt", ItemID: "r1",
		ContentHash: "h1", State: store.StateDownloaded,
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "doc.txt"), []byte("edit"), 0600); err != nil {
		t.Fatal(err)
	}

	w.handleEvent(ctx, writeEvent(root, "doc.txt"))
	w.flush(ctx, time.Now().Add(debounceWindow))

	rec, _ := db.GetLocalFileByPath(ctx, "acct", "doc.txt")
	if rec == nil || rec.State != store.StatePendingUpload || rec.ItemID != "r1" {
		t.Errorf("remote linkage lost: %+v", rec)
	}
}

func TestRemoveEventMarksSyncedFileDeleted(t *testing.T) {
	w, db, root := newTestWatcher(t)
	ctx := context.Background()

	if err := db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID: "acct", RelativePath: "gone.txt", ItemID: "r1",
		State: store.StateDownloaded,
	}); err != nil {
		t.Fatal(err)
	}

	w.handleEvent(ctx, fsnotify.Event{
		Name: filepath.Join(root, "gone.txt"),
		Op:   fsnotify.Remove,
	})

	rec, _ := db.GetLocalFileByPath(ctx, "acct", "gone.txt")
	if rec == nil || rec.State != store.StateDeleted {
		t.Errorf("deletion not recorded: %+v", rec)
	}
}

func TestRemoveEventIgnoresUntrackedPath(t *testing.T) {
	w, db, root := newTestWatcher(t)
	ctx := context.Background()

	w.handleEvent(ctx, fsnotify.Event{
		Name: filepath.Join(root, "stray.txt"),
		Op:   fsnotify.Remove,
	})

	if rec, _ := db.GetLocalFileByPath(ctx, "acct", "stray.txt"); rec != nil {
		t.Errorf("untracked path recorded: %+v", rec)
	}
}

func TestExcludedPathsAreIgnored(t *testing.T) {
	w, db, root := newTestWatcher(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(root, "scratch.tmp"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	w.handleEvent(ctx, writeEvent(root, "scratch.tmp"))
	if len(w.pending) != 0 {
		t.Errorf("excluded path queued: %v", w.pending)
	}

	w.flush(ctx, time.Now().Add(debounceWindow))
	if rec, _ := db.GetLocalFileByPath(ctx, "acct", "scratch.tmp"); rec != nil {
		t.Errorf("excluded path recorded: %+v", rec)
	}
}

func TestFlushSkipsVanishedFile(t *testing.T) {
	w, db, root := newTestWatcher(t)
	ctx := context.Background()

	path := filepath.Join(root, "brief.txt")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	w.handleEvent(ctx, writeEvent(root, "brief.txt"))
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	w.flush(ctx, time.Now().Add(debounceWindow))
	if rec, _ := db.GetLocalFileByPath(ctx, "acct", "brief.txt"); rec != nil {
		t.Errorf("vanished file recorded: %+v", rec)
	}
}
