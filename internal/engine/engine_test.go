package engine

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/engine/conflict"
	"github.com/dl-alexandre/mirrorsync/internal/engine/transfer"
	"github.com/dl-alexandre/mirrorsync/internal/exclude"
	"github.com/dl-alexandre/mirrorsync/internal/localfs"
	"github.com/dl-alexandre/mirrorsync/internal/mocks"
	"github.com/dl-alexandre/mirrorsync/internal/remote"
	"github.com/dl-alexandre/mirrorsync/internal/store"
)

type fixture struct {
	engine *Engine
	db     *store.DB
	root   string
	client *mocks.Client
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithTransfer(t, transfer.Options{})
}

func newFixtureWithTransfer(t *testing.T, transferOpts transfer.Options) *fixture {
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

	client := &mocks.Client{}
	eng := New(client, fs, db, nil, nil, Options{
		AccountID: "acct",
		Matcher:   exclude.New(nil),
		Transfer:  transferOpts,
	})
	return &fixture{engine: eng, db: db, root: root, client: client}
}

func singlePageFeed(items []remote.Item, deltaLink string) func(context.Context, string) (*remote.DeltaPage, error) {
	return func(ctx context.Context, link string) (*remote.DeltaPage, error) {
		return &remote.DeltaPage{Items: items, DeltaLink: deltaLink}, nil
	}
}

func TestRunFirstPassDownloadsAndUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One file on the remote, one new file in the mirror.
	f.client.GetDeltaPageFunc = singlePageFeed([]remote.Item{
		{ID: "r1", Path: "remote.txt", Size: 6, ModifiedAt: time.Now().UTC()},
	}, "delta-1")
	f.client.DownloadContentFunc = func(ctx context.Context, itemID string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("remote"))), nil
	}
	f.client.SimpleUploadFunc = func(ctx context.Context, parentPath, name string, content io.Reader, size int64) (*remote.Item, error) {
		return &remote.Item{ID: "r2", Path: name, Size: size}, nil
	}
	if err := os.WriteFile(filepath.Join(f.root, "local.txt"), []byte("local"), 0600); err != nil {
		t.Fatal(err)
	}

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 2 || summary.Failed != 0 || summary.Conflicted != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if _, err := os.Stat(filepath.Join(f.root, "remote.txt")); err != nil {
		t.Errorf("remote file not mirrored: %v", err)
	}
	uploaded, _ := f.db.GetLocalFileByPath(ctx, "acct", "local.txt")
	if uploaded == nil || uploaded.State != store.StateUploaded || uploaded.ItemID != "r2" {
		t.Errorf("local file not uploaded: %+v", uploaded)
	}
}

func TestRunPagesWorkThroughStore(t *testing.T) {
	f := newFixtureWithTransfer(t, transfer.Options{BatchSize: 2, Concurrency: 1})
	ctx := context.Background()

	// More paths than one page holds. The pass must still cover every item
	// exactly once, flushing page by page.
	var feed []remote.Item
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		feed = append(feed, remote.Item{
			ID: "id-" + name, Path: name, Size: 1, ModifiedAt: time.Now().UTC(),
		})
	}
	f.client.GetDeltaPageFunc = singlePageFeed(feed, "delta-1")

	var mu sync.Mutex
	downloads := map[string]int{}
	f.client.DownloadContentFunc = func(ctx context.Context, itemID string) (io.ReadCloser, error) {
		mu.Lock()
		downloads[itemID]++
		mu.Unlock()
		return io.NopCloser(bytes.NewReader([]byte("x"))), nil
	}

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Planned != 5 || summary.Succeeded != 5 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(downloads) != 5 {
		t.Fatalf("expected 5 distinct downloads, got %v", downloads)
	}
	for id, n := range downloads {
		if n != 1 {
			t.Errorf("item %s downloaded %d times", id, n)
		}
	}
}

func TestRunSecondPassIsQuiescent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.GetDeltaPageFunc = singlePageFeed([]remote.Item{
		{ID: "r1", Path: "remote.txt", Size: 6, ModifiedAt: time.Now().UTC()},
	}, "delta-1")
	f.client.DownloadContentFunc = func(ctx context.Context, itemID string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("remote"))), nil
	}

	if _, err := f.engine.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	// Same feed again: everything already applied and transferred.
	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if summary.Succeeded != 0 || summary.Failed != 0 || summary.Conflicted != 0 {
		t.Fatalf("expected quiescent pass, got %+v", summary)
	}
}

func TestRunDetectsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	baseline := time.Now().UTC().Add(-time.Hour)
	remoteEdit := baseline.Add(30 * time.Minute)

	// Both sides diverge from a completed earlier sync.
	if err := f.db.SaveCursor(ctx, store.DeltaCursor{
		AccountID: "acct", Token: "delta-0", LastSynced: baseline,
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.root, "doc.txt"), []byte("local edit"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := f.db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID: "acct", RelativePath: "doc.txt", ItemID: "r1",
		Size: 3, LastWriteUtc: baseline.Add(-time.Hour), State: store.StateDownloaded,
	}); err != nil {
		t.Fatal(err)
	}
	f.client.GetDeltaPageFunc = singlePageFeed([]remote.Item{
		{ID: "r1", Path: "doc.txt", Size: 99, ModifiedAt: remoteEdit},
	}, "delta-1")

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Conflicted != 1 {
		t.Fatalf("expected 1 conflict, got %+v", summary)
	}

	// Neither side was touched.
	data, _ := os.ReadFile(filepath.Join(f.root, "doc.txt"))
	if string(data) != "local edit" {
		t.Errorf("local copy clobbered: %q", data)
	}

	open, _ := f.db.ListUnresolvedConflicts(ctx, "acct")
	if len(open) != 1 || open[0].RelativePath != "doc.txt" {
		t.Fatalf("conflict not recorded: %+v", open)
	}
}

func TestRunPropagatesLocalDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	baseline := time.Now().UTC().Add(-time.Hour)
	if err := f.db.SaveCursor(ctx, store.DeltaCursor{
		AccountID: "acct", Token: "delta-0", LastSynced: baseline,
	}); err != nil {
		t.Fatal(err)
	}
	// Tracked as synced, but the file is not on disk anymore.
	if err := f.db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID: "acct", RelativePath: "old.txt", ItemID: "r1",
		Size: 10, LastWriteUtc: baseline.Add(-time.Hour), State: store.StateDownloaded,
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.ApplyRemoteItems(ctx, []store.RemoteItem{{
		AccountID: "acct", ItemID: "r1", RelativePath: "old.txt",
		Size: 10, ModifiedAt: baseline.Add(-time.Hour),
	}}); err != nil {
		t.Fatal(err)
	}

	f.client.GetDeltaPageFunc = singlePageFeed(nil, "delta-1")
	deleted := ""
	f.client.DeleteItemFunc = func(ctx context.Context, itemID string) error {
		deleted = itemID
		return nil
	}

	summary, err := f.engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if deleted != "r1" {
		t.Errorf("remote delete not issued, got %q", deleted)
	}
}

func TestResolveConflictKeepRemoteDownloadsImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	baseline := time.Now().UTC().Add(-time.Hour)
	if err := f.db.SaveCursor(ctx, store.DeltaCursor{
		AccountID: "acct", Token: "delta-0", LastSynced: baseline,
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.root, "doc.txt"), []byte("local edit"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := f.db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID: "acct", RelativePath: "doc.txt", ItemID: "r1",
		Size: 3, LastWriteUtc: baseline.Add(-time.Hour), State: store.StateDownloaded,
	}); err != nil {
		t.Fatal(err)
	}
	f.client.GetDeltaPageFunc = singlePageFeed([]remote.Item{
		{ID: "r1", Path: "doc.txt", Size: 11, ModifiedAt: baseline.Add(30 * time.Minute)},
	}, "delta-1")
	f.client.DownloadContentFunc = func(ctx context.Context, itemID string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("remote wins"))), nil
	}

	if _, err := f.engine.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	open, _ := f.db.ListUnresolvedConflicts(ctx, "acct")
	if len(open) != 1 {
		t.Fatalf("expected a conflict to resolve, got %+v", open)
	}

	resolution, err := f.engine.ResolveConflict(ctx, open[0].ID, conflict.StrategyKeepRemote)
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if resolution.BackupPath == "" {
		t.Fatal("expected a backup path")
	}

	data, err := os.ReadFile(filepath.Join(f.root, "doc.txt"))
	if err != nil {
		t.Fatalf("downloaded copy missing: %v", err)
	}
	if string(data) != "remote wins" {
		t.Errorf("expected remote content at original path, got %q", data)
	}
	backup, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(resolution.BackupPath)))
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	if string(backup) != "local edit" {
		t.Errorf("backup content mismatch: %q", backup)
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.engine.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.HasCursor || status.PendingDownloads != 0 || status.PendingUploads != 0 {
		t.Fatalf("fresh account should be empty: %+v", status)
	}

	if err := f.db.ApplyRemoteItems(ctx, []store.RemoteItem{{
		AccountID: "acct", ItemID: "r1", RelativePath: "a.txt",
	}}); err != nil {
		t.Fatal(err)
	}
	if err := f.db.SaveCursor(ctx, store.DeltaCursor{
		AccountID: "acct", Token: "delta-1", LastSynced: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	status, err = f.engine.GetStatus(ctx)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.HasCursor || status.PendingDownloads != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}
