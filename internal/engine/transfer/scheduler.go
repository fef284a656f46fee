package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dl-alexandre/mirrorsync/internal/engine/events"
	"github.com/dl-alexandre/mirrorsync/internal/engine/reconcile"
	"github.com/dl-alexandre/mirrorsync/internal/localfs"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/remote"
	"github.com/dl-alexandre/mirrorsync/internal/store"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
)

// progressInterval is how many bytes move between progress events.
const progressInterval = 256 * 1024

// Options tunes the scheduler. Zero values fall back to defaults.
type Options struct {
	Concurrency    int
	BatchSize      int
	ChunkThreshold int64
	ChunkSize      int64
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = utils.DefaultConcurrency
	}
	if o.BatchSize < 1 {
		o.BatchSize = utils.DefaultBatchSize
	}
	if o.ChunkThreshold <= 0 {
		o.ChunkThreshold = utils.UploadSimpleMaxBytes
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = utils.UploadChunkSize
	}
	return o
}

// Summary totals one scheduler run. Item-level failures are counted, not
// propagated; the pass keeps going.
type Summary struct {
	Succeeded       int
	Failed          int
	Skipped         int
	BytesDownloaded int64
	BytesUploaded   int64
}

// Scheduler executes classified work items through a bounded worker pool.
// Downloads write through a temp file and finalize atomically; uploads above
// the chunk threshold go through an upload session with contiguous ranges.
// The remote client owns retry for network calls; the scheduler makes one
// attempt per item per pass and lets the next pass reclassify failures.
type Scheduler struct {
	accountID string
	client    remote.Client
	fs        localfs.Adapter
	db        *store.DB
	bus       *events.Bus
	logger    logging.Logger
	opts      Options
	inflight  *inflightSet
}

// New creates a scheduler for one account.
func New(accountID string, client remote.Client, fs localfs.Adapter, db *store.DB, bus *events.Bus, logger logging.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	opts = opts.withDefaults()
	return &Scheduler{
		accountID: accountID,
		client:    client,
		fs:        fs,
		db:        db,
		bus:       bus,
		logger:    logger,
		opts:      opts,
		inflight:  newInflightSet(),
	}
}

// BatchSize reports the page size the scheduler was configured with, so the
// caller can feed Execute in matching store pages.
func (s *Scheduler) BatchSize() int {
	return s.opts.BatchSize
}

// Execute runs the work list. Item failures mark the item and continue;
// auth failures, store failures, and cancellation abort the run. The
// returned summary is valid either way.
func (s *Scheduler) Execute(ctx context.Context, items []reconcile.WorkItem) (Summary, error) {
	var (
		mu       sync.Mutex
		summary  Summary
		fatalErr error
	)

	setFatal := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if fatalErr == nil {
			fatalErr = err
		}
	}
	aborted := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatalErr != nil
	}

	// Queue depth bounds how far dispatch runs ahead of the workers.
	jobs := make(chan reconcile.WorkItem, s.opts.BatchSize)
	var wg sync.WaitGroup

	for w := 0; w < s.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if aborted() || ctx.Err() != nil {
					continue
				}

				// One worker per path at a time. Claims block rather than
				// reorder so the classified ordering is preserved.
				s.inflight.Acquire(item.Path)
				bytes, err := s.executeOne(ctx, item)
				s.inflight.Release(item.Path)

				mu.Lock()
				switch {
				case err == nil && bytes < 0:
					summary.Skipped++
				case err == nil:
					summary.Succeeded++
					switch item.Type {
					case reconcile.ActionDownload:
						summary.BytesDownloaded += bytes
					case reconcile.ActionUpload:
						summary.BytesUploaded += bytes
					}
				default:
					summary.Failed++
				}
				mu.Unlock()

				if err != nil && isFatal(err) {
					setFatal(err)
				}
			}
		}()
	}

	for _, item := range items {
		if item.Type != reconcile.ActionDownload &&
			item.Type != reconcile.ActionUpload &&
			item.Type != reconcile.ActionDeleteLocal &&
			item.Type != reconcile.ActionDeleteRemote {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}
		if aborted() || ctx.Err() != nil {
			break
		}
		jobs <- item
	}
	close(jobs)
	wg.Wait()

	if fatalErr == nil && ctx.Err() != nil {
		fatalErr = ctx.Err()
	}
	return summary, fatalErr
}

// executeOne runs a single work item to completion, recording the outcome in
// the store. Returns bytes moved, or -1 when the item turned out to be a
// no-op.
func (s *Scheduler) executeOne(ctx context.Context, item reconcile.WorkItem) (int64, error) {
	traceID := uuid.New().String()
	logger := s.logger.WithTraceID(traceID)
	started := time.Now().UTC()

	itemID := ""
	if item.Remote != nil {
		itemID = item.Remote.ItemID
	} else if item.Local != nil {
		itemID = item.Local.ItemID
	}

	var totalBytes int64
	if item.Remote != nil {
		totalBytes = item.Remote.Size
	} else if item.Local != nil {
		totalBytes = item.Local.Size
	}

	s.bus.Publish(events.TransferStarted{
		ItemID:     itemID,
		Path:       item.Path,
		Type:       string(item.Type),
		TotalBytes: totalBytes,
	})
	logger.Debug("transfer started",
		logging.F("path", item.Path),
		logging.F("type", string(item.Type)),
	)

	var bytes int64
	var err error
	switch item.Type {
	case reconcile.ActionDownload:
		bytes, err = s.download(ctx, item)
	case reconcile.ActionUpload:
		bytes, err = s.upload(ctx, item)
	case reconcile.ActionDeleteLocal:
		err = s.deleteLocal(ctx, item)
	case reconcile.ActionDeleteRemote:
		err = s.deleteRemote(ctx, itemID, item)
	default:
		return -1, nil
	}

	logType := transferLogType(item.Type)

	if err != nil {
		s.bus.Publish(events.TransferFailed{
			ItemID: itemID,
			Path:   item.Path,
			Type:   string(item.Type),
			Err:    err.Error(),
		})
		logger.Error("transfer failed",
			logging.F("path", item.Path),
			logging.F("type", string(item.Type)),
			logging.F("error", err.Error()),
		)
		s.recordFailure(ctx, item, itemID, logType, started, err)
		return 0, err
	}

	if bytes < 0 {
		return -1, nil
	}

	s.bus.Publish(events.TransferComplete{
		ItemID: itemID,
		Path:   item.Path,
		Type:   string(item.Type),
		Bytes:  bytes,
	})
	logger.Info("transfer complete",
		logging.F("path", item.Path),
		logging.F("type", string(item.Type)),
		logging.F("bytes", bytes),
	)

	if _, logErr := s.db.AppendTransferLog(ctx, store.TransferLogEntry{
		AccountID:        s.accountID,
		Type:             logType,
		ItemID:           itemID,
		Started:          started,
		Completed:        time.Now().UTC(),
		Status:           store.TransferSuccess,
		BytesTransferred: bytes,
	}); logErr != nil {
		return bytes, logErr
	}
	return bytes, nil
}

// recordFailure marks the item failed in the store. Store write errors here
// are logged and swallowed so the original transfer error surfaces.
func (s *Scheduler) recordFailure(ctx context.Context, item reconcile.WorkItem, itemID string, logType store.TransferType, started time.Time, cause error) {
	if _, err := s.db.AppendTransferLog(ctx, store.TransferLogEntry{
		AccountID: s.accountID,
		Type:      logType,
		ItemID:    itemID,
		Started:   started,
		Completed: time.Now().UTC(),
		Status:    store.TransferFailed,
		ErrorText: cause.Error(),
	}); err != nil {
		s.logger.Error("failed to append transfer log",
			logging.F("path", item.Path),
			logging.F("error", err.Error()),
		)
	}

	if item.Local != nil {
		if err := s.db.SetLocalFileState(ctx, s.accountID, item.Path, store.StateError); err != nil {
			s.logger.Error("failed to mark local file errored",
				logging.F("path", item.Path),
				logging.F("error", err.Error()),
			)
		}
		return
	}
	if err := s.db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID:    s.accountID,
		RelativePath: item.Path,
		ItemID:       itemID,
		State:        store.StateError,
	}); err != nil {
		s.logger.Error("failed to record errored file",
			logging.F("path", item.Path),
			logging.F("error", err.Error()),
		)
	}
}

// download streams remote content through a temp file and finalizes it. A
// failed or cancelled stream leaves no finalized file behind; the item stays
// pending and the next pass picks it up again.
func (s *Scheduler) download(ctx context.Context, item reconcile.WorkItem) (int64, error) {
	remoteItem := item.Remote

	rc, err := s.client.DownloadContent(ctx, remoteItem.ItemID)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	pr := &progressReader{
		reader: rc,
		total:  remoteItem.Size,
		itemID: remoteItem.ItemID,
		bus:    s.bus,
	}
	written, hash, err := s.fs.WriteFile(ctx, item.Path, pr, remoteItem.ModifiedAt)
	if err != nil {
		return 0, err
	}

	if err := s.db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID:    s.accountID,
		RelativePath: item.Path,
		ItemID:       remoteItem.ItemID,
		ContentHash:  hash,
		Size:         written,
		LastWriteUtc: remoteItem.ModifiedAt,
		State:        store.StateDownloaded,
	}); err != nil {
		return 0, err
	}
	return written, nil
}

// upload sends a local file to the remote, choosing simple or chunked upload
// by size. The file stays open for the whole transfer so the byte ranges a
// session sees are contiguous.
func (s *Scheduler) upload(ctx context.Context, item reconcile.WorkItem) (int64, error) {
	info, err := s.fs.GetFileInfo(item.Path)
	if err != nil {
		return 0, err
	}
	if info == nil || info.IsDir {
		// Vanished between classification and dispatch. The next pass
		// reclassifies it.
		return -1, nil
	}
	size := info.Size

	f, err := s.fs.OpenRead(item.Path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	parent := path.Dir(item.Path)
	if parent == "." {
		parent = ""
	}
	name := path.Base(item.Path)

	var uploaded *remote.Item
	if size <= s.opts.ChunkThreshold {
		uploaded, err = s.client.SimpleUpload(ctx, parent, name, f, size)
	} else {
		uploaded, err = s.uploadChunked(ctx, parent, name, f, size)
	}
	if err != nil {
		return 0, err
	}
	if uploaded == nil {
		return 0, utils.NewAppError(utils.NewSyncError(utils.ErrCodeInternalError, "upload finished without a remote item").Build())
	}

	hash := info.Hash
	if hash == "" && item.Local != nil {
		hash = item.Local.ContentHash
	}
	if err := s.db.UpsertLocalFile(ctx, store.LocalFile{
		AccountID:    s.accountID,
		RelativePath: item.Path,
		ItemID:       uploaded.ID,
		ContentHash:  hash,
		Size:         size,
		LastWriteUtc: info.LastWriteUtc,
		State:        store.StateUploaded,
	}); err != nil {
		return 0, err
	}
	return size, nil
}

// uploadChunked drives one upload session with contiguous byte ranges. The
// final chunk yields the created item.
func (s *Scheduler) uploadChunked(ctx context.Context, parent, name string, content io.Reader, size int64) (*remote.Item, error) {
	session, err := s.client.CreateUploadSession(ctx, parent, name)
	if err != nil {
		return nil, err
	}

	var offset int64
	for offset < size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := offset + s.opts.ChunkSize - 1
		if end >= size {
			end = size - 1
		}
		chunkLen := end - offset + 1

		item, err := s.client.UploadChunk(ctx, session, io.LimitReader(content, chunkLen), offset, end, size)
		if err != nil {
			return nil, err
		}

		offset = end + 1
		s.bus.Publish(events.TransferProgress{
			ItemID:           session.SessionID,
			BytesTransferred: offset,
			TotalBytes:       size,
			Timestamp:        time.Now().UTC(),
		})

		if offset >= size {
			if item == nil {
				return nil, utils.NewAppError(utils.NewSyncError(utils.ErrCodeInternalError,
					fmt.Sprintf("upload session returned no item after final chunk of %s", name)).Build())
			}
			return item, nil
		}
	}
	return nil, utils.NewAppError(utils.NewSyncError(utils.ErrCodeInvalidArgument, "chunked upload of empty content").Build())
}

// deleteLocal removes the mirror copy. Missing files count as success, so
// re-running a partially applied delete is harmless.
func (s *Scheduler) deleteLocal(ctx context.Context, item reconcile.WorkItem) error {
	if err := s.fs.DeleteFile(item.Path); err != nil {
		return err
	}
	return s.markDeleted(ctx, item)
}

// deleteRemote propagates a local deletion. A not-found response means the
// item is already gone and counts as success.
func (s *Scheduler) deleteRemote(ctx context.Context, itemID string, item reconcile.WorkItem) error {
	if itemID == "" {
		// Never uploaded, nothing to delete remotely.
		return s.markDeleted(ctx, item)
	}
	if err := s.client.DeleteItem(ctx, itemID); err != nil && !remote.IsNotFound(err) {
		return err
	}
	return s.markDeleted(ctx, item)
}

func (s *Scheduler) markDeleted(ctx context.Context, item reconcile.WorkItem) error {
	if item.Local == nil {
		return nil
	}
	return s.db.SetLocalFileState(ctx, s.accountID, item.Path, store.StateDeleted)
}

// isFatal reports whether an error should abort the whole run rather than
// fail one item.
func isFatal(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch utils.CodeOf(err) {
	case utils.ErrCodeAuthRequired, utils.ErrCodeAuthExpired, utils.ErrCodeNotSignedIn,
		utils.ErrCodeStoreUnavailable, utils.ErrCodeCancelled:
		return true
	}
	return false
}

func transferLogType(action reconcile.ActionType) store.TransferType {
	switch action {
	case reconcile.ActionDownload:
		return store.TransferDownload
	case reconcile.ActionUpload:
		return store.TransferUpload
	default:
		return store.TransferDelete
	}
}

// progressReader emits progress events as bytes flow through it.
type progressReader struct {
	reader   io.Reader
	total    int64
	itemID   string
	bus      *events.Bus
	read     int64
	lastEmit int64
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 {
		p.read += int64(n)
	}
	// The trailing emit fires even when EOF arrives with n == 0, so the final
	// sub-interval tail is never silently dropped.
	if p.read-p.lastEmit >= progressInterval || (err == io.EOF && p.read != p.lastEmit) {
		p.lastEmit = p.read
		p.bus.Publish(events.TransferProgress{
			ItemID:           p.itemID,
			BytesTransferred: p.read,
			TotalBytes:       p.total,
			Timestamp:        time.Now().UTC(),
		})
	}
	return n, err
}
