// Package engine orchestrates one sync pass: delta ingestion, local
// enumeration, reconciliation, and transfer execution, in that order.
package engine

import (
	"context"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/engine/conflict"
	"github.com/dl-alexandre/mirrorsync/internal/engine/events"
	"github.com/dl-alexandre/mirrorsync/internal/engine/ingest"
	"github.com/dl-alexandre/mirrorsync/internal/engine/reconcile"
	"github.com/dl-alexandre/mirrorsync/internal/engine/transfer"
	"github.com/dl-alexandre/mirrorsync/internal/exclude"
	"github.com/dl-alexandre/mirrorsync/internal/localfs"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/remote"
	"github.com/dl-alexandre/mirrorsync/internal/store"
)

// Options configures one engine instance.
type Options struct {
	AccountID string
	Transfer  transfer.Options
	Matcher   *exclude.Matcher
}

// Engine drives sync passes for one account against one mirror root.
type Engine struct {
	accountID string
	client    remote.Client
	fs        localfs.Adapter
	db        *store.DB
	bus       *events.Bus
	logger    logging.Logger
	matcher   *exclude.Matcher

	ingestor  *ingest.Ingestor
	scheduler *transfer.Scheduler
	conflicts *conflict.Manager
}

// New wires an engine from its dependencies.
func New(client remote.Client, fs localfs.Adapter, db *store.DB, bus *events.Bus, logger logging.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Engine{
		accountID: opts.AccountID,
		client:    client,
		fs:        fs,
		db:        db,
		bus:       bus,
		logger:    logger,
		matcher:   opts.Matcher,
		ingestor:  ingest.New(opts.AccountID, client, db, bus, logger),
		scheduler: transfer.New(opts.AccountID, client, fs, db, bus, logger, opts.Transfer),
		conflicts: conflict.NewManager(opts.AccountID, db, fs, bus, logger),
	}
}

// Bus exposes the event stream for progress consumers.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Conflicts exposes the conflict manager.
func (e *Engine) Conflicts() *conflict.Manager { return e.conflicts }

// PassSummary totals one sync pass.
type PassSummary struct {
	Full            bool
	Pages           int
	ItemsIngested   int
	Planned         int
	Succeeded       int
	Failed          int
	Skipped         int
	Conflicted      int
	BytesDownloaded int64
	BytesUploaded   int64
	Duration        time.Duration
}

// Run executes one incremental sync pass. Item-level transfer failures are
// absorbed into the summary; ingestion, store, and auth failures abort the
// pass with the cursor left wherever it durably advanced to.
func (e *Engine) Run(ctx context.Context) (*PassSummary, error) {
	return e.run(ctx, false)
}

// RunFull discards the delta cursor and re-enumerates the remote side from
// scratch. Transfers stay incremental: unchanged files classify as skips.
func (e *Engine) RunFull(ctx context.Context) (*PassSummary, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, full bool) (*PassSummary, error) {
	start := time.Now()
	summary := &PassSummary{Full: full}

	finish := func(err error) (*PassSummary, error) {
		summary.Duration = time.Since(start)
		errText := ""
		if err != nil {
			errText = err.Error()
		}
		e.bus.Publish(events.PassComplete{
			Succeeded:  summary.Succeeded,
			Failed:     summary.Failed,
			Conflicted: summary.Conflicted,
			Err:        errText,
		})
		return summary, err
	}

	if full {
		if err := e.db.DeleteCursor(ctx, e.accountID); err != nil {
			return finish(err)
		}
	}

	// The baseline for changed-since comparison is the cursor before this
	// pass's ingestion advances it.
	baseline := time.Time{}
	cursor, err := e.db.GetCursor(ctx, e.accountID)
	if err != nil {
		return finish(err)
	}
	if cursor != nil {
		baseline = cursor.LastSynced
	}

	e.bus.Publish(events.PassStarted{AccountID: e.accountID, Full: cursor == nil})
	e.logger.Info("sync pass started",
		logging.F("account", e.accountID),
		logging.F("full", cursor == nil),
	)

	e.bus.Publish(events.PhaseChanged{Phase: events.PhaseIngesting})
	ingested, err := e.ingestor.Run(ctx)
	summary.Pages = ingested.Pages
	summary.ItemsIngested = ingested.Items
	if err != nil {
		return finish(err)
	}

	e.bus.Publish(events.PhaseChanged{Phase: events.PhaseReconciling})
	if err := e.refreshLocalIndex(ctx); err != nil {
		return finish(err)
	}

	e.bus.Publish(events.PhaseChanged{Phase: events.PhaseTransferring})
	if err := e.reconcileAndTransfer(ctx, baseline, summary); err != nil {
		return finish(err)
	}

	e.bus.Publish(events.PhaseChanged{Phase: events.PhaseDone})
	e.logger.Info("sync pass complete",
		logging.F("account", e.accountID),
		logging.F("succeeded", summary.Succeeded),
		logging.F("failed", summary.Failed),
		logging.F("conflicted", summary.Conflicted),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
	)
	return finish(nil)
}

// remotePager streams path-ordered pages of remote records for the merge join.
type remotePager struct {
	db        *store.DB
	accountID string
	size      int

	buf   []store.RemoteItem
	i     int
	after string
	done  bool
}

func (p *remotePager) peek(ctx context.Context) (*store.RemoteItem, error) {
	if p.i >= len(p.buf) && !p.done {
		page, err := p.db.ListRemoteItemsPage(ctx, p.accountID, p.after, p.size)
		if err != nil {
			return nil, err
		}
		if len(page) < p.size {
			p.done = true
		}
		if len(page) > 0 {
			p.after = page[len(page)-1].RelativePath
		}
		p.buf, p.i = page, 0
	}
	if p.i < len(p.buf) {
		return &p.buf[p.i], nil
	}
	return nil, nil
}

func (p *remotePager) advance() { p.i++ }

// localPager is the local-side counterpart of remotePager.
type localPager struct {
	db        *store.DB
	accountID string
	size      int

	buf   []store.LocalFile
	i     int
	after string
	done  bool
}

func (p *localPager) peek(ctx context.Context) (*store.LocalFile, error) {
	if p.i >= len(p.buf) && !p.done {
		page, err := p.db.ListLocalFilesPage(ctx, p.accountID, p.after, p.size)
		if err != nil {
			return nil, err
		}
		if len(page) < p.size {
			p.done = true
		}
		if len(page) > 0 {
			p.after = page[len(page)-1].RelativePath
		}
		p.buf, p.i = page, 0
	}
	if p.i < len(p.buf) {
		return &p.buf[p.i], nil
	}
	return nil, nil
}

func (p *localPager) advance() { p.i++ }

// reconcileAndTransfer merge-joins both sides of the store in path order and
// classifies and executes the work one bounded page at a time, so the backlog
// is never fully materialized in memory. A page always ends on a path
// boundary: both sides of a path are classified together.
func (e *Engine) reconcileAndTransfer(ctx context.Context, baseline time.Time, summary *PassSummary) error {
	size := e.scheduler.BatchSize()
	remotes := &remotePager{db: e.db, accountID: e.accountID, size: size}
	locals := &localPager{db: e.db, accountID: e.accountID, size: size}

	var remotePage []store.RemoteItem
	var localPage []store.LocalFile
	paths := 0

	flush := func() error {
		if paths == 0 {
			return nil
		}
		work := reconcile.Classify(reconcile.Snapshot{
			Remote:     remotePage,
			Local:      localPage,
			LastSynced: baseline,
		})
		summary.Planned += len(work)

		transferable := make([]reconcile.WorkItem, 0, len(work))
		for _, item := range work {
			if item.Type == reconcile.ActionConflict {
				if _, err := e.conflicts.Record(ctx, item); err != nil {
					return err
				}
				summary.Conflicted++
				continue
			}
			transferable = append(transferable, item)
		}

		transferred, err := e.scheduler.Execute(ctx, transferable)
		summary.Succeeded += transferred.Succeeded
		summary.Failed += transferred.Failed
		summary.Skipped += transferred.Skipped
		summary.BytesDownloaded += transferred.BytesDownloaded
		summary.BytesUploaded += transferred.BytesUploaded

		remotePage, localPage, paths = remotePage[:0], localPage[:0], 0
		return err
	}

	for {
		r, err := remotes.peek(ctx)
		if err != nil {
			return err
		}
		l, err := locals.peek(ctx)
		if err != nil {
			return err
		}
		if r == nil && l == nil {
			break
		}

		switch {
		case l == nil || (r != nil && r.RelativePath < l.RelativePath):
			remotePage = append(remotePage, *r)
			remotes.advance()
		case r == nil || l.RelativePath < r.RelativePath:
			localPage = append(localPage, *l)
			locals.advance()
		default:
			remotePage = append(remotePage, *r)
			localPage = append(localPage, *l)
			remotes.advance()
			locals.advance()
		}
		paths++
		if paths >= size {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// refreshLocalIndex walks the mirror and folds disk reality into the store:
// new files become pending uploads, modified files flip back to pending
// upload, and tracked files missing from disk are marked deleted so the
// deletion propagates.
func (e *Engine) refreshLocalIndex(ctx context.Context) error {
	entries, err := e.fs.EnumerateFiles(ctx, e.matcher)
	if err != nil {
		return err
	}

	tracked, err := e.db.ListLocalFiles(ctx, e.accountID)
	if err != nil {
		return err
	}
	trackedByPath := make(map[string]*store.LocalFile, len(tracked))
	for i := range tracked {
		trackedByPath[tracked[i].RelativePath] = &tracked[i]
	}

	onDisk := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		onDisk[entry.RelativePath] = struct{}{}

		rec := trackedByPath[entry.RelativePath]
		switch {
		case rec == nil:
			// New local file, never seen by either side.
			err = e.db.UpsertLocalFile(ctx, store.LocalFile{
				AccountID:    e.accountID,
				RelativePath: entry.RelativePath,
				Size:         entry.Size,
				LastWriteUtc: entry.LastWriteUtc,
				State:        store.StatePendingUpload,
			})
		case rec.State == store.StateDeleted:
			// Recreated after a tracked deletion.
			err = e.db.UpsertLocalFile(ctx, store.LocalFile{
				AccountID:    e.accountID,
				RelativePath: entry.RelativePath,
				ItemID:       rec.ItemID,
				Size:         entry.Size,
				LastWriteUtc: entry.LastWriteUtc,
				State:        store.StatePendingUpload,
			})
		// The store keeps mtimes at second precision; truncate before
		// comparing so a nanosecond remainder never looks like an edit.
		case (rec.State == store.StateDownloaded || rec.State == store.StateUploaded) &&
			(entry.Size != rec.Size || entry.LastWriteUtc.Truncate(time.Second).After(rec.LastWriteUtc)):
			// Edited since the last completed transfer.
			err = e.db.UpsertLocalFile(ctx, store.LocalFile{
				AccountID:    e.accountID,
				RelativePath: entry.RelativePath,
				ItemID:       rec.ItemID,
				ContentHash:  rec.ContentHash,
				Size:         entry.Size,
				LastWriteUtc: entry.LastWriteUtc,
				State:        store.StatePendingUpload,
			})
		}
		if err != nil {
			return err
		}
	}

	for path, rec := range trackedByPath {
		if _, exists := onDisk[path]; exists {
			continue
		}
		if rec.State != store.StateDownloaded && rec.State != store.StateUploaded {
			continue
		}
		if e.matcher != nil && e.matcher.IsExcluded(path, false) {
			continue
		}
		if err := e.db.SetLocalFileState(ctx, e.accountID, path, store.StateDeleted); err != nil {
			return err
		}
	}
	return nil
}

// ResolveConflict applies a strategy to an open conflict and immediately runs
// the follow-up transfer so the winning side lands without waiting for the
// next pass.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, strategy conflict.Strategy) (*conflict.Resolution, error) {
	resolution, err := e.conflicts.Resolve(ctx, conflictID, strategy)
	if err != nil {
		return nil, err
	}
	if resolution.AlreadyResolved || resolution.FollowUp == "" {
		return resolution, nil
	}

	path := resolution.Conflict.RelativePath
	remoteItem, err := e.db.GetRemoteItemByPath(ctx, e.accountID, path)
	if err != nil {
		return nil, err
	}
	localFile, err := e.db.GetLocalFileByPath(ctx, e.accountID, path)
	if err != nil {
		return nil, err
	}
	if resolution.FollowUp == reconcile.ActionDownload && remoteItem == nil {
		// Remote side vanished since detection; nothing to pull.
		return resolution, nil
	}

	followUp := []reconcile.WorkItem{{
		Type:   resolution.FollowUp,
		Path:   path,
		Remote: remoteItem,
		Local:  localFile,
	}}
	if _, err := e.scheduler.Execute(ctx, followUp); err != nil {
		return nil, err
	}
	return resolution, nil
}

// Status is a point-in-time view of the account's sync state.
type Status struct {
	AccountID           string
	LastSynced          time.Time
	HasCursor           bool
	PendingDownloads    int
	PendingUploads      int
	UnresolvedConflicts []store.Conflict
}

// GetStatus reads counters and the cursor for status reporting.
func (e *Engine) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{AccountID: e.accountID}

	cursor, err := e.db.GetCursor(ctx, e.accountID)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		status.HasCursor = true
		status.LastSynced = cursor.LastSynced
	}

	if status.PendingDownloads, err = e.db.CountPendingDownloads(ctx, e.accountID); err != nil {
		return nil, err
	}
	if status.PendingUploads, err = e.db.CountPendingUploads(ctx, e.accountID); err != nil {
		return nil, err
	}
	if status.UnresolvedConflicts, err = e.db.ListUnresolvedConflicts(ctx, e.accountID); err != nil {
		return nil, err
	}
	return status, nil
}
