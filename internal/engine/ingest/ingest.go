package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/engine/events"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/remote"
	"github.com/dl-alexandre/mirrorsync/internal/store"
)

// Ingestor pages through the remote change feed and applies each page to the
// state store before advancing the cursor. One page is in flight at a time;
// cursor advancement is strictly ordered. On crash/resume the worst case is
// re-applying one page, which is idempotent.
type Ingestor struct {
	accountID string
	client    remote.Client
	db        *store.DB
	bus       *events.Bus
	logger    logging.Logger
	now       func() time.Time
}

// New creates an ingestor for one account.
func New(accountID string, client remote.Client, db *store.DB, bus *events.Bus, logger logging.Logger) *Ingestor {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Ingestor{
		accountID: accountID,
		client:    client,
		db:        db,
		bus:       bus,
		logger:    logger,
		now:       time.Now,
	}
}

// Result summarizes one ingestion run.
type Result struct {
	Pages      int
	Items      int
	FullScan   bool
	FinalToken string
}

// Run drives the feed until a page arrives with no nextLink, then persists
// its deltaLink as the resting cursor. A missing cursor triggers a full
// enumeration. Transient fetch failures are retried inside the client; a
// store write failure aborts the run without advancing the cursor.
func (i *Ingestor) Run(ctx context.Context) (Result, error) {
	result := Result{}

	cursor, err := i.db.GetCursor(ctx, i.accountID)
	if err != nil {
		return result, err
	}

	link := ""
	if cursor != nil {
		link = cursor.Token
	} else {
		result.FullScan = true
		i.logger.Info("no delta cursor, starting full enumeration",
			logging.F("account", i.accountID))
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := i.client.GetDeltaPage(ctx, link)
		if err != nil {
			return result, err
		}

		items := make([]store.RemoteItem, 0, len(page.Items))
		for _, item := range page.Items {
			items = append(items, convertItem(i.accountID, item))
		}

		// Apply before advancing the cursor: a crash between these two
		// steps re-applies this page next run instead of skipping it.
		if err := i.db.ApplyRemoteItems(ctx, items); err != nil {
			i.logger.Error("aborting ingestion, page apply failed",
				logging.F("account", i.accountID),
				logging.F("page", result.Pages+1),
				logging.F("error", err.Error()),
			)
			return result, err
		}

		result.Pages++
		result.Items += len(items)
		i.bus.Publish(events.PageApplied{Page: result.Pages, Items: len(items)})
		i.logger.Debug("delta page applied",
			logging.F("account", i.accountID),
			logging.F("page", result.Pages),
			logging.F("items", len(items)),
		)

		if page.NextLink != "" {
			lastSynced := time.Time{}
			if cursor != nil {
				lastSynced = cursor.LastSynced
			}
			if err := i.db.SaveCursor(ctx, store.DeltaCursor{
				AccountID:  i.accountID,
				Token:      page.NextLink,
				LastSynced: lastSynced,
			}); err != nil {
				return result, err
			}
			link = page.NextLink
			continue
		}

		if page.DeltaLink == "" {
			return result, errors.New("delta page carried neither nextLink nor deltaLink")
		}

		result.FinalToken = page.DeltaLink
		if err := i.db.SaveCursor(ctx, store.DeltaCursor{
			AccountID:  i.accountID,
			Token:      page.DeltaLink,
			LastSynced: i.now().UTC(),
		}); err != nil {
			return result, err
		}

		i.logger.Info("ingestion complete",
			logging.F("account", i.accountID),
			logging.F("pages", result.Pages),
			logging.F("items", result.Items),
		)
		return result, nil
	}
}

func convertItem(accountID string, item remote.Item) store.RemoteItem {
	return store.RemoteItem{
		AccountID:    accountID,
		ItemID:       item.ID,
		RelativePath: item.Path,
		ETag:         item.ETag,
		CTag:         item.CTag,
		Size:         item.Size,
		ModifiedAt:   item.ModifiedAt,
		Folder:       item.Folder,
		// Server-side deletions are upserted with the flag, never removed;
		// reconciliation decides what deletion means locally.
		Deleted: item.Deleted,
	}
}
