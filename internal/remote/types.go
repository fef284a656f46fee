package remote

import (
	"context"
	"io"
	"time"
)

// Item is one entry from the remote change feed or an upload response.
type Item struct {
	ID         string
	Path       string // relative path inside the sync scope, slash-separated
	Name       string
	ETag       string
	CTag       string // content tag, changes only when file content changes
	Size       int64
	ModifiedAt time.Time
	Folder     bool
	Deleted    bool
}

// DeltaPage is one paginated response from the change feed. NextLink is set
// while more pages are pending; DeltaLink is set on the final page and is the
// new resting cursor.
type DeltaPage struct {
	Items     []Item
	NextLink  string
	DeltaLink string
}

// UploadSession is a server-side staging context for chunked uploads.
type UploadSession struct {
	UploadURL string
	SessionID string
	ExpiresAt time.Time
}

// Client is the remote API surface the sync engine consumes.
type Client interface {
	// GetDeltaPage fetches one page of the change feed. An empty link starts
	// a full enumeration; otherwise link is a nextLink or deltaLink from a
	// previous page.
	GetDeltaPage(ctx context.Context, link string) (*DeltaPage, error)

	// DownloadContent opens a content stream for an item. The caller must
	// close the returned reader.
	DownloadContent(ctx context.Context, itemID string) (io.ReadCloser, error)

	// SimpleUpload uploads small content in a single request.
	SimpleUpload(ctx context.Context, parentPath, name string, content io.Reader, size int64) (*Item, error)

	// CreateUploadSession opens a chunked upload session.
	CreateUploadSession(ctx context.Context, parentPath, name string) (*UploadSession, error)

	// UploadChunk sends one contiguous byte range [rangeStart, rangeEnd]
	// against a session. The returned item is nil until the final chunk
	// completes the session.
	UploadChunk(ctx context.Context, session *UploadSession, chunk io.Reader, rangeStart, rangeEnd, totalSize int64) (*Item, error)

	// DeleteItem removes an item. Not-found is reported as ErrCodeNotFound;
	// callers treat it as success.
	DeleteItem(ctx context.Context, itemID string) error
}
