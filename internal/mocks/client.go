// Package mocks provides hand-rolled test doubles for the remote API surface.
package mocks

import (
	"context"
	"io"

	"github.com/dl-alexandre/mirrorsync/internal/remote"
)

// Client is a remote.Client whose behavior is supplied per test through
// function fields. Unset methods panic, which keeps tests honest about what
// they exercise.
type Client struct {
	GetDeltaPageFunc        func(ctx context.Context, link string) (*remote.DeltaPage, error)
	DownloadContentFunc     func(ctx context.Context, itemID string) (io.ReadCloser, error)
	SimpleUploadFunc        func(ctx context.Context, parentPath, name string, content io.Reader, size int64) (*remote.Item, error)
	CreateUploadSessionFunc func(ctx context.Context, parentPath, name string) (*remote.UploadSession, error)
	UploadChunkFunc         func(ctx context.Context, session *remote.UploadSession, chunk io.Reader, rangeStart, rangeEnd, totalSize int64) (*remote.Item, error)
	DeleteItemFunc          func(ctx context.Context, itemID string) error
}

var _ remote.Client = (*Client)(nil)

func (c *Client) GetDeltaPage(ctx context.Context, link string) (*remote.DeltaPage, error) {
	if c.GetDeltaPageFunc == nil {
		panic("mocks.Client: GetDeltaPage not configured")
	}
	return c.GetDeltaPageFunc(ctx, link)
}

func (c *Client) DownloadContent(ctx context.Context, itemID string) (io.ReadCloser, error) {
	if c.DownloadContentFunc == nil {
		panic("mocks.Client: DownloadContent not configured")
	}
	return c.DownloadContentFunc(ctx, itemID)
}

func (c *Client) SimpleUpload(ctx context.Context, parentPath, name string, content io.Reader, size int64) (*remote.Item, error) {
	if c.SimpleUploadFunc == nil {
		panic("mocks.Client: SimpleUpload not configured")
	}
	return c.SimpleUploadFunc(ctx, parentPath, name, content, size)
}

func (c *Client) CreateUploadSession(ctx context.Context, parentPath, name string) (*remote.UploadSession, error) {
	if c.CreateUploadSessionFunc == nil {
		panic("mocks.Client: CreateUploadSession not configured")
	}
	return c.CreateUploadSessionFunc(ctx, parentPath, name)
}

func (c *Client) UploadChunk(ctx context.Context, session *remote.UploadSession, chunk io.Reader, rangeStart, rangeEnd, totalSize int64) (*remote.Item, error) {
	if c.UploadChunkFunc == nil {
		panic("mocks.Client: UploadChunk not configured")
	}
	return c.UploadChunkFunc(ctx, session, chunk, rangeStart, rangeEnd, totalSize)
}

func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	if c.DeleteItemFunc == nil {
		panic("mocks.Client: DeleteItem not configured")
	}
	return c.DeleteItemFunc(ctx, itemID)
}
