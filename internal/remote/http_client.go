package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/auth"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
	"github.com/google/uuid"
)

// HTTPClient implements Client against a Graph-style REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenProvider
	retry   *RetryPolicy
	logger  logging.Logger
}

// HTTPClientConfig configures the remote client.
type HTTPClientConfig struct {
	BaseURL    string
	Tokens     auth.TokenProvider
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
	Logger     logging.Logger
}

// NewHTTPClient creates a remote API client.
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		http:    &http.Client{Timeout: config.Timeout},
		tokens:  config.Tokens,
		retry:   NewRetryPolicy(config.MaxRetries, config.BaseDelay, logger),
		logger:  logger,
	}
}

// wire shapes

type deltaPagePayload struct {
	Items     []itemPayload `json:"value"`
	NextLink  string        `json:"@odata.nextLink"`
	DeltaLink string        `json:"@odata.deltaLink"`
}

type itemPayload struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	ETag         string    `json:"eTag"`
	CTag         string    `json:"cTag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModifiedDateTime"`
	Folder       *struct{} `json:"folder,omitempty"`
	Deleted      *struct{} `json:"deleted,omitempty"`
}

type uploadSessionPayload struct {
	UploadURL string    `json:"uploadUrl"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expirationDateTime"`
}

func (p itemPayload) toItem() Item {
	return Item{
		ID:         p.ID,
		Path:       p.Path,
		Name:       p.Name,
		ETag:       p.ETag,
		CTag:       p.CTag,
		Size:       p.Size,
		ModifiedAt: p.LastModified,
		Folder:     p.Folder != nil,
		Deleted:    p.Deleted != nil,
	}
}

// GetDeltaPage fetches one page of the change feed.
func (c *HTTPClient) GetDeltaPage(ctx context.Context, link string) (*DeltaPage, error) {
	endpoint := link
	if endpoint == "" {
		endpoint = c.baseURL + "/drive/root/delta"
	}

	traceID := uuid.New().String()
	return ExecuteWithRetry(ctx, c.retry, traceID, func() (*DeltaPage, error) {
		body, err := c.doJSON(ctx, http.MethodGet, endpoint, nil, traceID)
		if err != nil {
			return nil, err
		}
		var payload deltaPagePayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeInternalError,
				"malformed delta page").Build(), err)
		}
		page := &DeltaPage{
			NextLink:  payload.NextLink,
			DeltaLink: payload.DeltaLink,
		}
		for _, item := range payload.Items {
			page.Items = append(page.Items, item.toItem())
		}
		return page, nil
	})
}

// DownloadContent opens a content stream for an item. The stream itself is
// not retried; callers restart the whole transfer on failure.
func (c *HTTPClient) DownloadContent(ctx context.Context, itemID string) (io.ReadCloser, error) {
	traceID := uuid.New().String()
	endpoint := fmt.Sprintf("%s/drive/items/%s/content", c.baseURL, url.PathEscape(itemID))

	return ExecuteWithRetry(ctx, c.retry, traceID, func() (io.ReadCloser, error) {
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, traceID)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, ClassifyTransportError(err, traceID)
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, c.errorFromResponse(resp, traceID)
		}
		return resp.Body, nil
	})
}

// SimpleUpload uploads small content in a single request.
func (c *HTTPClient) SimpleUpload(ctx context.Context, parentPath, name string, content io.Reader, size int64) (*Item, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeInternalError,
			"failed to buffer upload content").Build(), err)
	}

	traceID := uuid.New().String()
	endpoint := fmt.Sprintf("%s/drive/root:/%s:/content", c.baseURL, escapeItemPath(parentPath, name))

	return ExecuteWithRetry(ctx, c.retry, traceID, func() (*Item, error) {
		req, err := c.newRequest(ctx, http.MethodPut, endpoint, bytes.NewReader(data), traceID)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.ContentLength = size

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, ClassifyTransportError(err, traceID)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, c.errorFromResponse(resp, traceID)
		}
		return decodeItem(resp.Body)
	})
}

// CreateUploadSession opens a chunked upload session.
func (c *HTTPClient) CreateUploadSession(ctx context.Context, parentPath, name string) (*UploadSession, error) {
	traceID := uuid.New().String()
	endpoint := fmt.Sprintf("%s/drive/root:/%s:/createUploadSession", c.baseURL, escapeItemPath(parentPath, name))

	return ExecuteWithRetry(ctx, c.retry, traceID, func() (*UploadSession, error) {
		body, err := c.doJSON(ctx, http.MethodPost, endpoint, strings.NewReader("{}"), traceID)
		if err != nil {
			return nil, err
		}
		var payload uploadSessionPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeInternalError,
				"malformed upload session response").Build(), err)
		}
		return &UploadSession{
			UploadURL: payload.UploadURL,
			SessionID: payload.SessionID,
			ExpiresAt: payload.ExpiresAt,
		}, nil
	})
}

// UploadChunk sends one contiguous byte range against a session. Chunks are
// buffered so a transient failure can resend the same range.
func (c *HTTPClient) UploadChunk(ctx context.Context, session *UploadSession, chunk io.Reader, rangeStart, rangeEnd, totalSize int64) (*Item, error) {
	data, err := io.ReadAll(chunk)
	if err != nil {
		return nil, utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeInternalError,
			"failed to buffer upload chunk").Build(), err)
	}

	traceID := uuid.New().String()
	return ExecuteWithRetry(ctx, c.retry, traceID, func() (*Item, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, bytes.NewReader(data))
		if err != nil {
			return nil, utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeInternalError,
				"failed to build chunk request").Build(), err)
		}
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rangeStart, rangeEnd, totalSize))
		req.ContentLength = rangeEnd - rangeStart + 1

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, ClassifyTransportError(err, traceID)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted:
			// Intermediate chunk accepted, session continues.
			return nil, nil
		case http.StatusOK, http.StatusCreated:
			// Final chunk completed the session.
			return decodeItem(resp.Body)
		default:
			return nil, c.errorFromResponse(resp, traceID)
		}
	})
}

// DeleteItem removes an item.
func (c *HTTPClient) DeleteItem(ctx context.Context, itemID string) error {
	traceID := uuid.New().String()
	endpoint := fmt.Sprintf("%s/drive/items/%s", c.baseURL, url.PathEscape(itemID))

	_, err := ExecuteWithRetry(ctx, c.retry, traceID, func() (struct{}, error) {
		req, err := c.newRequest(ctx, http.MethodDelete, endpoint, nil, traceID)
		if err != nil {
			return struct{}{}, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return struct{}{}, ClassifyTransportError(err, traceID)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
			return struct{}{}, c.errorFromResponse(resp, traceID)
		}
		return struct{}{}, nil
	})
	return err
}

func (c *HTTPClient) newRequest(ctx context.Context, method, endpoint string, body io.Reader, traceID string) (*http.Request, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, ClassifyTransportError(err, traceID)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeInvalidArgument,
			"failed to build request").Build(), err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, body io.Reader, traceID string) ([]byte, error) {
	req, err := c.newRequest(ctx, method, endpoint, body, traceID)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ClassifyTransportError(err, traceID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(resp, traceID)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) errorFromResponse(resp *http.Response, traceID string) error {
	message := resp.Status
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(data) > 0 {
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error.Message != "" {
			message = payload.Error.Message
		}
	}

	err := ClassifyHTTPError(resp.StatusCode, message, traceID, c.logger)
	if appErr, ok := err.(*utils.AppError); ok {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if appErr.SyncError.Context == nil {
				appErr.SyncError.Context = make(map[string]interface{})
			}
			appErr.SyncError.Context["retryAfter"] = retryAfter
		}
	}
	return err
}

func decodeItem(r io.Reader) (*Item, error) {
	var payload itemPayload
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeInternalError,
			"malformed item response").Build(), err)
	}
	item := payload.toItem()
	return &item, nil
}

func escapePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// escapeItemPath joins a parent path and item name, escaping each segment.
// An empty parent addresses an item directly under the root.
func escapeItemPath(parentPath, name string) string {
	if strings.Trim(parentPath, "/") == "" {
		return url.PathEscape(name)
	}
	return escapePath(parentPath) + "/" + url.PathEscape(name)
}
