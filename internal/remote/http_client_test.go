package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/mirrorsync/internal/auth"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
)

func newTestClient(t *testing.T, handler http.Handler) (*HTTPClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	// Retry behavior is covered by the retry tests; wire tests run single-shot.
	client := NewHTTPClient(HTTPClientConfig{
		BaseURL:    server.URL,
		Tokens:     &auth.StaticTokenProvider{Token: "test-token"},
		MaxRetries: 0,
		BaseDelay:  time.Millisecond,
		Timeout:    5 * time.Second,
	})
	return client, server
}

func TestGetDeltaPageParsesLinks(t *testing.T) {
	var gotAuth, gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		fmt.Fprintf(w, `{
			"value": [
				{"id": "i1", "name": "a.txt", "path": "docs/a.txt", "size": 10,
				 "lastModifiedDateTime": "2026-08-01T10:00:00Z", "eTag": "e1", "cTag": "c1"},
				{"id": "i2", "name": "docs", "path": "docs", "folder": {}},
				{"id": "i3", "name": "old.txt", "path": "old.txt", "deleted": {}}
			],
			"@odata.nextLink": "%s/drive/root/delta?token=page2"
		}`, "http://"+r.Host)
	}))

	page, err := client.GetDeltaPage(context.Background(), "")
	if err != nil {
		t.Fatalf("GetDeltaPage: %v", err)
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("missing bearer token, got %q", gotAuth)
	}
	if gotPath != "/drive/root/delta" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if page.NextLink == "" || page.DeltaLink != "" {
		t.Errorf("expected nextLink only, got %+v", page)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if !page.Items[1].Folder {
		t.Error("folder facet not mapped")
	}
	if !page.Items[2].Deleted {
		t.Error("deleted facet not mapped")
	}
	if page.Items[0].ModifiedAt.IsZero() || page.Items[0].ETag != "e1" {
		t.Errorf("item fields not mapped: %+v", page.Items[0])
	}
}

func TestGetDeltaPageFollowsGivenLink(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "token=abc" {
			t.Errorf("link not followed verbatim: %s", r.URL.String())
		}
		fmt.Fprint(w, `{"value": [], "@odata.deltaLink": "final"}`)
	}))

	page, err := client.GetDeltaPage(context.Background(), server.URL+"/drive/root/delta?token=abc")
	if err != nil {
		t.Fatalf("GetDeltaPage: %v", err)
	}
	if page.DeltaLink != "final" {
		t.Errorf("deltaLink not parsed: %+v", page)
	}
}

func TestErrorResponseCarriesRetryAfter(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "13")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "throttled"}}`)
	}))

	_, err := client.GetDeltaPage(context.Background(), "")
	if err == nil {
		t.Fatal("expected throttling error")
	}
	if utils.CodeOf(err) != utils.ErrCodeRateLimited {
		t.Errorf("code = %s", utils.CodeOf(err))
	}
	appErr, ok := err.(*utils.AppError)
	if !ok {
		t.Fatalf("unexpected error type %T", err)
	}
	if appErr.SyncError.Context["retryAfter"] != "13" {
		t.Errorf("Retry-After not captured: %+v", appErr.SyncError.Context)
	}
	if !strings.Contains(appErr.SyncError.Message, "throttled") {
		t.Errorf("server message lost: %q", appErr.SyncError.Message)
	}
}

func TestRetryAttemptBudgetOnWire(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"value": [], "@odata.deltaLink": "final"}`)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{
		BaseURL:    server.URL,
		Tokens:     &auth.StaticTokenProvider{Token: "test-token"},
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Timeout:    5 * time.Second,
	})
	if _, err := client.GetDeltaPage(context.Background(), ""); err != nil {
		t.Fatalf("GetDeltaPage: %v", err)
	}
	if requests != 3 {
		t.Errorf("expected 3 requests, got %d", requests)
	}

	// A perpetually failing endpoint is hit exactly MaxRetries times.
	requests = 0
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	client = NewHTTPClient(HTTPClientConfig{
		BaseURL:    down.URL,
		Tokens:     &auth.StaticTokenProvider{Token: "test-token"},
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		Timeout:    5 * time.Second,
	})
	if _, err := client.GetDeltaPage(context.Background(), ""); err == nil {
		t.Fatal("expected exhaustion error")
	}
	if requests != 2 {
		t.Errorf("expected 2 requests, got %d", requests)
	}
}

func TestSimpleUpload(t *testing.T) {
	content := []byte("file body")
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/drive/root:/docs/sub/new file.txt:/content" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !bytes.Equal(body, content) {
			t.Errorf("body mismatch: %q", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "new-id", "name": "new file.txt", "path": "docs/sub/new file.txt", "size": len(content),
		})
	}))

	item, err := client.SimpleUpload(context.Background(), "docs/sub", "new file.txt",
		bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("SimpleUpload: %v", err)
	}
	if item.ID != "new-id" || item.Size != int64(len(content)) {
		t.Errorf("unexpected item: %+v", item)
	}
}

func TestUploadChunkSequence(t *testing.T) {
	var ranges []string
	sessionSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ranges = append(ranges, r.Header.Get("Content-Range"))
		if strings.HasSuffix(r.Header.Get("Content-Range"), "20-24/25") {
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id": "done-id", "path": "big.bin", "size": 25}`)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sessionSrv.Close()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Root-level item: no parent segment between root: and the name.
		if r.URL.Path != "/drive/root:/big.bin:/createUploadSession" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl": sessionSrv.URL, "sessionId": "s1",
		})
	}))

	ctx := context.Background()
	session, err := client.CreateUploadSession(ctx, "", "big.bin")
	if err != nil {
		t.Fatalf("CreateUploadSession: %v", err)
	}

	data := bytes.Repeat([]byte("x"), 25)
	for start := int64(0); start < 25; start += 10 {
		end := start + 9
		if end > 24 {
			end = 24
		}
		item, err := client.UploadChunk(ctx, session, bytes.NewReader(data[start:end+1]), start, end, 25)
		if err != nil {
			t.Fatalf("UploadChunk [%d-%d]: %v", start, end, err)
		}
		if end < 24 && item != nil {
			t.Errorf("intermediate chunk returned an item: %+v", item)
		}
		if end == 24 && (item == nil || item.ID != "done-id") {
			t.Errorf("final chunk did not complete the session: %+v", item)
		}
	}

	want := []string{"bytes 0-9/25", "bytes 10-19/25", "bytes 20-24/25"}
	if len(ranges) != len(want) {
		t.Fatalf("ranges = %v", ranges)
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("range %d = %q, want %q", i, ranges[i], want[i])
		}
	}
}

func TestDeleteItem(t *testing.T) {
	status := http.StatusNoContent
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/drive/items/i1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(status)
	}))

	if err := client.DeleteItem(context.Background(), "i1"); err != nil {
		t.Fatalf("DeleteItem: %v", err)
	}

	status = http.StatusNotFound
	err := client.DeleteItem(context.Background(), "i1")
	if !IsNotFound(err) {
		t.Errorf("expected not-found classification, got %v", err)
	}
}

func TestRequestsFailWithoutToken(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server without a token")
	}))
	client.tokens = &auth.StaticTokenProvider{}

	_, err := client.GetDeltaPage(context.Background(), "")
	if utils.CodeOf(err) != utils.ErrCodeNotSignedIn {
		t.Errorf("expected not-signed-in, got %v", err)
	}
}
