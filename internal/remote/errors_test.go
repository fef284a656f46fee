package remote

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/dl-alexandre/mirrorsync/internal/auth"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
)

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  string
		retryable bool
	}{
		{http.StatusBadRequest, utils.ErrCodeInvalidArgument, false},
		{http.StatusUnauthorized, utils.ErrCodeAuthExpired, false},
		{http.StatusForbidden, utils.ErrCodePermissionDenied, false},
		{http.StatusNotFound, utils.ErrCodeNotFound, false},
		{http.StatusRequestTimeout, utils.ErrCodeTimeout, true},
		{http.StatusTooManyRequests, utils.ErrCodeRateLimited, true},
		{http.StatusInternalServerError, utils.ErrCodeNetworkError, true},
		{http.StatusBadGateway, utils.ErrCodeNetworkError, true},
		{http.StatusServiceUnavailable, utils.ErrCodeNetworkError, true},
		{http.StatusGatewayTimeout, utils.ErrCodeNetworkError, true},
		{http.StatusInsufficientStorage, utils.ErrCodeQuotaExceeded, false},
		{http.StatusTeapot, utils.ErrCodeUnknown, false},
	}

	logger := logging.NewNoOpLogger()
	for _, tt := range tests {
		err := ClassifyHTTPError(tt.status, "boom", "trace", logger)
		if got := utils.CodeOf(err); got != tt.wantCode {
			t.Errorf("status %d: code = %s, want %s", tt.status, got, tt.wantCode)
		}
		if got := utils.IsRetryable(err); got != tt.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"cancelled", context.Canceled, utils.ErrCodeCancelled},
		{"deadline", context.DeadlineExceeded, utils.ErrCodeTimeout},
		{"not signed in", auth.ErrNotSignedIn, utils.ErrCodeNotSignedIn},
		{"generic", errors.New("conn reset"), utils.ErrCodeNetworkError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := ClassifyTransportError(tt.err, "trace")
			if got := utils.CodeOf(classified); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
			if !errors.Is(classified, tt.err) {
				t.Error("cause not preserved through classification")
			}
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	notFound := ClassifyHTTPError(http.StatusNotFound, "gone", "t", logging.NewNoOpLogger())
	if !IsNotFound(notFound) {
		t.Error("IsNotFound should match a 404 classification")
	}
	if IsAuthError(notFound) {
		t.Error("404 is not an auth error")
	}

	authErr := ClassifyHTTPError(http.StatusUnauthorized, "expired", "t", logging.NewNoOpLogger())
	if !IsAuthError(authErr) {
		t.Error("IsAuthError should match a 401 classification")
	}
}
