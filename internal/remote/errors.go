package remote

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/dl-alexandre/mirrorsync/internal/auth"
	"github.com/dl-alexandre/mirrorsync/internal/logging"
	"github.com/dl-alexandre/mirrorsync/internal/utils"
)

// ClassifyHTTPError converts an HTTP response status into a stable sync error.
func ClassifyHTTPError(status int, message, traceID string, logger logging.Logger) error {
	var code string
	var retryable bool

	switch status {
	case http.StatusBadRequest:
		code = utils.ErrCodeInvalidArgument
	case http.StatusUnauthorized:
		code = utils.ErrCodeAuthExpired
	case http.StatusForbidden:
		code = utils.ErrCodePermissionDenied
	case http.StatusNotFound:
		code = utils.ErrCodeNotFound
	case http.StatusRequestTimeout:
		code = utils.ErrCodeTimeout
		retryable = true
	case http.StatusInsufficientStorage:
		code = utils.ErrCodeQuotaExceeded
	case http.StatusTooManyRequests:
		code = utils.ErrCodeRateLimited
		retryable = true
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = status >= 500
	}

	logger.Error("remote API error classified",
		logging.F("httpStatus", status),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("traceId", traceID),
	)

	return utils.NewAppError(utils.NewSyncError(code, message).
		WithHTTPStatus(status).
		WithRetryable(retryable).
		WithContext("traceId", traceID).
		Build())
}

// ClassifyTransportError converts network-level failures into sync errors.
func ClassifyTransportError(err error, traceID string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeCancelled, err.Error()).Build(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeTimeout, err.Error()).
			WithRetryable(true).Build(), err)
	case errors.Is(err, auth.ErrNotSignedIn):
		return utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeNotSignedIn, err.Error()).Build(), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).Build(), err)
	}
	return utils.NewAppErrorWithCause(utils.NewSyncError(utils.ErrCodeNetworkError, err.Error()).
		WithRetryable(true).Build(), err)
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return utils.CodeOf(err) == utils.ErrCodeNotFound
}

// IsAuthError reports whether err requires user re-authentication.
func IsAuthError(err error) bool {
	switch utils.CodeOf(err) {
	case utils.ErrCodeAuthRequired, utils.ErrCodeAuthExpired, utils.ErrCodeNotSignedIn:
		return true
	}
	return false
}
