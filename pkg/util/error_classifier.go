package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// HTTPStatusError carries a provider's non-2xx response status so the
// classifier can decide retryability from the code.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d", e.StatusCode)
}

// IsRetryableError classifies a delivery or store error.
// Returns (isRetryable, errorType). Transient transport problems are
// retryable; malformed payloads, missing rows and constraint conflicts are
// not.
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	errStr := err.Error()

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if RetryableStatusCode(statusErr.StatusCode) {
			return true, "provider_status"
		}
		return false, "provider_status"
	}

	// Malformed payloads never get better on retry.
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false, "json_decode_error"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "row_not_found"
	}
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "unique constraint") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "timeout") {
		return true, "db_connection_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	// Unknown errors are handled conservatively: no retry.
	return false, "unknown_error"
}

// RetryableStatusCode classifies a provider HTTP status code: 408, 429 and
// 5xx are worth retrying, other 4xx are permanent.
func RetryableStatusCode(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code < 600
}
