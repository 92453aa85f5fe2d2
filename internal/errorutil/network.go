package errorutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// ErrStatus marks a response that arrived with a non-200 status
var ErrStatus = errors.New("unexpected HTTP status")

// NetworkError describes a failed upstream call: either a transport error or
// a response whose status was not 200.
type NetworkError struct {
	Source     string // upstream name, e.g. "weatherapi", "power"
	Operation  string // e.g. "current", "history 2024-09-03"
	URL        string // endpoint without query string
	StatusCode int    // 0 for transport errors
	Underlying error
	Retryable  bool
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed for %s: HTTP %d: %v", e.Source, e.Operation, e.URL, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("%s %s failed for %s: %v", e.Source, e.Operation, e.URL, e.Underlying)
}

func (e *NetworkError) Unwrap() error {
	return e.Underlying
}

// NewNetworkError wraps a transport error
func NewNetworkError(source, operation, url string, err error) *NetworkError {
	return &NetworkError{
		Source:     source,
		Operation:  operation,
		URL:        url,
		Underlying: err,
		Retryable:  isRetryableError(err),
	}
}

// NewStatusError wraps a non-200 response. body is truncated for the message.
func NewStatusError(source, operation, url string, statusCode int, body []byte) *NetworkError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	underlying := ErrStatus
	if msg != "" {
		underlying = fmt.Errorf("%w: %s", ErrStatus, msg)
	}
	return &NetworkError{
		Source:     source,
		Operation:  operation,
		URL:        url,
		StatusCode: statusCode,
		Underlying: underlying,
		Retryable:  IsRetryableStatus(statusCode),
	}
}

// LogNetworkError logs a network error with structured context
func LogNetworkError(logger *slog.Logger, netErr *NetworkError) *NetworkError {
	if logger == nil {
		return netErr
	}

	attrs := []any{
		slog.String("source", netErr.Source),
		slog.String("operation", netErr.Operation),
		slog.String("url", netErr.URL),
		slog.String("error", netErr.Underlying.Error()),
		slog.Bool("retryable", netErr.Retryable),
	}
	if netErr.StatusCode > 0 {
		attrs = append(attrs, slog.Int("status_code", netErr.StatusCode))
	}

	level := slog.LevelError
	if netErr.Retryable {
		level = slog.LevelWarn
	}

	logger.Log(context.Background(), level, "Network operation failed", attrs...)
	return netErr
}

// IsRetryableStatus reports whether an HTTP status suggests a transient failure
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// isRetryableError determines if an error is likely to be resolved by retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Retryable
	}

	return isTimeoutError(err) || isDNSError(err) || isConnectionRefusedError(err)
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout)
}

func isConnectionRefusedError(err error) bool {
	return strings.Contains(err.Error(), "connection refused")
}
