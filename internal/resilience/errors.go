package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Kind classifies an external-call or persistence failure. Each kind maps to
// exactly one handling policy: retry, record, or abort.
type Kind int

const (
	// KindUnknown is any error that carries no classification. It is
	// recorded against the record and never retried.
	KindUnknown Kind = iota
	// KindNotFound means the remote system has no match.
	KindNotFound
	// KindRateLimited means the remote system asked us to slow down.
	KindRateLimited
	// KindNetwork covers timeouts, connection failures and 5xx responses.
	KindNetwork
	// KindPersistence means output, checkpoint or cache could not be written.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindNetwork:
		return "network_error"
	case KindPersistence:
		return "persistence_error"
	default:
		return "error"
	}
}

// Error is a classified failure.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	// RetryAfter is the server-requested delay, if any.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports that op found nothing.
func NotFound(op string) error {
	return &Error{Kind: KindNotFound, Op: op}
}

// RateLimited reports a 429-style response.
func RateLimited(op string, statusCode int, retryAfter time.Duration, err error) error {
	return &Error{Kind: KindRateLimited, Op: op, StatusCode: statusCode, RetryAfter: retryAfter, Err: err}
}

// Network reports a transport failure or a transient server error.
func Network(op string, statusCode int, err error) error {
	return &Error{Kind: KindNetwork, Op: op, StatusCode: statusCode, Err: err}
}

// Persistence reports a failed durable write. It aborts the batch.
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Op: op, Err: err}
}

// KindOf returns the classification of err. Unclassified transport errors
// (timeouts, resets, DNS failures) are reported as KindNetwork.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if IsTransient(err) {
		return KindNetwork
	}
	return KindUnknown
}

// IsNotFound reports whether err is a not-found classification.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsPersistence reports whether err is a persistence failure.
func IsPersistence(err error) bool {
	return KindOf(err) == KindPersistence
}

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// retryAfter extracts the delay from an error chain, or zero.
func retryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsTransient returns true if the error matches common transient network
// failure patterns (timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"unexpected eof",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// FromHTTPStatus classifies a non-2xx HTTP response. It returns nil for 2xx.
// Statuses that are neither not-found nor transient come back unclassified.
func FromHTTPStatus(op string, statusCode int, header http.Header, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	detail := fmt.Errorf("status %d: %s", statusCode, truncate(string(body), 200))

	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return &Error{Kind: KindNotFound, Op: op, StatusCode: statusCode}
	case statusCode == http.StatusTooManyRequests || statusCode == 529:
		return RateLimited(op, statusCode, ParseRetryAfter(header), detail)
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return Network(op, statusCode, detail)
	default:
		return &Error{Kind: KindUnknown, Op: op, StatusCode: statusCode, Err: detail}
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
