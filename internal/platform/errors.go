package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("platform resource not found")
	ErrUnauthorized = errors.New("platform credential rejected")
)

// Error is a failed platform call. Transient errors are safe to retry.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("platform ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
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

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// RetryAfter returns the delay the platform asked for, if any.
func RetryAfter(err error) time.Duration {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

// classify turns a non-2xx response into an *Error. 429, 5xx and 403
// responses that carry rate-limit signals are transient.
func classify(op string, resp *http.Response, message string, now time.Time) *Error {
	e := &Error{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    message,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Transient = true
	case resp.StatusCode >= 500:
		e.Transient = true
	case resp.StatusCode == http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" ||
			resp.Header.Get("Retry-After") != "" ||
			strings.Contains(strings.ToLower(message), "secondary rate limit") {
			e.Transient = true
		}
	}

	if e.Transient {
		e.RetryAfter = retryAfterFromHeaders(resp.Header, now)
	}
	return e
}

func retryAfterFromHeaders(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil && t.After(now) {
			return t.Sub(now)
		}
	}
	if h.Get("X-RateLimit-Remaining") == "0" {
		if v := h.Get("X-RateLimit-Reset"); v != "" {
			if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
				if reset := time.Unix(epoch, 0); reset.After(now) {
					return reset.Sub(now)
				}
			}
		}
	}
	return 0
}
