package sheets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/easeware/snippetd/executor"
)

// Sentinel errors for well-known API statuses.
var (
	// ErrUnauthorized indicates the token was rejected even after a refresh, or the
	// grant was revoked.
	ErrUnauthorized = errors.New("sheets: unauthorised (invalid credentials)")
	ErrForbidden    = errors.New("sheets: forbidden (insufficient permissions)")
	ErrNotFound     = errors.New("sheets: resource not found")
	ErrRateLimited  = errors.New("sheets: rate limit exceeded")

	// ErrNoToken indicates the account has no stored token.
	ErrNoToken = errors.New("sheets: no token for account")
)

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Attempts   int
	// API holds Google's structured error body when it could be parsed.
	API  *googleapi.Error
	kind error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("sheets: status %d after %d attempt(s)", e.StatusCode, e.Attempts)
	if e.API != nil && e.API.Message != "" {
		msg += ": " + e.API.Message
	}
	return msg
}

// Unwrap exposes both the sentinel for the status and the API error.
func (e *StatusError) Unwrap() []error {
	var errs []error
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.API != nil {
		errs = append(errs, e.API)
	}
	return errs
}

// CheckResult returns nil for 2xx results and a *StatusError otherwise.
func CheckResult(res *executor.Result) error {
	if res == nil {
		return errors.New("sheets: nil result")
	}
	if executor.IsSuccessStatus(res.StatusCode) {
		return nil
	}

	se := &StatusError{StatusCode: res.StatusCode, Attempts: res.Attempts, kind: sentinelFor(res.StatusCode)}

	// googleapi parses the JSON error envelope from an *http.Response.
	err := googleapi.CheckResponse(&http.Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       io.NopCloser(bytes.NewReader(res.Body)),
	})
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		se.API = gerr
	}
	return se
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}
