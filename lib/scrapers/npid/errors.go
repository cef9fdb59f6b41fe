package npid

import (
	"errors"
	"fmt"
)

// ErrAuthentication means there is no valid session and no way to
// establish one. it is fatal and never retried.
var ErrAuthentication = errors.New("no valid session and no way to establish one")

var ErrClosed = errors.New("client is closed")

// the upstream body excerpt retained on errors for debugging
const maxDiagnosticLen = 500

// UpstreamError means the legacy server answered, but with a failure
// or a payload that could not be interpreted. it is surfaced to the
// caller with a short excerpt of the raw body and never retried.
type UpstreamError struct {
	Code    int
	Excerpt string
}

func (e *UpstreamError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("upstream error: http %d", e.Code)
	}
	return fmt.Sprintf("upstream error: http %d: %s", e.Code, e.Excerpt)
}

// ValidationError means a typed input failed a precondition before any
// network call was issued.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func excerpt(body []byte) string {
	if len(body) > maxDiagnosticLen {
		return string(body[:maxDiagnosticLen])
	}
	return string(body)
}

func upstreamError(out RawOutcome) *UpstreamError {
	return &UpstreamError{Code: out.StatusCode, Excerpt: excerpt(out.Body)}
}
