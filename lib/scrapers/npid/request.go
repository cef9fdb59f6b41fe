package npid

import (
	"net/http"
	"net/url"
)

// ContentType is the payload a caller expects an endpoint to answer
// with. the classifier uses it to recognize the dashboard's habit of
// answering JSON endpoints with a login page.
type ContentType int

const (
	// a structured JSON body
	ExpectJSON ContentType = iota
	// an HTML fragment (dropdowns, table rows)
	ExpectHTML
	// endpoints documented to answer 200 with an empty body
	ExpectEmpty
)

// FormRequest describes one call against the legacy dashboard. it is
// immutable once built and deliberately carries no anti-forgery token:
// the token is read off the session at execution time so a queued
// request can never go out with a stale one.
type FormRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Expect ContentType

	// mutating requests carry the session `_token` field
	NeedsToken bool
	// exactly one endpoint family (season fetch) carries the scout
	// api key on top of the token
	NeedsAPIKey bool
}

// RawOutcome is the untouched upstream response.
type RawOutcome struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
