package npid

import (
	"strings"
)

// Verdict is what a raw outcome means for the session.
type Verdict int

const (
	VerdictOk Verdict = iota
	// the session cookie or anti-forgery token has silently expired,
	// recoverable by refreshing the token and replaying once
	VerdictSessionExpired
	// a legitimate upstream failure, never retried
	VerdictUpstreamError
)

// Laravel answers a stale anti-forgery token with 419
const statusTokenMismatch = 419

// Classify decides whether an outcome represents a session/CSRF
// failure, a legitimate upstream error, or a success. it performs no
// I/O and is deterministic.
func Classify(out RawOutcome, expect ContentType) Verdict {
	if out.StatusCode == statusTokenMismatch {
		return VerdictSessionExpired
	}

	if out.StatusCode >= 300 && out.StatusCode < 400 {
		location := out.Header.Get("Location")
		if strings.Contains(location, "/login") {
			return VerdictSessionExpired
		}
	}

	// redirects are normally followed by the http client, so an
	// expired session usually arrives as the login page itself under a
	// 200, whatever the endpoint was supposed to answer with
	if isLoginPage(out) {
		return VerdictSessionExpired
	}

	// a whole HTML document where a structured or empty body belongs
	// means the same thing. endpoints that answer with HTML serve full
	// pages legitimately, those only fail on the login markers above.
	if expect != ExpectHTML && out.StatusCode == 200 && isHtmlDocument(out) {
		return VerdictSessionExpired
	}

	if out.StatusCode >= 400 {
		return VerdictUpstreamError
	}

	return VerdictOk
}

// matches the dashboard's login page by its title markers.
func isLoginPage(out RawOutcome) bool {
	if !strings.Contains(out.Header.Get("Content-Type"), "text/html") {
		return false
	}
	body := strings.ToLower(string(out.Body))
	return strings.Contains(body, "<title>login</title>") ||
		strings.Contains(body, "national prospect id | login")
}

// recognizes a full HTML document standing in for a structured
// response. an HTML fragment like an `<option>` list does not count,
// only a whole page does.
func isHtmlDocument(out RawOutcome) bool {
	body := strings.ToLower(strings.TrimSpace(string(out.Body)))
	return strings.HasPrefix(body, "<!doctype html") || strings.HasPrefix(body, "<html")
}
