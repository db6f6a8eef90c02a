package safefetch

import (
	"errors"
	"fmt"
)

var (
	// ErrBlockedURL matches every *BlockedURLError via errors.Is.
	ErrBlockedURL = errors.New("blocked URL")

	// ErrRateLimited is returned when the per-host limiter rejects a fetch.
	ErrRateLimited = errors.New("outbound fetch rate limit exceeded")

	// ErrBodyTooLarge is returned by ReadBody when a response exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body exceeds maximum allowed size")
)

// Block reasons. They are stable values suitable for metric attributes.
const (
	ReasonInvalidURL      = "invalid_url"
	ReasonScheme          = "non_https_scheme"
	ReasonMissingHost     = "missing_host"
	ReasonBlockedHostname = "blocked_hostname"
	ReasonBlockedAddress  = "blocked_address"
	ReasonDNSFailure      = "dns_failure"
	ReasonNoAddresses     = "no_addresses"
)

// BlockedURLError reports a URL refused by fetch policy. No connection was
// attempted.
type BlockedURLError struct {
	URL    string
	Reason string
	Detail string
}

func (e *BlockedURLError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("blocked URL %q: %s (%s)", e.URL, e.Reason, e.Detail)
	}
	return fmt.Sprintf("blocked URL %q: %s", e.URL, e.Reason)
}

// Is lets errors.Is(err, ErrBlockedURL) match.
func (e *BlockedURLError) Is(target error) bool {
	return target == ErrBlockedURL
}

func blocked(rawURL, reason, detail string) *BlockedURLError {
	return &BlockedURLError{URL: rawURL, Reason: reason, Detail: detail}
}
