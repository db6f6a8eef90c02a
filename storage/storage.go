// Package storage defines the credential store contract used by the token
// lifecycle manager, together with the credential record it persists.
package storage

import (
	"context"
	"errors"
	"time"
)

// CredentialStore persists one credential set. Implementations must be safe for
// concurrent use. All methods accept context.Context for tracing and
// cancellation.
type CredentialStore interface {
	// Get returns the stored credentials, or ErrCredentialsNotFound when none
	// have been stored.
	Get(ctx context.Context) (*Credentials, error)

	// Set applies a partial update. Fields left nil in the update are kept.
	Set(ctx context.Context, update CredentialsUpdate) error
}

// ErrCredentialsNotFound is returned by Get when the store holds no credentials.
var ErrCredentialsNotFound = errors.New("credentials not found")

// Source records where a credential set was issued.
type Source string

const (
	// SourceNative marks credentials issued or refreshed by this client.
	SourceNative Source = "native"

	// SourceCLI marks credentials imported from the legacy CLI login.
	SourceCLI Source = "cli"

	// SourceUnknown is the zero value: provenance was never recorded.
	SourceUnknown Source = ""
)

// ParseSource maps a stored provenance tag to a Source. Unrecognised tags are
// reported as SourceUnknown.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceNative, SourceCLI:
		return Source(s)
	default:
		return SourceUnknown
	}
}

// Effective returns the source used for migration decisions. Credentials with
// no recorded provenance predate the tag and are treated as legacy CLI tokens.
func (s Source) Effective() Source {
	if s == SourceUnknown {
		return SourceCLI
	}
	return s
}

// IsLegacy reports whether credentials from this source need migration when
// their refresh token is rejected.
func (s Source) IsLegacy() bool {
	return s.Effective() == SourceCLI
}

func (s Source) String() string {
	if s == SourceUnknown {
		return "unknown"
	}
	return string(s)
}

// Credentials is a stored OAuth credential set.
type Credentials struct {
	AccessToken  string
	RefreshToken string    // empty when absent
	ExpiresAt    time.Time // zero when absent
	Source       Source
}

// HasAccessToken reports whether an access token is present.
func (c *Credentials) HasAccessToken() bool {
	return c != nil && c.AccessToken != ""
}

// HasRefreshToken reports whether a refresh token is present.
func (c *Credentials) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

// ExpiredAt reports whether the access token is expired at now, treating tokens
// that expire within margin as already expired. Credentials without an expiry
// never expire.
func (c *Credentials) ExpiredAt(now time.Time, margin time.Duration) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}

// Clone returns a copy of c.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// CredentialsUpdate is a partial update of a credential set. A nil field leaves
// the stored value unchanged; a pointer to the zero value clears it.
type CredentialsUpdate struct {
	AccessToken  *string
	RefreshToken *string
	ExpiresAt    *time.Time
	Source       *Source
}

// IsEmpty reports whether the update changes nothing.
func (u CredentialsUpdate) IsEmpty() bool {
	return u.AccessToken == nil && u.RefreshToken == nil && u.ExpiresAt == nil && u.Source == nil
}

// Apply returns a copy of current with the update applied. A nil current is
// treated as an empty credential set.
func (u CredentialsUpdate) Apply(current *Credentials) *Credentials {
	next := &Credentials{}
	if current != nil {
		*next = *current
	}
	if u.AccessToken != nil {
		next.AccessToken = *u.AccessToken
	}
	if u.RefreshToken != nil {
		next.RefreshToken = *u.RefreshToken
	}
	if u.ExpiresAt != nil {
		next.ExpiresAt = *u.ExpiresAt
	}
	if u.Source != nil {
		next.Source = *u.Source
	}
	return next
}

// ClearTokens returns an update that empties the access token and removes the
// refresh token and expiry. Provenance is kept.
func ClearTokens() CredentialsUpdate {
	var empty string
	var zero time.Time
	return CredentialsUpdate{
		AccessToken:  &empty,
		RefreshToken: &empty,
		ExpiresAt:    &zero,
	}
}

// ReplaceTokens returns an update that writes a full token set.
func ReplaceTokens(accessToken, refreshToken string, expiresAt time.Time, source Source) CredentialsUpdate {
	return CredentialsUpdate{
		AccessToken:  &accessToken,
		RefreshToken: &refreshToken,
		ExpiresAt:    &expiresAt,
		Source:       &source,
	}
}
