package providers

import (
	"errors"
	"fmt"
)

// OAuth error codes returned by token endpoints (RFC 6749 section 5.2)
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"

	// ErrorCodeInvalidRefreshToken is not in RFC 6749 but is returned by some
	// providers for unknown or revoked refresh tokens.
	ErrorCodeInvalidRefreshToken = "invalid_refresh_token"
)

// RefreshError is an OAuth error response from a token endpoint.
type RefreshError struct {
	Code        string
	Description string
	Status      int
}

func (e *RefreshError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("token endpoint returned status %d", e.Status)
}

// NewRefreshError creates a new RefreshError
func NewRefreshError(code, description string, status int) *RefreshError {
	return &RefreshError{
		Code:        code,
		Description: description,
		Status:      status,
	}
}

// AsRefreshError returns the RefreshError in err's chain, if any.
func AsRefreshError(err error) (*RefreshError, bool) {
	var re *RefreshError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
