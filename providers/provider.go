// Package providers defines the token refresh collaborator used by the token
// lifecycle manager, and the result and error types it exchanges.
package providers

import (
	"context"
	"time"
)

// TokenRefresher exchanges a refresh token for a new token set at the
// provider's token endpoint.
//
// Implementations should return a *RefreshError when the token endpoint
// answered with an OAuth error response, so callers can tell a rejected refresh
// token apart from a transport failure.
type TokenRefresher interface {
	// RefreshToken performs the refresh_token grant
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// TokenRefresherFunc adapts a function to the TokenRefresher interface.
type TokenRefresherFunc func(ctx context.Context, refreshToken string) (*TokenResponse, error)

// RefreshToken calls f(ctx, refreshToken).
func (f TokenRefresherFunc) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return f(ctx, refreshToken)
}

// TokenResponse is the result of a successful refresh
type TokenResponse struct {
	// AccessToken is the newly issued access token
	AccessToken string

	// RefreshToken is the rotated refresh token. Empty when the provider did
	// not rotate it, in which case the previous refresh token stays valid.
	RefreshToken string

	// ExpiresAt is when the access token expires. Zero when the provider did
	// not say.
	ExpiresAt time.Time

	// TokenType is usually "Bearer"
	TokenType string

	// Scopes granted, when reported by the provider
	Scopes []string
}
