package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// RefreshWithConfig performs the refresh_token grant through config's token
// source, using httpClient for the request. Error responses from the token
// endpoint are returned as *RefreshError; everything else is wrapped as is.
func RefreshWithConfig(ctx context.Context, config *oauth2.Config, httpClient *http.Client, refreshToken string) (*TokenResponse, error) {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	// An expired token with only a refresh token forces the source to refresh.
	token := &oauth2.Token{
		RefreshToken: refreshToken,
	}

	newToken, err := config.TokenSource(ctx, token).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return nil, fmt.Errorf("failed to refresh token: %w", NewRefreshError(re.ErrorCode, re.ErrorDescription, status))
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	resp := &TokenResponse{
		AccessToken: newToken.AccessToken,
		ExpiresAt:   newToken.Expiry,
		TokenType:   newToken.TokenType,
	}

	// The token source copies the old refresh token forward when the provider
	// does not rotate it; report only genuine rotations.
	if newToken.RefreshToken != refreshToken {
		resp.RefreshToken = newToken.RefreshToken
	}

	if scope, ok := newToken.Extra("scope").(string); ok && scope != "" {
		resp.Scopes = splitScope(scope)
	}

	return resp, nil
}
