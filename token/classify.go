package token

import (
	"context"
	"errors"
	"strings"

	"github.com/giantswarm/mcp-oauth-client/providers"
)

// FailureKind classifies a failed refresh.
type FailureKind string

const (
	// FailureNone is reported for a nil error
	FailureNone FailureKind = ""

	// FailureIncompatibleToken means the refresh token itself was rejected.
	// Stored tokens are cleared.
	FailureIncompatibleToken FailureKind = "incompatible_token"

	// FailureTransient covers network errors, timeouts and anything
	// unrecognised. Stored tokens are kept.
	FailureTransient FailureKind = "transient"
)

// incompatibleTokenSignatures are matched case-insensitively against error
// messages from refreshers that do not return a *providers.RefreshError.
var incompatibleTokenSignatures = []string{
	providers.ErrorCodeInvalidGrant,
	providers.ErrorCodeInvalidRefreshToken,
	"refresh token not found or invalid",
	"refresh token is invalid",
}

// ClassifyRefreshError decides whether err means the refresh token is no
// longer usable. A *providers.RefreshError carrying invalid_grant or
// invalid_refresh_token is decisive; otherwise the message is matched against
// known signatures. Context cancellation is always transient.
func ClassifyRefreshError(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}

	if re, ok := providers.AsRefreshError(err); ok {
		switch re.Code {
		case providers.ErrorCodeInvalidGrant, providers.ErrorCodeInvalidRefreshToken:
			return FailureIncompatibleToken
		}
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range incompatibleTokenSignatures {
		if strings.Contains(msg, sig) {
			return FailureIncompatibleToken
		}
	}
	return FailureTransient
}
