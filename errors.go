package oauth

import (
	"errors"
	"fmt"

	"github.com/giantswarm/mcp-oauth-client/discovery"
	"github.com/giantswarm/mcp-oauth-client/providers"
	"github.com/giantswarm/mcp-oauth-client/safefetch"
)

// ErrInvalidConfig is wrapped by every configuration validation error
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrNoRefresher is reported when a token expires and neither a provider nor
// a refresher was configured
var ErrNoRefresher = errors.New("no token refresher configured")

func invalidConfig(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

// Re-exported error types, so callers need not import the subpackages
type (
	// BlockedURLError reports a URL refused by the fetch policy
	BlockedURLError = safefetch.BlockedURLError

	// MalformedMetadataError reports an invalid metadata document
	MalformedMetadataError = discovery.MalformedMetadataError

	// RefreshError is an OAuth error response from a token endpoint
	RefreshError = providers.RefreshError
)

// ErrBlockedURL matches any *BlockedURLError via errors.Is
var ErrBlockedURL = safefetch.ErrBlockedURL
