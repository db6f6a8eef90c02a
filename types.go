package oauth

import (
	"github.com/giantswarm/mcp-oauth-client/discovery"
	"github.com/giantswarm/mcp-oauth-client/security"
	"github.com/giantswarm/mcp-oauth-client/storage"
	"github.com/giantswarm/mcp-oauth-client/token"
)

// Aliases for the types returned by Client
type (
	// AuthServerMetadata is RFC 8414 authorization server metadata
	AuthServerMetadata = discovery.AuthServerMetadata

	// ProtectedResourceMetadata is an RFC 9728 protected resource document
	ProtectedResourceMetadata = discovery.ProtectedResourceMetadata

	// DiscoveryResult describes a discovery run
	DiscoveryResult = discovery.Result

	// LogFunc receives discovery progress messages
	LogFunc = discovery.LogFunc

	// TokenResult is the outcome of GetValidToken
	TokenResult = token.Result

	// MigrationInfo asks the user to sign in again
	MigrationInfo = token.MigrationInfo

	// AuthState is a read-only authentication snapshot
	AuthState = token.AuthState

	// Credentials is a stored credential set
	Credentials = storage.Credentials
)

// GenerateEncryptionKey returns a random 32-byte AES-256 key for
// SecurityConfig.EncryptionKey
func GenerateEncryptionKey() ([]byte, error) {
	return security.GenerateKey()
}
