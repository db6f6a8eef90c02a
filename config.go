package oauth

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/providers"
	"github.com/giantswarm/mcp-oauth-client/safefetch"
	"github.com/giantswarm/mcp-oauth-client/security"
	"github.com/giantswarm/mcp-oauth-client/storage"
	"github.com/giantswarm/mcp-oauth-client/token"
)

// Config holds the client configuration.
// Structured using composition, one sub-config per concern.
type Config struct {
	// Discovery settings for outbound metadata fetches
	Discovery DiscoveryConfig

	// Token lifecycle settings
	Token TokenConfig

	// Provider is the token endpoint used for refresh. Ignored when Refresher
	// is set.
	Provider ProviderConfig

	// Security settings (secure by default)
	Security SecurityConfig

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// HTTPClient is used for discovery and token endpoint requests.
	// If not provided, the fetcher builds its own clients with a 10s timeout.
	// Redirects are never followed during discovery.
	HTTPClient *http.Client

	// Instrumentation enables metrics and tracing (optional, no-op by default)
	Instrumentation *instrumentation.Instrumentation

	// Store persists credentials. Defaults to an in-memory store, encrypted
	// when Security.EncryptionKey is set.
	Store storage.CredentialStore

	// Refresher overrides the refresher built from Provider
	Refresher providers.TokenRefresher

	// AccountConfig supplies billing and workspace details to GetAuthState (optional)
	AccountConfig token.AccountConfigProvider

	// Clock is the time source for expiry checks (default: system clock)
	Clock token.Clock

	// Resolver resolves host names for the SSRF checks (default: net.DefaultResolver)
	Resolver safefetch.Resolver
}

// DiscoveryConfig holds metadata discovery settings
type DiscoveryConfig struct {
	// Timeout bounds each discovery request when HTTPClient is not set.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxBodyBytes bounds metadata document size.
	// Default: 1 MiB
	MaxBodyBytes int64

	// UserAgent is sent with every discovery request.
	// Default: "mcp-oauth-client"
	UserAgent string

	// HostRateLimit is requests per second allowed per remote host.
	// Zero disables limiting.
	HostRateLimit float64

	// HostBurst is the maximum burst size per remote host.
	// Default: 5 when HostRateLimit is set
	HostBurst int
}

// TokenConfig holds token lifecycle settings
type TokenConfig struct {
	// ExpiryMargin refreshes tokens this long before they expire.
	// Default: 60 seconds
	ExpiryMargin time.Duration

	// MigrationMessage is the prompt returned when a legacy credential must
	// be replaced. Default: token.DefaultMigrationMessage
	MigrationMessage string

	// Namespace labels logs and audit events, and scopes the derived
	// encryption key. Default: "default"
	Namespace string
}

// ProviderConfig holds the token endpoint settings
type ProviderConfig struct {
	// TokenURL is the provider's token endpoint (https)
	TokenURL string

	// ClientID is the OAuth client identifier (required with TokenURL)
	ClientID string

	// ClientSecret is empty for public clients
	ClientSecret string

	// Scopes requested on refresh
	Scopes []string
}

// SecurityConfig holds security settings (secure by default)
type SecurityConfig struct {
	// EncryptionKey is the 32-byte master key for tokens at rest in the
	// default store. The data key is derived from it per Token.Namespace.
	// Nil disables encryption. Generate with GenerateEncryptionKey().
	EncryptionKey []byte

	// EnableAuditLogging enables security audit logging.
	// Logs blocked fetches and token lifecycle events (sensitive data hashed).
	EnableAuditLogging bool

	// AllowPrivateNetworks disables the private address checks on URLs taken
	// from remote responses. https is still required.
	// WARNING: Enables SSRF. Only for tests against local servers.
	AllowPrivateNetworks bool
}

const (
	// DefaultHostBurst is the per-host burst when HostRateLimit is set
	DefaultHostBurst = 5
)

// applyDefaults fills unset values. It does not validate.
func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Discovery.Timeout == 0 {
		c.Discovery.Timeout = safefetch.DefaultTimeout
	}
	if c.Discovery.MaxBodyBytes == 0 {
		c.Discovery.MaxBodyBytes = safefetch.DefaultMaxBodyBytes
	}
	if c.Discovery.UserAgent == "" {
		c.Discovery.UserAgent = safefetch.DefaultUserAgent
	}
	if c.Discovery.HostRateLimit > 0 && c.Discovery.HostBurst == 0 {
		c.Discovery.HostBurst = DefaultHostBurst
	}
	if c.Token.ExpiryMargin == 0 {
		c.Token.ExpiryMargin = token.DefaultExpiryMargin
	}
	if c.Token.MigrationMessage == "" {
		c.Token.MigrationMessage = token.DefaultMigrationMessage
	}
	if c.Token.Namespace == "" {
		c.Token.Namespace = token.DefaultNamespace
	}
}

// Validate checks the configuration. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Discovery.Timeout < 0 {
		return invalidConfig("discovery timeout must not be negative")
	}
	if c.Discovery.MaxBodyBytes < 0 {
		return invalidConfig("discovery max body bytes must not be negative")
	}
	if c.Discovery.HostRateLimit < 0 || c.Discovery.HostBurst < 0 {
		return invalidConfig("discovery rate limit must not be negative")
	}
	if c.Token.ExpiryMargin < 0 {
		return invalidConfig("token expiry margin must not be negative")
	}
	if n := len(c.Security.EncryptionKey); n != 0 && n != security.KeySize {
		return invalidConfig(fmt.Sprintf("encryption key must be %d bytes, got %d", security.KeySize, n))
	}

	if c.Refresher == nil && c.Provider.TokenURL != "" {
		if c.Provider.ClientID == "" {
			return invalidConfig("provider client ID is required with a token URL")
		}
		u, err := url.Parse(c.Provider.TokenURL)
		if err != nil || u.Host == "" {
			return invalidConfig(fmt.Sprintf("provider token URL %q is not an absolute URL", c.Provider.TokenURL))
		}
		if u.Scheme != "https" && !c.Security.AllowPrivateNetworks {
			return invalidConfig("provider token URL must use https")
		}
		if err := providers.ValidateScopes(c.Provider.Scopes); err != nil {
			return invalidConfig(err.Error())
		}
	}

	return nil
}

// logSecurityWarnings logs settings that weaken the defaults
func (c *Config) logSecurityWarnings() {
	if c.Security.AllowPrivateNetworks {
		c.Logger.Warn("SECURITY WARNING: private network discovery is allowed",
			"risk", "SSRF against internal services",
			"recommendation", "only enable for local testing")
	}
	if c.Store == nil && len(c.Security.EncryptionKey) == 0 {
		c.Logger.Debug("Token encryption at rest is disabled for the in-memory store")
	}
}
