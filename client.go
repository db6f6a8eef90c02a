package oauth

import (
	"context"
	"fmt"

	"github.com/giantswarm/mcp-oauth-client/discovery"
	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/providers"
	provideroauth2 "github.com/giantswarm/mcp-oauth-client/providers/oauth2"
	"github.com/giantswarm/mcp-oauth-client/safefetch"
	"github.com/giantswarm/mcp-oauth-client/security"
	"github.com/giantswarm/mcp-oauth-client/storage"
	"github.com/giantswarm/mcp-oauth-client/storage/memory"
	"github.com/giantswarm/mcp-oauth-client/token"
)

// Client discovers authorization servers for MCP resources and hands out
// valid access tokens for one stored credential set.
type Client struct {
	config     *Config
	fetcher    *safefetch.Fetcher
	discoverer *discovery.Discoverer
	manager    *token.Manager
	store      storage.CredentialStore
	auditor    *security.Auditor
	inst       *instrumentation.Instrumentation
}

// New creates a Client from cfg. cfg is copied; later changes have no effect.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	config := *cfg
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.logSecurityWarnings()

	inst := instrumentation.OrNoop(config.Instrumentation)
	auditor := security.NewAuditor(config.Logger, config.Security.EnableAuditLogging)

	fetcher := safefetch.New(safefetch.Config{
		HTTPClient:           config.HTTPClient,
		Resolver:             config.Resolver,
		Timeout:              config.Discovery.Timeout,
		MaxBodyBytes:         config.Discovery.MaxBodyBytes,
		UserAgent:            config.Discovery.UserAgent,
		HostRateLimit:        config.Discovery.HostRateLimit,
		HostBurst:            config.Discovery.HostBurst,
		AllowPrivateNetworks: config.Security.AllowPrivateNetworks,
		Logger:               config.Logger,
		Auditor:              auditor,
		Instrumentation:      inst,
	})

	discoverer := discovery.New(discovery.Config{
		Fetcher:         fetcher,
		Logger:          config.Logger,
		Instrumentation: inst,
	})

	store, err := newStore(&config, inst)
	if err != nil {
		return nil, err
	}

	refresher, err := newRefresher(&config, inst)
	if err != nil {
		return nil, err
	}

	manager := token.NewManager(store, refresher,
		token.WithClock(config.Clock),
		token.WithLogger(config.Logger),
		token.WithExpiryMargin(config.Token.ExpiryMargin),
		token.WithInstrumentation(inst),
		token.WithAuditor(auditor),
		token.WithMigrationMessage(config.Token.MigrationMessage),
		token.WithNamespace(config.Token.Namespace),
		token.WithAccountConfig(config.AccountConfig),
	)

	config.Logger.Debug("OAuth client created",
		"namespace", config.Token.Namespace,
		"token_url_configured", config.Provider.TokenURL != "",
		"audit_logging", config.Security.EnableAuditLogging)

	return &Client{
		config:     &config,
		fetcher:    fetcher,
		discoverer: discoverer,
		manager:    manager,
		store:      store,
		auditor:    auditor,
		inst:       inst,
	}, nil
}

func newStore(config *Config, inst *instrumentation.Instrumentation) (storage.CredentialStore, error) {
	if config.Store != nil {
		return config.Store, nil
	}

	store := memory.New()
	store.SetLogger(config.Logger)
	store.SetInstrumentation(inst)
	if len(config.Security.EncryptionKey) > 0 {
		enc, err := newEncryptor(config)
		if err != nil {
			return nil, err
		}
		if err := store.SetEncryptor(enc); err != nil {
			return nil, fmt.Errorf("failed to enable store encryption: %w", err)
		}
	}
	return store, nil
}

// newEncryptor derives the namespace's data key from Security.EncryptionKey.
func newEncryptor(config *Config) (*security.Encryptor, error) {
	key, err := security.DeriveKey(config.Security.EncryptionKey, config.Token.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to derive namespace key: %w", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return enc, nil
}

func newRefresher(config *Config, inst *instrumentation.Instrumentation) (providers.TokenRefresher, error) {
	if config.Refresher != nil {
		return config.Refresher, nil
	}
	if config.Provider.TokenURL == "" {
		return providers.TokenRefresherFunc(func(context.Context, string) (*providers.TokenResponse, error) {
			return nil, ErrNoRefresher
		}), nil
	}

	p, err := provideroauth2.NewProvider(&provideroauth2.Config{
		TokenURL:              config.Provider.TokenURL,
		ClientID:              config.Provider.ClientID,
		ClientSecret:          config.Provider.ClientSecret,
		Scopes:                config.Provider.Scopes,
		HTTPClient:            config.HTTPClient,
		AllowInsecureTokenURL: config.Security.AllowPrivateNetworks,
		Logger:                config.Logger,
		Instrumentation:       inst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token provider: %w", err)
	}
	return p, nil
}

// Discover returns the authorization server metadata for resourceURL, or nil
// if none could be found. onLog may be nil.
func (c *Client) Discover(ctx context.Context, resourceURL string, onLog LogFunc) *AuthServerMetadata {
	return c.discoverer.Discover(ctx, resourceURL, onLog)
}

// DiscoverWithDetails is Discover, also reporting which tier succeeded
func (c *Client) DiscoverWithDetails(ctx context.Context, resourceURL string, onLog LogFunc) *DiscoveryResult {
	return c.discoverer.DiscoverWithDetails(ctx, resourceURL, onLog)
}

// DiscoverFromChallenge resumes discovery from a WWW-Authenticate header the
// caller received from resourceURL
func (c *Client) DiscoverFromChallenge(ctx context.Context, resourceURL, wwwAuthenticate string, onLog LogFunc) *DiscoveryResult {
	return c.discoverer.DiscoverFromChallenge(ctx, resourceURL, wwwAuthenticate, onLog)
}

// GetValidToken returns a valid access token, refreshing it if needed
func (c *Client) GetValidToken(ctx context.Context) TokenResult {
	return c.manager.GetValidToken(ctx)
}

// GetAuthState returns a read-only snapshot of the authentication state
func (c *Client) GetAuthState(ctx context.Context) AuthState {
	return c.manager.GetAuthState(ctx)
}

// SaveCredentials stores a credential set obtained by a sign-in flow
func (c *Client) SaveCredentials(ctx context.Context, creds *Credentials) error {
	if !creds.HasAccessToken() {
		return fmt.Errorf("access token is required")
	}
	update := storage.ReplaceTokens(creds.AccessToken, creds.RefreshToken, creds.ExpiresAt, creds.Source)
	if err := c.store.Set(ctx, update); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// Logout clears the stored tokens
func (c *Client) Logout(ctx context.Context) error {
	return c.manager.Clear(ctx)
}

// TokenManager returns the underlying token lifecycle manager
func (c *Client) TokenManager() *token.Manager {
	return c.manager
}

// Fetcher returns the SSRF-safe fetcher used for discovery
func (c *Client) Fetcher() *safefetch.Fetcher {
	return c.fetcher
}

// Shutdown stops background work and flushes instrumentation. The Client
// must not be used afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	c.fetcher.Close()
	return c.inst.Shutdown(ctx)
}
