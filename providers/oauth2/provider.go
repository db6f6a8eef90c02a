package oauth2

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"
	xoauth2 "golang.org/x/oauth2"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/providers"
)

const (
	providerName = "oauth2"

	// DefaultRefreshTimeout bounds a single token endpoint call
	DefaultRefreshTimeout = 30 * time.Second
)

// Config holds the token endpoint settings
type Config struct {
	// TokenURL is the provider's token endpoint (required, https)
	TokenURL string

	// ClientID is the OAuth client identifier (required)
	ClientID string

	// ClientSecret is empty for public clients
	ClientSecret string

	// Scopes requested on refresh. Most providers ignore these.
	Scopes []string

	// AuthStyle overrides how client credentials are sent. The default sends
	// them in the request body for public clients and in an Authorization
	// header otherwise.
	AuthStyle xoauth2.AuthStyle

	// HTTPClient is used for token endpoint calls (default: 30s timeout)
	HTTPClient *http.Client

	// AllowInsecureTokenURL permits an http TokenURL. Tests only.
	AllowInsecureTokenURL bool

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Instrumentation records provider metrics and spans (optional)
	Instrumentation *instrumentation.Instrumentation
}

// Provider refreshes tokens against a fixed token endpoint
type Provider struct {
	config     *xoauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
	inst       *instrumentation.Instrumentation
	tracer     trace.Tracer
}

var _ providers.TokenRefresher = (*Provider)(nil)

// NewProvider creates a refresher for cfg
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if err := validateTokenURL(cfg.TokenURL, cfg.AllowInsecureTokenURL); err != nil {
		return nil, err
	}
	if err := providers.ValidateScopes(cfg.Scopes); err != nil {
		return nil, fmt.Errorf("invalid scopes: %w", err)
	}

	authStyle := cfg.AuthStyle
	if authStyle == xoauth2.AuthStyleAutoDetect {
		if cfg.ClientSecret == "" {
			authStyle = xoauth2.AuthStyleInParams
		} else {
			authStyle = xoauth2.AuthStyleInHeader
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRefreshTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inst := instrumentation.OrNoop(cfg.Instrumentation)

	return &Provider{
		config: &xoauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: xoauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: authStyle,
			},
			Scopes: cfg.Scopes,
		},
		httpClient: httpClient,
		logger:     logger,
		inst:       inst,
		tracer:     inst.Tracer("provider"),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// TokenURL returns the configured token endpoint
func (p *Provider) TokenURL() string {
	return p.config.Endpoint.TokenURL
}

// RefreshToken performs the refresh_token grant against the token endpoint
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*providers.TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	ctx, span := p.tracer.Start(ctx, "provider.refresh_token")
	defer span.End()
	instrumentation.AddProviderAttributes(span, providerName, "refresh_token")

	start := time.Now()
	resp, err := providers.RefreshWithConfig(ctx, p.config, p.httpClient, refreshToken)
	durationMs := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		status := 0
		if re, ok := providers.AsRefreshError(err); ok {
			status = re.Status
			instrumentation.AddOAuthErrorAttributes(span, re.Code, re.Description)
		}
		instrumentation.RecordError(span, err)
		p.inst.Metrics().RecordProviderAPICall(ctx, providerName, "refresh_token", status, durationMs)
		p.logger.Debug("Token refresh failed", "token_url", p.TokenURL(), "status", status, "error", err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	p.inst.Metrics().RecordProviderAPICall(ctx, providerName, "refresh_token", http.StatusOK, durationMs)
	p.logger.Debug("Token refreshed",
		"token_url", p.TokenURL(),
		"rotated", resp.RefreshToken != "",
		"expires_at", resp.ExpiresAt)
	return resp, nil
}

func validateTokenURL(tokenURL string, allowInsecure bool) error {
	if tokenURL == "" {
		return fmt.Errorf("token URL is required")
	}
	u, err := url.Parse(tokenURL)
	if err != nil {
		return fmt.Errorf("invalid token URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("token URL must be absolute: %s", tokenURL)
	}
	if u.Scheme != "https" && !(allowInsecure && u.Scheme == "http") {
		return fmt.Errorf("token URL must use HTTPS, got %s", u.Scheme)
	}
	return nil
}
