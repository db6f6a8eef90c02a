package token

import (
	"context"
	"time"

	"github.com/giantswarm/mcp-oauth-client/storage"
)

// State is the lifecycle state of the stored credentials.
type State string

const (
	// StateNoCredentials means no access token is stored.
	StateNoCredentials State = "no_credentials"

	// StateValid means the stored access token is outside the expiry margin.
	StateValid State = "valid"

	// StateExpired means the stored access token is within the expiry margin
	// or past its expiry, and no refresh is running.
	StateExpired State = "expired"

	// StateRefreshing means a refresh is in flight for this manager.
	StateRefreshing State = "refreshing"
)

// BillingInfo describes the account's plan, as supplied by an
// AccountConfigProvider.
type BillingInfo struct {
	Plan   string
	Status string
}

// WorkspaceInfo identifies the active workspace.
type WorkspaceInfo struct {
	ID   string
	Name string
}

// AccountConfigProvider supplies account configuration held outside the
// credential store.
type AccountConfigProvider interface {
	AccountConfig(ctx context.Context) (BillingInfo, WorkspaceInfo, error)
}

// AuthState is a read-only snapshot of authentication for display.
type AuthState struct {
	// HasCredentials is true when an access token is stored
	HasCredentials bool

	// Token is the outcome of GetValidToken
	Token Result

	// Source is the provenance of the stored credentials
	Source storage.Source

	// ExpiresAt is the stored access token expiry, zero when unknown
	ExpiresAt time.Time

	Billing   BillingInfo
	Workspace WorkspaceInfo
}

// Authenticated reports whether a usable access token was obtained
func (s AuthState) Authenticated() bool {
	return s.Token.AccessToken != ""
}
