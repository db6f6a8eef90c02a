package security

// Event type constants for security audit logging.
const (
	// Outbound fetch events

	// EventSSRFBlocked is logged when the fetcher refuses a URL because of its
	// scheme or because it resolves to a loopback, private or link-local address.
	EventSSRFBlocked = "ssrf_blocked"

	// EventFetchRateLimited is logged when a per-host outbound rate limit rejects a fetch.
	EventFetchRateLimited = "fetch_rate_limited"

	// Token lifecycle events

	// EventTokenRefreshed is logged when a refresh succeeded and the new
	// credentials were persisted with native provenance.
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRefreshFailed is logged when a refresh attempt failed, with the
	// failure classification in the details.
	EventTokenRefreshFailed = "token_refresh_failed" //nolint:gosec // G101: event name, not a credential

	// EventLegacyMigrationRequired is logged when an incompatible refresh token
	// of legacy provenance was detected and re-authentication is required.
	EventLegacyMigrationRequired = "legacy_token_migration_required"

	// EventCredentialsCleared is logged when stored token fields are cleared.
	EventCredentialsCleared = "credentials_cleared"
)
