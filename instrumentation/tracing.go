package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
//
// SECURITY WARNING: never put access or refresh token values in traces. Only
// metadata such as the credential source, expiry or whether a token rotated.
const (
	// Fetch attributes
	AttrFetchHost   = "fetch.host"
	AttrFetchPolicy = "fetch.policy"
	AttrFetchMethod = "fetch.method"
	AttrFetchStatus = "fetch.status_code"
	AttrFetchReason = "fetch.blocked_reason"

	// Discovery attributes
	AttrResourceURL     = "oauth.resource_url"
	AttrDiscoveryTier   = "oauth.discovery.tier"
	AttrDiscoveryResult = "oauth.discovery.outcome"
	AttrIssuer          = "oauth.issuer"

	// Token lifecycle attributes
	AttrCredentialSource = "oauth.credential.source"
	AttrTokenRotated     = "oauth.token.rotated"      //nolint:gosec // boolean flag, not a token
	AttrRefreshOutcome   = "oauth.refresh.outcome"    // success, incompatible_token, transient
	AttrRefreshCoalesced = "oauth.refresh.coalesced"  // whether the caller waited on another refresh
	AttrMigration        = "oauth.migration_required" // boolean
	AttrError            = "oauth.error"              // OAuth error code
	AttrErrorDescription = "oauth.error_description"

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageType      = "storage.type"
	AttrStorageNamespace = "storage.namespace"

	// Provider attributes
	AttrProviderName      = "provider.name"
	AttrProviderOperation = "provider.operation"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanError sets an error status on a span (nil-safe)
func SetSpanError(span trace.Span, message string) {
	if span != nil {
		span.SetStatus(codes.Error, message)
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddFetchAttributes adds outbound fetch attributes to a span (nil-safe)
func AddFetchAttributes(span trace.Span, method, host, policy string) {
	SetSpanAttributes(span,
		attribute.String(AttrFetchMethod, method),
		attribute.String(AttrFetchHost, host),
		attribute.String(AttrFetchPolicy, policy),
	)
}

// AddDiscoveryTierEvent records a discovery tier outcome as a span event (nil-safe)
func AddDiscoveryTierEvent(span trace.Span, tier, outcome string) {
	if span != nil {
		span.AddEvent("discovery.tier", trace.WithAttributes(
			attribute.String(AttrDiscoveryTier, tier),
			attribute.String(AttrDiscoveryResult, outcome),
		))
	}
}

// AddStorageAttributes adds storage operation attributes to a span (nil-safe)
func AddStorageAttributes(span trace.Span, operation, storageType string) {
	SetSpanAttributes(span,
		attribute.String(AttrStorageOperation, operation),
		attribute.String(AttrStorageType, storageType),
	)
}

// AddProviderAttributes adds provider attributes to a span (nil-safe)
func AddProviderAttributes(span trace.Span, providerName, operation string) {
	SetSpanAttributes(span,
		attribute.String(AttrProviderName, providerName),
		attribute.String(AttrProviderOperation, operation),
	)
}

// AddOAuthErrorAttributes adds an OAuth error code and description (nil-safe)
func AddOAuthErrorAttributes(span trace.Span, code, description string) {
	if code != "" {
		SetSpanAttributes(span, attribute.String(AttrError, code))
	}
	if description != "" {
		SetSpanAttributes(span, attribute.String(AttrErrorDescription, description))
	}
}
