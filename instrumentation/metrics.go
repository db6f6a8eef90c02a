package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the client library
type Metrics struct {
	// Fetch Metrics
	FetchBlocked     metric.Int64Counter
	FetchRateLimited metric.Int64Counter

	// Discovery Metrics
	DiscoveryAttempts metric.Int64Counter
	DiscoveryDuration metric.Float64Histogram

	// Token Lifecycle Metrics
	TokenRefreshed         metric.Int64Counter
	TokenMigrationRequired metric.Int64Counter
	RefreshCoalesced       metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Provider Metrics
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	fetchMeter := inst.Meter("fetch")
	discoveryMeter := inst.Meter("discovery")
	tokenMeter := inst.Meter("token")
	storageMeter := inst.Meter("storage")
	providerMeter := inst.Meter("provider")

	var err error
	m.FetchBlocked, err = fetchMeter.Int64Counter(
		"oauth.fetch.blocked",
		metric.WithDescription("Number of outbound fetches refused by URL policy"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch.blocked counter: %w", err)
	}

	m.FetchRateLimited, err = fetchMeter.Int64Counter(
		"oauth.fetch.rate_limited",
		metric.WithDescription("Number of outbound fetches rejected by the per-host limiter"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch.rate_limited counter: %w", err)
	}

	m.DiscoveryAttempts, err = discoveryMeter.Int64Counter(
		"oauth.discovery.attempts",
		metric.WithDescription("Number of metadata discovery tier attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery.attempts counter: %w", err)
	}

	m.DiscoveryDuration, err = discoveryMeter.Float64Histogram(
		"oauth.discovery.duration",
		metric.WithDescription("Metadata discovery duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery.duration histogram: %w", err)
	}

	m.TokenRefreshed, err = tokenMeter.Int64Counter(
		"oauth.token.refreshed",
		metric.WithDescription("Number of token refresh attempts"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.TokenMigrationRequired, err = tokenMeter.Int64Counter(
		"oauth.token.migration_required",
		metric.WithDescription("Number of legacy credentials that require re-authentication"),
		metric.WithUnit("{credential}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.migration_required counter: %w", err)
	}

	m.RefreshCoalesced, err = tokenMeter.Int64Counter(
		"oauth.refresh.coalesced",
		metric.WithDescription("Number of callers that waited on an in-flight refresh"),
		metric.WithUnit("{caller}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh.coalesced counter: %w", err)
	}

	m.StorageOperationTotal, err = storageMeter.Int64Counter(
		"storage.operation.total",
		metric.WithDescription("Total number of storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.total counter: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.ProviderAPICallsTotal, err = providerMeter.Int64Counter(
		"provider.api.calls.total",
		metric.WithDescription("Total number of token endpoint calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.calls.total counter: %w", err)
	}

	m.ProviderAPIDuration, err = providerMeter.Float64Histogram(
		"provider.api.duration",
		metric.WithDescription("Token endpoint call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider.api.duration histogram: %w", err)
	}

	return m, nil
}

// RecordFetchBlocked records a fetch refused by URL policy
func (m *Metrics) RecordFetchBlocked(ctx context.Context, policy, reason string) {
	m.FetchBlocked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("reason", reason),
	))
}

// RecordFetchRateLimited records a fetch rejected by the per-host limiter
func (m *Metrics) RecordFetchRateLimited(ctx context.Context) {
	m.FetchRateLimited.Add(ctx, 1)
}

// RecordDiscoveryAttempt records the outcome of a single discovery tier
func (m *Metrics) RecordDiscoveryAttempt(ctx context.Context, tier, outcome string) {
	m.DiscoveryAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("outcome", outcome),
	))
}

// RecordDiscovery records a complete discovery run
func (m *Metrics) RecordDiscovery(ctx context.Context, found bool, durationMs float64) {
	m.DiscoveryDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.Bool("found", found),
	))
}

// RecordTokenRefresh records a refresh attempt and its result
// ("success", "incompatible_token" or "transient").
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string, rotated bool) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.Bool("rotated", rotated),
	))
}

// RecordMigrationRequired records a legacy credential flagged for re-authentication
func (m *Metrics) RecordMigrationRequired(ctx context.Context, source string) {
	m.TokenMigrationRequired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}

// RecordRefreshCoalesced records a caller that joined an in-flight refresh
func (m *Metrics) RecordRefreshCoalesced(ctx context.Context) {
	m.RefreshCoalesced.Add(ctx, 1)
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, storageType, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("storage_type", storageType),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("storage_type", storageType),
		attribute.String("operation", operation),
	))
}

// RecordProviderAPICall records a token endpoint call
func (m *Metrics) RecordProviderAPICall(ctx context.Context, provider, operation string, statusCode int, durationMs float64) {
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
	))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
}
