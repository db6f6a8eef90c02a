package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/providers"
	"github.com/giantswarm/mcp-oauth-client/security"
	"github.com/giantswarm/mcp-oauth-client/storage"
)

const (
	// DefaultExpiryMargin treats tokens expiring within this window as expired
	DefaultExpiryMargin = 60 * time.Second

	// DefaultMigrationMessage is shown when a legacy token must be replaced
	DefaultMigrationMessage = "Your saved sign-in was created by an older client and can no longer be renewed. Please sign in again."

	// DefaultNamespace labels audit events when no namespace is configured
	DefaultNamespace = "default"
)

// MigrationReason explains why re-authentication is required.
type MigrationReason string

// MigrationReasonLegacyToken marks a rejected refresh token of legacy origin.
const MigrationReasonLegacyToken MigrationReason = "legacy_token"

// MigrationInfo asks the user to sign in again.
type MigrationInfo struct {
	Reason  MigrationReason
	Message string
}

// Result is the outcome of GetValidToken. An empty AccessToken means no
// usable token; MigrationRequired is set only when a legacy credential was
// rejected.
type Result struct {
	AccessToken       string
	MigrationRequired *MigrationInfo
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source used for expiry checks
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithExpiryMargin sets how long before expiry a token is refreshed
func WithExpiryMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.expiryMargin = d
		}
	}
}

// WithInstrumentation enables metrics and tracing
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(m *Manager) {
		m.inst = instrumentation.OrNoop(inst)
	}
}

// WithAuditor sets the security auditor
func WithAuditor(a *security.Auditor) Option {
	return func(m *Manager) {
		m.auditor = a
	}
}

// WithMigrationMessage overrides the user-facing re-authentication prompt
func WithMigrationMessage(msg string) Option {
	return func(m *Manager) {
		if msg != "" {
			m.migrationMessage = msg
		}
	}
}

// WithNamespace labels logs and audit events with the credential namespace
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// WithAccountConfig sets the provider consulted by GetAuthState
func WithAccountConfig(p AccountConfigProvider) Option {
	return func(m *Manager) {
		m.account = p
	}
}

// refreshCall is a refresh in progress. done is closed after the outcome has
// been written to the store.
type refreshCall struct {
	done   chan struct{}
	result Result
}

// Manager hands out valid access tokens for one credential set, refreshing
// them when needed. At most one refresh runs at a time; concurrent callers
// wait for it and then re-read the store.
type Manager struct {
	store     storage.CredentialStore
	refresher providers.TokenRefresher

	clock            Clock
	logger           *slog.Logger
	expiryMargin     time.Duration
	migrationMessage string
	namespace        string
	account          AccountConfigProvider
	auditor          *security.Auditor
	inst             *instrumentation.Instrumentation
	tracer           trace.Tracer

	mu       sync.Mutex
	inflight *refreshCall
}

// NewManager creates a Manager for the credentials in store
func NewManager(store storage.CredentialStore, refresher providers.TokenRefresher, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		refresher:        refresher,
		clock:            systemClock{},
		logger:           slog.Default(),
		expiryMargin:     DefaultExpiryMargin,
		migrationMessage: DefaultMigrationMessage,
		namespace:        DefaultNamespace,
		inst:             instrumentation.NewNoop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tracer = m.inst.Tracer("token")
	return m
}

// GetValidToken returns a currently valid access token, refreshing it if it
// has expired. It never returns an error: failures yield an empty
// AccessToken, with MigrationRequired set when the user must sign in again.
func (m *Manager) GetValidToken(ctx context.Context) Result {
	ctx, span := m.tracer.Start(ctx, "token.get_valid_token")
	defer span.End()

	creds := m.load(ctx)
	if !creds.HasAccessToken() {
		return Result{}
	}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrCredentialSource, creds.Source.String()))

	if !creds.ExpiredAt(m.clock.Now(), m.expiryMargin) {
		return Result{AccessToken: creds.AccessToken}
	}
	if !creds.HasRefreshToken() {
		m.logger.Info("Access token expired and no refresh token is stored",
			"namespace", m.namespace)
		return Result{}
	}

	return m.refresh(ctx, span)
}

// refresh joins the in-flight refresh or starts one.
func (m *Manager) refresh(ctx context.Context, span trace.Span) Result {
	m.mu.Lock()
	if call := m.inflight; call != nil {
		m.mu.Unlock()
		return m.wait(ctx, span, call)
	}
	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight = nil
		m.mu.Unlock()
		close(call.done)
	}()

	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrRefreshCoalesced, false))

	// The refresh outlives a caller that gives up, since others may be waiting.
	call.result = m.refreshLatest(context.WithoutCancel(ctx))
	return call.result
}

// wait blocks until call completes, then returns whatever the store holds.
// Errors from the refresh are not propagated and the refresh is not retried.
func (m *Manager) wait(ctx context.Context, span trace.Span, call *refreshCall) Result {
	instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrRefreshCoalesced, true))
	m.inst.Metrics().RecordRefreshCoalesced(ctx)

	select {
	case <-call.done:
	case <-ctx.Done():
		return Result{}
	}

	creds := m.load(ctx)
	if creds.HasAccessToken() && !creds.ExpiredAt(m.clock.Now(), m.expiryMargin) {
		return Result{AccessToken: creds.AccessToken}
	}
	return Result{}
}

// refreshLatest re-reads the store as leader. A refresh that completed
// between the caller's read and taking the lead must not be repeated with the
// superseded refresh token.
func (m *Manager) refreshLatest(ctx context.Context) Result {
	creds := m.load(ctx)
	switch {
	case !creds.HasAccessToken():
		return Result{}
	case !creds.ExpiredAt(m.clock.Now(), m.expiryMargin):
		return Result{AccessToken: creds.AccessToken}
	case !creds.HasRefreshToken():
		return Result{}
	}
	return m.performRefresh(ctx, creds)
}

func (m *Manager) performRefresh(ctx context.Context, creds *storage.Credentials) Result {
	ctx, span := m.tracer.Start(ctx, "token.refresh")
	defer span.End()

	resp, err := m.callRefresher(ctx, creds.RefreshToken)
	if err == nil && (resp == nil || resp.AccessToken == "") {
		err = errors.New("token endpoint returned no access token")
	}
	if err != nil {
		return m.handleRefreshFailure(ctx, span, creds, err)
	}

	refreshToken := resp.RefreshToken
	rotated := refreshToken != "" && refreshToken != creds.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}

	update := storage.ReplaceTokens(resp.AccessToken, refreshToken, resp.ExpiresAt, storage.SourceNative)
	if err := m.store.Set(ctx, update); err != nil {
		// The new token is still good for this process.
		m.logger.Error("Failed to persist refreshed token",
			"namespace", m.namespace,
			"error", err)
		instrumentation.RecordError(span, err)
	}

	m.logger.Info("Access token refreshed",
		"namespace", m.namespace,
		"previous_source", creds.Source.String(),
		"rotated", rotated,
		"expires_at", resp.ExpiresAt)
	m.auditor.LogTokenRefreshed(m.namespace, creds.RefreshToken, rotated)
	m.inst.Metrics().RecordTokenRefresh(ctx, "success", rotated)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrRefreshOutcome, "success"),
		attribute.Bool(instrumentation.AttrTokenRotated, rotated))
	instrumentation.SetSpanSuccess(span)

	return Result{AccessToken: resp.AccessToken}
}

// callRefresher converts a panicking refresher into an error.
func (m *Manager) callRefresher(ctx context.Context, refreshToken string) (resp *providers.TokenResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("token refresher panicked: %v", r)
		}
	}()
	return m.refresher.RefreshToken(ctx, refreshToken)
}

func (m *Manager) handleRefreshFailure(ctx context.Context, span trace.Span, creds *storage.Credentials, err error) Result {
	kind := ClassifyRefreshError(err)

	instrumentation.RecordError(span, err)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrRefreshOutcome, string(kind)))
	if re, ok := providers.AsRefreshError(err); ok {
		instrumentation.AddOAuthErrorAttributes(span, re.Code, re.Description)
	}
	m.inst.Metrics().RecordTokenRefresh(ctx, string(kind), false)
	m.auditor.LogTokenRefreshFailed(m.namespace, string(kind))

	if kind != FailureIncompatibleToken {
		m.logger.Warn("Token refresh failed, keeping stored credentials",
			"namespace", m.namespace,
			"error", err)
		return Result{}
	}

	result := Result{}
	if creds.Source.IsLegacy() {
		result.MigrationRequired = &MigrationInfo{
			Reason:  MigrationReasonLegacyToken,
			Message: m.migrationMessage,
		}
		m.auditor.LogMigrationRequired(m.namespace, creds.Source.String())
		m.inst.Metrics().RecordMigrationRequired(ctx, creds.Source.String())
		instrumentation.SetSpanAttributes(span, attribute.Bool(instrumentation.AttrMigration, true))
	}

	m.logger.Warn("Refresh token rejected, clearing stored tokens",
		"namespace", m.namespace,
		"source", creds.Source.String(),
		"migration_required", result.MigrationRequired != nil,
		"error", err)

	if err := m.store.Set(ctx, storage.ClearTokens()); err != nil {
		m.logger.Error("Failed to clear rejected credentials",
			"namespace", m.namespace,
			"error", err)
	} else {
		m.auditor.LogCredentialsCleared(m.namespace, string(kind))
	}

	return result
}

// State reports the credential lifecycle state without network access
func (m *Manager) State(ctx context.Context) State {
	m.mu.Lock()
	refreshing := m.inflight != nil
	m.mu.Unlock()
	if refreshing {
		return StateRefreshing
	}

	creds := m.load(ctx)
	switch {
	case !creds.HasAccessToken():
		return StateNoCredentials
	case creds.ExpiredAt(m.clock.Now(), m.expiryMargin):
		return StateExpired
	default:
		return StateValid
	}
}

// GetAuthState returns a snapshot of the authentication state. Apart from a
// refresh triggered through GetValidToken it changes nothing, and it is safe
// for concurrent use.
func (m *Manager) GetAuthState(ctx context.Context) AuthState {
	state := AuthState{Token: m.GetValidToken(ctx)}

	if creds := m.load(ctx); creds != nil {
		state.HasCredentials = creds.HasAccessToken()
		state.Source = creds.Source
		state.ExpiresAt = creds.ExpiresAt
	}

	if m.account != nil {
		billing, workspace, err := m.account.AccountConfig(ctx)
		if err != nil {
			m.logger.Warn("Failed to load account configuration",
				"namespace", m.namespace,
				"error", err)
		} else {
			state.Billing = billing
			state.Workspace = workspace
		}
	}

	return state
}

// Clear removes the stored tokens, keeping their provenance
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Set(ctx, storage.ClearTokens()); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	m.auditor.LogCredentialsCleared(m.namespace, "logout")
	m.logger.Info("Stored credentials cleared", "namespace", m.namespace)
	return nil
}

// load reads the store. A missing record or a read failure both yield nil.
func (m *Manager) load(ctx context.Context) *storage.Credentials {
	creds, err := m.store.Get(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrCredentialsNotFound) {
			m.logger.Warn("Failed to read stored credentials",
				"namespace", m.namespace,
				"error", err)
		}
		return nil
	}
	return creds
}
