package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/security"
	"github.com/giantswarm/mcp-oauth-client/storage"
)

const storageType = "memory"

// Store is an in-memory CredentialStore holding a single credential set.
type Store struct {
	mu sync.RWMutex

	// credentials is kept sealed when an encryptor is configured
	credentials *storage.Credentials

	encryptor *security.Encryptor

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	logger *slog.Logger
}

var _ storage.CredentialStore = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		logger: slog.Default(),
	}
}

// NewWithCredentials creates a store pre-populated with creds. It is mostly
// useful in tests and for tokens imported from another process.
func NewWithCredentials(creds *storage.Credentials) *Store {
	s := New()
	s.credentials = creds.Clone()
	return s
}

// SetLogger sets a custom logger for the store
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetEncryptor sets the token encryptor for encryption at rest. Credentials
// already held are re-sealed with the new encryptor.
func (s *Store) SetEncryptor(enc *security.Encryptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plain, err := storage.OpenCredentials(s.credentials, s.encryptor)
	if err != nil {
		return fmt.Errorf("failed to open stored credentials: %w", err)
	}
	sealed, err := storage.SealCredentials(plain, enc)
	if err != nil {
		return fmt.Errorf("failed to seal stored credentials: %w", err)
	}

	s.credentials = sealed
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Token encryption at rest enabled for storage")
	}
	return nil
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
}

// Get returns a copy of the stored credentials
func (s *Store) Get(ctx context.Context) (creds *storage.Credentials, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "get")
	defer func() { s.recordOperation(ctx, span, "get", err, start) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.credentials == nil {
		return nil, storage.ErrCredentialsNotFound
	}

	creds, err = storage.OpenCredentials(s.credentials, s.encryptor)
	if err != nil {
		return nil, fmt.Errorf("failed to open credentials: %w", err)
	}
	return creds, nil
}

// Set applies a partial update to the stored credentials
func (s *Store) Set(ctx context.Context, update storage.CredentialsUpdate) (err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "set")
	defer func() { s.recordOperation(ctx, span, "set", err, start) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := storage.OpenCredentials(s.credentials, s.encryptor)
	if err != nil {
		return fmt.Errorf("failed to open credentials: %w", err)
	}

	sealed, err := storage.SealCredentials(update.Apply(current), s.encryptor)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}

	s.credentials = sealed
	s.logger.Debug("Stored credentials",
		"has_access_token", sealed.AccessToken != "",
		"has_refresh_token", sealed.RefreshToken != "",
		"source", sealed.Source.String())
	return nil
}

// Delete removes the stored credentials entirely
func (s *Store) Delete(ctx context.Context) error {
	_, span := s.startSpan(ctx, "delete")
	defer s.recordOperation(ctx, span, "delete", nil, time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = nil
	return nil
}

func (s *Store) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

	if tracer == nil {
		return ctx, nil
	}
	ctx, span := tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordOperation records metrics for a storage operation and ends the span
func (s *Store) recordOperation(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	if span != nil {
		if err != nil && !errors.Is(err, storage.ErrCredentialsNotFound) {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
	}

	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()
	if inst == nil {
		return
	}

	result := "success"
	switch {
	case errors.Is(err, storage.ErrCredentialsNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	inst.Metrics().RecordStorageOperation(ctx, storageType, operation, result, float64(time.Since(start).Microseconds())/1000)
}
