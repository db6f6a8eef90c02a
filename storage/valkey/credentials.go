package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/storage"
)

// luaMergeCredentials applies a field patch to the stored JSON document in one
// step, so concurrent partial updates from several processes never lose fields.
// An empty string in the patch removes the field.
const luaMergeCredentials = `
local current = redis.call('GET', KEYS[1])
local doc = {}
if current then
  doc = cjson.decode(current)
end
local patch = cjson.decode(ARGV[1])
for field, value in pairs(patch) do
  if value == '' then
    doc[field] = nil
  else
    doc[field] = value
  end
end
redis.call('SET', KEYS[1], cjson.encode(doc))
return 'OK'
`

// credentialsJSON is the stored document. Token fields hold ciphertext when
// encryption is enabled; expires_at is unix milliseconds.
type credentialsJSON struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	Source       string `json:"source,omitempty"`
}

// Get returns the credential set for the store's namespace
func (s *Store) Get(ctx context.Context) (creds *storage.Credentials, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "get")
	defer func() { s.recordOperation(ctx, span, "get", err, start) }()

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.credentialsKey()).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	var j credentialsJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	sealed := &storage.Credentials{
		AccessToken:  j.AccessToken,
		RefreshToken: j.RefreshToken,
		Source:       storage.ParseSource(j.Source),
	}
	if j.ExpiresAt != "" {
		ms, err := strconv.ParseInt(j.ExpiresAt, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse credential expiry: %w", err)
		}
		sealed.ExpiresAt = time.UnixMilli(ms).UTC()
	}

	creds, err = storage.OpenCredentials(sealed, s.getEncryptor())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return creds, nil
}

// Set atomically applies a partial update to the namespace's credential set
func (s *Store) Set(ctx context.Context, update storage.CredentialsUpdate) (err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "set")
	defer func() { s.recordOperation(ctx, span, "set", err, start) }()

	if update.IsEmpty() {
		return nil
	}

	patch, err := s.buildPatch(update)
	if err != nil {
		return err
	}

	data, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if len(data) > MaxCredentialDataSize {
		return errInputTooLarge
	}

	err = s.client.Do(ctx,
		s.client.B().Eval().Script(luaMergeCredentials).
			Numkeys(1).
			Key(s.credentialsKey()).
			Arg(string(data)).
			Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	s.logger.Debug("Saved credentials",
		"namespace", s.namespace,
		"fields", len(patch),
		"encrypted", s.getEncryptor().IsEnabled())
	return nil
}

// Delete removes the namespace's credential set
func (s *Store) Delete(ctx context.Context) (err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "delete")
	defer func() { s.recordOperation(ctx, span, "delete", err, start) }()

	if err := s.client.Do(ctx, s.client.B().Del().Key(s.credentialsKey()).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}

// buildPatch converts an update into the field patch understood by
// luaMergeCredentials. Cleared fields map to "".
func (s *Store) buildPatch(update storage.CredentialsUpdate) (map[string]string, error) {
	enc := s.getEncryptor()
	patch := make(map[string]string, 4)

	sealToken := func(field string, value *string) error {
		if value == nil {
			return nil
		}
		if len(*value) > MaxTokenLength {
			return errInputTooLarge
		}
		if *value == "" {
			patch[field] = ""
			return nil
		}
		sealed, err := enc.Encrypt(*value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", field, err)
		}
		patch[field] = sealed
		return nil
	}

	if err := sealToken("access_token", update.AccessToken); err != nil {
		return nil, err
	}
	if err := sealToken("refresh_token", update.RefreshToken); err != nil {
		return nil, err
	}

	if update.ExpiresAt != nil {
		if update.ExpiresAt.IsZero() {
			patch["expires_at"] = ""
		} else {
			patch["expires_at"] = strconv.FormatInt(update.ExpiresAt.UnixMilli(), 10)
		}
	}
	if update.Source != nil {
		patch["source"] = string(*update.Source)
	}

	return patch, nil
}

func (s *Store) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.instMu.RLock()
	tracer := s.tracer
	s.instMu.RUnlock()

	if tracer == nil {
		return ctx, nil
	}
	ctx, span := tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrStorageNamespace, s.namespace))
	return ctx, span
}

func (s *Store) recordOperation(ctx context.Context, span trace.Span, operation string, err error, start time.Time) {
	notFound := errors.Is(err, storage.ErrCredentialsNotFound)
	if span != nil {
		if err != nil && !notFound {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
	}

	s.instMu.RLock()
	inst := s.instrumentation
	s.instMu.RUnlock()
	if inst == nil {
		return
	}

	result := "success"
	switch {
	case notFound:
		result = "not_found"
	case err != nil:
		result = "error"
	}
	inst.Metrics().RecordStorageOperation(ctx, storageType, operation, result, float64(time.Since(start).Microseconds())/1000)
}
