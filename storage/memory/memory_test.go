package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/security"
	"github.com/giantswarm/mcp-oauth-client/storage"
)

func testCredentials() *storage.Credentials {
	return &storage.Credentials{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Source:       storage.SourceCLI,
	}
}

func TestStore_GetEmpty(t *testing.T) {
	store := New()

	_, err := store.Get(context.Background())
	assert.ErrorIs(t, err, storage.ErrCredentialsNotFound)
}

func TestStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	store := New()

	want := testCredentials()
	require.NoError(t, store.Set(ctx, storage.ReplaceTokens(want.AccessToken, want.RefreshToken, want.ExpiresAt, want.Source)))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewWithCredentials(testCredentials())

	newAccess := "new-access-token"
	require.NoError(t, store.Set(ctx, storage.CredentialsUpdate{AccessToken: &newAccess}))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-access-token", got.AccessToken)
	assert.Equal(t, "refresh-token", got.RefreshToken, "refresh token should be unchanged")
	assert.Equal(t, storage.SourceCLI, got.Source, "source should be unchanged")
}

func TestStore_ClearTokensKeepsSource(t *testing.T) {
	ctx := context.Background()
	store := NewWithCredentials(testCredentials())

	require.NoError(t, store.Set(ctx, storage.ClearTokens()))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.AccessToken)
	assert.Empty(t, got.RefreshToken)
	assert.True(t, got.ExpiresAt.IsZero())
	assert.Equal(t, storage.SourceCLI, got.Source)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewWithCredentials(testCredentials())

	got, err := store.Get(ctx)
	require.NoError(t, err)
	got.AccessToken = "mutated"

	again, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-token", again.AccessToken)
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewWithCredentials(testCredentials())

	require.NoError(t, store.Delete(ctx))

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, storage.ErrCredentialsNotFound)
}

func TestStore_Encryption(t *testing.T) {
	ctx := context.Background()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	store := NewWithCredentials(testCredentials())
	require.NoError(t, store.SetEncryptor(enc))

	// Held values are sealed.
	store.mu.RLock()
	sealed := store.credentials.Clone()
	store.mu.RUnlock()
	assert.NotEqual(t, "access-token", sealed.AccessToken)
	assert.NotEqual(t, "refresh-token", sealed.RefreshToken)

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, testCredentials(), got)

	rotated := "rotated-refresh-token"
	require.NoError(t, store.Set(ctx, storage.CredentialsUpdate{RefreshToken: &rotated}))

	got, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rotated-refresh-token", got.RefreshToken)
	assert.Equal(t, "access-token", got.AccessToken)
}

func TestStore_WithInstrumentation(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.SetInstrumentation(instrumentation.NewNoop())

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, storage.ErrCredentialsNotFound)
	require.NoError(t, store.Set(ctx, storage.ClearTokens()))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewWithCredentials(testCredentials())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			token := "token"
			_ = store.Set(ctx, storage.CredentialsUpdate{AccessToken: &token})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Get(ctx)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token", got.AccessToken)
}
