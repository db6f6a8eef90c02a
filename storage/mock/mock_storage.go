// Package mock provides a mock implementation of storage.CredentialStore for testing.
package mock

import (
	"context"
	"sync"

	"github.com/giantswarm/mcp-oauth-client/storage"
)

// MockCredentialStore is a mock CredentialStore. Its default behaviour is an
// in-memory store; GetFunc and SetFunc can be replaced to inject errors. Every
// update passed to Set is recorded, including rejected ones.
type MockCredentialStore struct {
	mu          sync.RWMutex
	credentials *storage.Credentials
	GetFunc     func(ctx context.Context) (*storage.Credentials, error)
	SetFunc     func(ctx context.Context, update storage.CredentialsUpdate) error

	callsMu    sync.Mutex
	callCounts map[string]int
	updates    []storage.CredentialsUpdate
}

var _ storage.CredentialStore = (*MockCredentialStore)(nil)

// NewMockCredentialStore creates a new mock store holding creds (may be nil)
func NewMockCredentialStore(creds *storage.Credentials) *MockCredentialStore {
	m := &MockCredentialStore{
		credentials: creds.Clone(),
		callCounts:  make(map[string]int),
	}

	// Set default implementations
	m.GetFunc = func(ctx context.Context) (*storage.Credentials, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		if m.credentials == nil {
			return nil, storage.ErrCredentialsNotFound
		}
		return m.credentials.Clone(), nil
	}

	m.SetFunc = func(ctx context.Context, update storage.CredentialsUpdate) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.credentials = update.Apply(m.credentials)
		return nil
	}

	return m
}

// Get returns the stored credentials
func (m *MockCredentialStore) Get(ctx context.Context) (*storage.Credentials, error) {
	m.record("Get", nil)
	return m.GetFunc(ctx)
}

// Set applies a partial update
func (m *MockCredentialStore) Set(ctx context.Context, update storage.CredentialsUpdate) error {
	m.record("Set", &update)
	return m.SetFunc(ctx, update)
}

func (m *MockCredentialStore) record(method string, update *storage.CredentialsUpdate) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.callCounts[method]++
	if update != nil {
		m.updates = append(m.updates, *update)
	}
}

// Credentials returns a copy of the currently held credentials, bypassing
// GetFunc.
func (m *MockCredentialStore) Credentials() *storage.Credentials {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.credentials.Clone()
}

// CallCount returns how many times method was called
func (m *MockCredentialStore) CallCount(method string) int {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return m.callCounts[method]
}

// Updates returns the updates passed to Set, in call order
func (m *MockCredentialStore) Updates() []storage.CredentialsUpdate {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	out := make([]storage.CredentialsUpdate, len(m.updates))
	copy(out, m.updates)
	return out
}

// ResetCallCounts resets all call counters and recorded updates
func (m *MockCredentialStore) ResetCallCounts() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.callCounts = make(map[string]int)
	m.updates = nil
}
