// Package mock provides a mock implementation of providers.TokenRefresher for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/mcp-oauth-client/providers"
)

// MockRefresher is a mock implementation of the TokenRefresher interface for testing
type MockRefresher struct {
	// RefreshTokenFunc is called when RefreshToken() is invoked
	RefreshTokenFunc func(ctx context.Context, refreshToken string) (*providers.TokenResponse, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// received holds the refresh tokens passed in, in call order
	received []string

	// mu protects CallCounts and received from concurrent access
	mu sync.RWMutex
}

var _ providers.TokenRefresher = (*MockRefresher)(nil)

// NewMockRefresher creates a mock refresher that issues a fresh token valid
// for one hour and rotates the refresh token.
func NewMockRefresher() *MockRefresher {
	return &MockRefresher{
		CallCounts: make(map[string]int),
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*providers.TokenResponse, error) {
			return &providers.TokenResponse{
				AccessToken:  "new-mock-access-token",
				RefreshToken: "new-mock-refresh-token",
				ExpiresAt:    time.Now().Add(time.Hour),
				TokenType:    "Bearer",
			}, nil
		},
	}
}

// NewFailingRefresher creates a mock refresher whose every call fails with err
func NewFailingRefresher(err error) *MockRefresher {
	m := NewMockRefresher()
	m.RefreshTokenFunc = func(context.Context, string) (*providers.TokenResponse, error) {
		return nil, err
	}
	return m
}

// RefreshToken refreshes a token using the configured function
func (m *MockRefresher) RefreshToken(ctx context.Context, refreshToken string) (*providers.TokenResponse, error) {
	// Release lock BEFORE calling user function; it may block or call back
	m.mu.Lock()
	m.CallCounts["RefreshToken"]++
	m.received = append(m.received, refreshToken)
	fn := m.RefreshTokenFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("RefreshTokenFunc not configured")
	}
	return fn(ctx, refreshToken)
}

// ReceivedTokens returns the refresh tokens passed to RefreshToken
func (m *MockRefresher) ReceivedTokens() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.received))
	copy(out, m.received)
	return out
}

// ResetCallCounts resets all call counters
func (m *MockRefresher) ResetCallCounts() {
	m.mu.Lock()
	m.CallCounts = make(map[string]int)
	m.received = nil
	m.mu.Unlock()
}

// GetCallCount returns the number of times a method was called
func (m *MockRefresher) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}
