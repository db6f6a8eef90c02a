package testutil

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// FakeResolver resolves host names from a fixed table. Unknown hosts fail
// like an NXDOMAIN answer.
type FakeResolver struct {
	mu      sync.Mutex
	hosts   map[string][]net.IPAddr
	lookups []string
}

// NewFakeResolver creates a resolver mapping each host to the given addresses
func NewFakeResolver(hosts map[string][]string) *FakeResolver {
	r := &FakeResolver{hosts: make(map[string][]net.IPAddr)}
	for host, addrs := range hosts {
		r.Add(host, addrs...)
	}
	return r
}

// Add registers addresses for host
func (r *FakeResolver) Add(host string, addrs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range addrs {
		r.hosts[host] = append(r.hosts[host], net.IPAddr{IP: net.ParseIP(a)})
	}
	if len(addrs) == 0 {
		r.hosts[host] = nil
	}
}

// LookupIPAddr implements safefetch.Resolver
func (r *FakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, host)

	addrs, ok := r.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return append([]net.IPAddr(nil), addrs...), nil
}

// Lookups returns the host names looked up so far
func (r *FakeResolver) Lookups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lookups...)
}

// RecordedRequest is a request observed by TLSServer
type RecordedRequest struct {
	Method string
	Host   string
	Path   string
}

// TLSServer is an HTTPS test server that serves several virtual hosts. The
// client returned by Client sends every connection to the server regardless of
// the host in the URL, so tests can use realistic host names.
type TLSServer struct {
	*httptest.Server

	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewTLSServer starts a virtual-host HTTPS server that is closed with t
func NewTLSServer(t *testing.T) *TLSServer {
	t.Helper()

	s := &TLSServer{routes: make(map[string]http.HandlerFunc)}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Handle registers h for requests to host and path
func (s *TLSServer) Handle(host, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[host+path] = h
}

// HandleJSON registers a handler answering host and path with status and the
// JSON encoding of body. A string body is written verbatim.
func (s *TLSServer) HandleJSON(host, path string, status int, body any) {
	s.Handle(host, path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if raw, ok := body.(string); ok {
			_, _ = w.Write([]byte(raw))
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	})
}

// Client returns an HTTP client that dials this server for every host and
// does not follow redirects.
func (s *TLSServer) Client() *http.Client {
	base := s.Server.Client()
	transport := base.Transport.(*http.Transport).Clone()

	addr := s.Listener.Addr().String()
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport.DialContext = func(ctx context.Context, network, _ string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	// httptest certificates are valid for example.com
	transport.TLSClientConfig.ServerName = "example.com"

	return &http.Client{
		Transport: transport,
		Timeout:   10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Requests returns the requests served so far
func (s *TLSServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestCount returns how many requests were made to host and path
func (s *TLSServer) RequestCount(host, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Host == host && r.Path == path {
			n++
		}
	}
	return n
}

func (s *TLSServer) serve(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{Method: r.Method, Host: host, Path: r.URL.Path})
	h, ok := s.routes[host+r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

// GenerateRandomString generates a random URL-safe string of the given length
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// AssertTimeEqual checks if two times are equal within a tolerance
func AssertTimeEqual(t *testing.T, got, want time.Time, tolerance time.Duration) {
	t.Helper()
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		t.Errorf("time mismatch: got %v, want %v (diff: %v, tolerance: %v)", got, want, diff, tolerance)
	}
}
