package discovery

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/internal/testutil"
	"github.com/giantswarm/mcp-oauth-client/safefetch"
)

const (
	mcpHost    = "mcp.example.com"
	ahrefsHost = "api.ahrefs.com"
)

func newTestDiscoverer(t *testing.T) (*Discoverer, *testutil.TLSServer) {
	t.Helper()
	return newTestDiscovererWithInstrumentation(t, nil)
}

func newTestDiscovererWithInstrumentation(t *testing.T, inst *instrumentation.Instrumentation) (*Discoverer, *testutil.TLSServer) {
	t.Helper()

	srv := testutil.NewTLSServer(t)
	resolver := testutil.NewFakeResolver(map[string][]string{
		mcpHost:                {"93.184.216.34"},
		ahrefsHost:             {"104.18.20.1"},
		"auth.example.com":     {"93.184.216.40"},
		"internal.example.com": {"10.0.0.5"},
	})
	fetcher := safefetch.New(safefetch.Config{
		HTTPClient:      srv.Client(),
		Resolver:        resolver,
		Instrumentation: inst,
	})
	return New(Config{Fetcher: fetcher, Instrumentation: inst}), srv
}

// logRecorder collects progress messages passed to a LogFunc.
type logRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (l *logRecorder) log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *logRecorder) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func metadataFor(base string) map[string]any {
	return map[string]any{
		"issuer":                           base,
		"authorization_endpoint":           base + "/authorize",
		"token_endpoint":                   base + "/token",
		"registration_endpoint":            base + "/register",
		"code_challenge_methods_supported": []string{"S256"},
	}
}

func wantMetadataFor(base string) *AuthServerMetadata {
	return &AuthServerMetadata{
		Issuer:                        base,
		AuthorizationEndpoint:         base + "/authorize",
		TokenEndpoint:                 base + "/token",
		RegistrationEndpoint:          base + "/register",
		CodeChallengeMethodsSupported: []string{"S256"},
	}
}

func unauthorized(challenge string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("WWW-Authenticate", challenge)
		w.WriteHeader(http.StatusUnauthorized)
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

// requestedPrefix reports whether any request path starts with prefix.
func requestedPrefix(srv *testutil.TLSServer, prefix string) bool {
	for _, r := range srv.Requests() {
		if strings.HasPrefix(r.Path, prefix) {
			return true
		}
	}
	return false
}

func TestDiscover_ProtectedResourceMetadata(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/my/mcp", unauthorized(
		`Bearer error="invalid_token", resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource/my"`))
	srv.HandleJSON(mcpHost, "/.well-known/oauth-protected-resource/my", http.StatusOK, map[string]any{
		"resource":              "https://mcp.example.com/my/mcp",
		"authorization_servers": []string{"https://mcp.example.com/my/auth/"},
	})
	srv.HandleJSON(mcpHost, "/my/auth/.well-known/oauth-authorization-server", http.StatusOK,
		metadataFor("https://mcp.example.com/my/auth"))

	logs := &logRecorder{}
	res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/my/mcp", logs.log)

	if diff := cmp.Diff(wantMetadataFor("https://mcp.example.com/my/auth"), res.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if res.Tier != TierProtectedResource {
		t.Errorf("Tier = %q, want %q", res.Tier, TierProtectedResource)
	}
	if res.ProtectedResource == nil || res.ProtectedResource.Resource != "https://mcp.example.com/my/mcp" {
		t.Errorf("ProtectedResource = %+v", res.ProtectedResource)
	}
	if res.Challenge == nil || res.Challenge.Error() != "invalid_token" {
		t.Errorf("Challenge = %+v", res.Challenge)
	}
	if n := srv.RequestCount(mcpHost, WellKnownAuthServerPath); n != 0 {
		t.Errorf("origin fallback requested %d times, want 0", n)
	}
	if !logs.contains("RFC 9728") {
		t.Errorf("logs do not mention RFC 9728: %v", logs.messages)
	}
}

func TestDiscover_PathScopedFallback(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(ahrefsHost, "/mcp/mcp", status(http.StatusOK))
	srv.Handle(ahrefsHost, WellKnownAuthServerPath, status(http.StatusNotFound))
	srv.HandleJSON(ahrefsHost, WellKnownAuthServerPath+"/mcp/mcp", http.StatusOK,
		metadataFor("https://api.ahrefs.com"))

	logs := &logRecorder{}
	res := d.DiscoverWithDetails(context.Background(), "https://api.ahrefs.com/mcp/mcp", logs.log)

	if diff := cmp.Diff(wantMetadataFor("https://api.ahrefs.com"), res.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if res.Tier != TierPathScoped {
		t.Errorf("Tier = %q, want %q", res.Tier, TierPathScoped)
	}
	if requestedPrefix(srv, WellKnownProtectedResourcePath) {
		t.Error("RFC 9728 metadata was requested although the resource did not answer 401")
	}
	if srv.RequestCount(ahrefsHost, WellKnownAuthServerPath) != 1 {
		t.Error("origin RFC 8414 metadata was not tried before the path-scoped variant")
	}
	if !logs.contains("RFC 8414") {
		t.Errorf("logs do not mention RFC 8414: %v", logs.messages)
	}
}

func TestDiscover_Non401SkipsProtectedResource(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	// A hint on a non-401 response must be ignored.
	srv.Handle(mcpHost, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`)
		w.WriteHeader(http.StatusOK)
	})
	srv.HandleJSON(mcpHost, WellKnownAuthServerPath, http.StatusOK, metadataFor("https://mcp.example.com"))

	res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/mcp", nil)

	if diff := cmp.Diff(wantMetadataFor("https://mcp.example.com"), res.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if res.Tier != TierOrigin {
		t.Errorf("Tier = %q, want %q", res.Tier, TierOrigin)
	}
	if requestedPrefix(srv, WellKnownProtectedResourcePath) {
		t.Error("RFC 9728 metadata was requested for a non-401 probe")
	}
}

func TestDiscover_UnsafeHintFallsBack(t *testing.T) {
	tests := []struct {
		name string
		hint string
	}{
		{name: "http scheme", hint: "http://mcp.example.com/.well-known/oauth-protected-resource"},
		{name: "cloud metadata address", hint: "https://169.254.169.254/latest/meta-data"},
		{name: "loopback literal", hint: "https://127.0.0.1/.well-known/oauth-protected-resource"},
		{name: "resolves to private address", hint: "https://internal.example.com/.well-known/oauth-protected-resource"},
		{name: "metadata hostname", hint: "https://metadata.google.internal/computeMetadata/v1/"},
		{name: "ipv4-compatible literal", hint: "https://[::169.254.169.254]/latest/meta-data"},
		{name: "nat64 literal", hint: "https://[64:ff9b::10.0.0.5]/.well-known/oauth-protected-resource"},
		{name: "6to4 literal", hint: "https://[2002:a9fe:a9fe::1]/latest/meta-data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, srv := newTestDiscoverer(t)

			srv.Handle(mcpHost, "/mcp", unauthorized(`Bearer resource_metadata="`+tt.hint+`"`))
			srv.HandleJSON(mcpHost, WellKnownProtectedResourcePath, http.StatusOK, map[string]any{
				"authorization_servers": []string{"https://auth.example.com"},
			})
			srv.HandleJSON(mcpHost, WellKnownAuthServerPath, http.StatusOK, metadataFor("https://mcp.example.com"))

			logs := &logRecorder{}
			res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/mcp", logs.log)

			if diff := cmp.Diff(wantMetadataFor("https://mcp.example.com"), res.Metadata); diff != "" {
				t.Errorf("metadata mismatch (-want +got):\n%s", diff)
			}
			if res.Tier != TierOrigin {
				t.Errorf("Tier = %q, want %q", res.Tier, TierOrigin)
			}
			for _, r := range srv.Requests() {
				if r.Host != mcpHost {
					t.Errorf("unexpected request to %s%s", r.Host, r.Path)
				}
			}
			if srv.RequestCount(mcpHost, WellKnownProtectedResourcePath) != 0 {
				t.Error("unsafe hint was fetched")
			}
			if !logs.contains("RFC 8414") {
				t.Errorf("logs do not mention RFC 8414 fallback: %v", logs.messages)
			}
		})
	}
}

func TestDiscover_UnsafeAuthorizationServerFallsBack(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/mcp", unauthorized(`Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`))
	srv.HandleJSON(mcpHost, WellKnownProtectedResourcePath, http.StatusOK, map[string]any{
		"authorization_servers": []string{"https://internal.example.com/auth"},
	})
	srv.HandleJSON(mcpHost, WellKnownAuthServerPath, http.StatusOK, metadataFor("https://mcp.example.com"))

	res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/mcp", nil)

	if res.Tier != TierOrigin {
		t.Errorf("Tier = %q, want %q", res.Tier, TierOrigin)
	}
	if res.ProtectedResource != nil {
		t.Errorf("ProtectedResource = %+v, want nil", res.ProtectedResource)
	}
	if requestedPrefix(srv, "/auth") {
		t.Error("authorization server on a private address was fetched")
	}
}

func TestDiscover_AuthorizationServerOnOtherHost(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/mcp", unauthorized(`Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`))
	srv.HandleJSON(mcpHost, WellKnownProtectedResourcePath, http.StatusOK, map[string]any{
		"authorization_servers": []string{"https://auth.example.com", "https://ignored.example.com"},
	})
	srv.HandleJSON("auth.example.com", WellKnownAuthServerPath, http.StatusOK, metadataFor("https://auth.example.com"))

	got := d.Discover(context.Background(), "https://mcp.example.com/mcp", nil)
	if diff := cmp.Diff(wantMetadataFor("https://auth.example.com"), got); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscover_TrailingSlashNormalized(t *testing.T) {
	for _, server := range []string{"https://mcp.example.com/my/auth", "https://mcp.example.com/my/auth/"} {
		t.Run(server, func(t *testing.T) {
			d, srv := newTestDiscoverer(t)

			srv.Handle(mcpHost, "/my/mcp", unauthorized(`Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource/my"`))
			srv.HandleJSON(mcpHost, "/.well-known/oauth-protected-resource/my", http.StatusOK, map[string]any{
				"authorization_servers": []string{server},
			})
			srv.HandleJSON(mcpHost, "/my/auth/.well-known/oauth-authorization-server", http.StatusOK,
				metadataFor("https://mcp.example.com/my/auth"))

			res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/my/mcp", nil)
			if res.Tier != TierProtectedResource {
				t.Errorf("Tier = %q, want %q", res.Tier, TierProtectedResource)
			}
		})
	}
}

func TestDiscover_MalformedJSONFallsBack(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/a/mcp", unauthorized(`Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`))
	srv.HandleJSON(mcpHost, WellKnownProtectedResourcePath, http.StatusOK, `{"authorization_servers": [`)
	srv.HandleJSON(mcpHost, WellKnownAuthServerPath, http.StatusOK, `<html>oops</html>`)
	srv.HandleJSON(mcpHost, WellKnownAuthServerPath+"/a/mcp", http.StatusOK, metadataFor("https://mcp.example.com"))

	res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/a/mcp", nil)

	if diff := cmp.Diff(wantMetadataFor("https://mcp.example.com"), res.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if res.Tier != TierPathScoped {
		t.Errorf("Tier = %q, want %q", res.Tier, TierPathScoped)
	}
}

func TestDiscover_IncompleteMetadataRejected(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/mcp", status(http.StatusOK))
	srv.HandleJSON(mcpHost, WellKnownAuthServerPath, http.StatusOK, map[string]any{
		"authorization_endpoint": "https://mcp.example.com/authorize",
	})
	srv.HandleJSON(mcpHost, WellKnownAuthServerPath+"/mcp", http.StatusOK, map[string]any{
		"token_endpoint": "https://mcp.example.com/token",
	})

	logs := &logRecorder{}
	if got := d.Discover(context.Background(), "https://mcp.example.com/mcp", logs.log); got != nil {
		t.Errorf("Discover() = %+v, want nil", got)
	}
	if !logs.contains("No OAuth metadata found") {
		t.Errorf("logs do not report failure: %v", logs.messages)
	}
}

func TestDiscover_EmptyAuthorizationServersFallsBack(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/mcp", unauthorized(`Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`))
	srv.HandleJSON(mcpHost, WellKnownProtectedResourcePath, http.StatusOK, map[string]any{
		"resource":              "https://mcp.example.com/mcp",
		"authorization_servers": []string{},
	})
	srv.HandleJSON(mcpHost, WellKnownAuthServerPath, http.StatusOK, metadataFor("https://mcp.example.com"))

	res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/mcp", nil)
	if res.Tier != TierOrigin {
		t.Errorf("Tier = %q, want %q", res.Tier, TierOrigin)
	}
}

func TestDiscover_HeadNotAllowedRetriesWithGet(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		unauthorized(`Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`)(w, r)
	})
	srv.HandleJSON(mcpHost, WellKnownProtectedResourcePath, http.StatusOK, map[string]any{
		"authorization_servers": []string{"https://auth.example.com/"},
	})
	srv.HandleJSON("auth.example.com", WellKnownAuthServerPath, http.StatusOK, metadataFor("https://auth.example.com"))

	res := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/mcp", nil)

	if res.Tier != TierProtectedResource {
		t.Fatalf("Tier = %q, want %q", res.Tier, TierProtectedResource)
	}
	var methods []string
	for _, r := range srv.Requests() {
		if r.Host == mcpHost && r.Path == "/mcp" {
			methods = append(methods, r.Method)
		}
	}
	if diff := cmp.Diff([]string{http.MethodHead, http.MethodGet}, methods); diff != "" {
		t.Errorf("probe methods mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscover_Idempotent(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.Handle(mcpHost, "/my/mcp", unauthorized(`Bearer resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource/my"`))
	srv.HandleJSON(mcpHost, "/.well-known/oauth-protected-resource/my", http.StatusOK, map[string]any{
		"authorization_servers": []string{"https://mcp.example.com/my/auth/"},
	})
	srv.HandleJSON(mcpHost, "/my/auth/.well-known/oauth-authorization-server", http.StatusOK,
		metadataFor("https://mcp.example.com/my/auth"))

	first := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/my/mcp", nil)
	second := d.DiscoverWithDetails(context.Background(), "https://mcp.example.com/my/mcp", nil)

	if first.Metadata == nil {
		t.Fatal("first discovery found nothing")
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated discovery differs (-first +second):\n%s", diff)
	}
	if first.Metadata == second.Metadata {
		t.Error("results share state between calls")
	}
}

func TestDiscover_InvalidResourceURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/mcp", "https://", "://missing-scheme", "mcp.example.com/mcp"} {
		t.Run(raw, func(t *testing.T) {
			d, srv := newTestDiscoverer(t)

			logs := &logRecorder{}
			if got := d.Discover(context.Background(), raw, logs.log); got != nil {
				t.Errorf("Discover(%q) = %+v, want nil", raw, got)
			}
			if n := len(srv.Requests()); n != 0 {
				t.Errorf("Discover(%q) made %d requests, want 0", raw, n)
			}
			if !logs.contains("Invalid resource URL") {
				t.Errorf("logs = %v", logs.messages)
			}
		})
	}
}

func TestDiscover_NonHTTPSResource(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	logs := &logRecorder{}
	if got := d.Discover(context.Background(), "http://mcp.example.com/mcp", logs.log); got != nil {
		t.Errorf("Discover() = %+v, want nil", got)
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("made %d requests, want 0", n)
	}
	if !logs.contains("No OAuth metadata found") {
		t.Errorf("logs = %v", logs.messages)
	}
}

func TestDiscover_RootPathSkipsPathScoped(t *testing.T) {
	d, srv := newTestDiscoverer(t)
	srv.Handle(mcpHost, "/", status(http.StatusOK))

	if got := d.Discover(context.Background(), "https://mcp.example.com/", nil); got != nil {
		t.Errorf("Discover() = %+v, want nil", got)
	}
	if n := srv.RequestCount(mcpHost, WellKnownAuthServerPath); n != 1 {
		t.Errorf("origin metadata requested %d times, want 1", n)
	}
	if n := srv.RequestCount(mcpHost, WellKnownAuthServerPath+"/"); n != 0 {
		t.Errorf("path-scoped metadata requested %d times for a root path", n)
	}
}

func TestDiscoverFromChallenge(t *testing.T) {
	d, srv := newTestDiscoverer(t)

	srv.HandleJSON(mcpHost, WellKnownProtectedResourcePath, http.StatusOK, map[string]any{
		"authorization_servers": []string{"https://auth.example.com"},
	})
	srv.HandleJSON("auth.example.com", WellKnownAuthServerPath, http.StatusOK, metadataFor("https://auth.example.com"))

	res := d.DiscoverFromChallenge(context.Background(), "https://mcp.example.com/mcp",
		`Bearer realm="mcp", resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"`, nil)

	if diff := cmp.Diff(wantMetadataFor("https://auth.example.com"), res.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if srv.RequestCount(mcpHost, "/mcp") != 0 {
		t.Error("resource was probed although a challenge was supplied")
	}
	if res.Challenge == nil || res.Challenge.Realm() != "mcp" {
		t.Errorf("Challenge = %+v", res.Challenge)
	}
}

func TestDiscover_RecordsTierEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	inst, err := instrumentation.New(instrumentation.Config{Enabled: true, TracerProvider: tp})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}

	d, srv := newTestDiscovererWithInstrumentation(t, inst)
	srv.Handle(ahrefsHost, "/mcp/mcp", status(http.StatusOK))
	srv.HandleJSON(ahrefsHost, WellKnownAuthServerPath+"/mcp/mcp", http.StatusOK, metadataFor("https://api.ahrefs.com"))

	if d.Discover(context.Background(), "https://api.ahrefs.com/mcp/mcp", nil) == nil {
		t.Fatal("Discover() = nil")
	}

	var discoverSpan sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "discovery.discover" {
			discoverSpan = s
		}
	}
	if discoverSpan == nil {
		t.Fatal("no discovery.discover span recorded")
	}

	var outcomes []string
	for _, e := range discoverSpan.Events() {
		for _, kv := range e.Attributes {
			if string(kv.Key) == instrumentation.AttrDiscoveryResult {
				outcomes = append(outcomes, kv.Value.AsString())
			}
		}
	}
	want := []string{outcomeSkipped, outcomeStatus, outcomeFound}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Errorf("tier outcomes mismatch (-want +got):\n%s", diff)
	}
}
