package discovery

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeAuthServerMetadata(t *testing.T) {
	body := `{
		"issuer": "https://auth.example.com",
		"authorization_endpoint": "https://auth.example.com/authorize",
		"token_endpoint": "https://auth.example.com/token",
		"registration_endpoint": "https://auth.example.com/register",
		"scopes_supported": ["openid", "mcp"],
		"code_challenge_methods_supported": ["S256"],
		"x_vendor_extension": {"nested": true}
	}`

	got, err := DecodeAuthServerMetadata([]byte(body))
	if err != nil {
		t.Fatalf("DecodeAuthServerMetadata() error = %v", err)
	}

	want := &AuthServerMetadata{
		Issuer:                        "https://auth.example.com",
		AuthorizationEndpoint:         "https://auth.example.com/authorize",
		TokenEndpoint:                 "https://auth.example.com/token",
		RegistrationEndpoint:          "https://auth.example.com/register",
		ScopesSupported:               []string{"openid", "mcp"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeAuthServerMetadata() mismatch (-want +got):\n%s", diff)
	}
	if !got.SupportsPKCE() {
		t.Error("SupportsPKCE() = false, want true")
	}
}

func TestDecodeAuthServerMetadata_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid JSON", body: `{"authorization_endpoint":`},
		{name: "HTML", body: `<html>not found</html>`},
		{name: "array", body: `[]`},
		{name: "null", body: `null`},
		{name: "missing token endpoint", body: `{"authorization_endpoint":"https://a/authorize"}`},
		{name: "missing authorization endpoint", body: `{"token_endpoint":"https://a/token"}`},
		{name: "empty token endpoint", body: `{"authorization_endpoint":"https://a/authorize","token_endpoint":""}`},
		{name: "non-string endpoint", body: `{"authorization_endpoint":42,"token_endpoint":"https://a/token"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAuthServerMetadata([]byte(tt.body))
			if got != nil {
				t.Errorf("DecodeAuthServerMetadata() = %+v, want nil", got)
			}
			var me *MalformedMetadataError
			if !errors.As(err, &me) {
				t.Errorf("error = %v, want *MalformedMetadataError", err)
			}
		})
	}
}

func TestDecodeAuthServerMetadata_IgnoresBadOptionalFields(t *testing.T) {
	got, err := DecodeAuthServerMetadata([]byte(`{
		"authorization_endpoint": "https://a/authorize",
		"token_endpoint": "https://a/token",
		"scopes_supported": "openid",
		"registration_endpoint": 7
	}`))
	if err != nil {
		t.Fatalf("DecodeAuthServerMetadata() error = %v", err)
	}
	if got.ScopesSupported != nil || got.RegistrationEndpoint != "" {
		t.Errorf("optional fields = %+v, want empty", got)
	}
}

func TestDecodeProtectedResourceMetadata(t *testing.T) {
	got, err := DecodeProtectedResourceMetadata([]byte(`{
		"resource": "https://mcp.example.com/my/mcp",
		"authorization_servers": ["https://mcp.example.com/my/auth/"],
		"bearer_methods_supported": ["header"]
	}`))
	if err != nil {
		t.Fatalf("DecodeProtectedResourceMetadata() error = %v", err)
	}

	want := &ProtectedResourceMetadata{
		Resource:               "https://mcp.example.com/my/mcp",
		AuthorizationServers:   []string{"https://mcp.example.com/my/auth/"},
		BearerMethodsSupported: []string{"header"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeProtectedResourceMetadata() mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeProtectedResourceMetadata([]byte(`{"authorization_servers":"https://a"}`)); err == nil {
		t.Error("expected error for non-list authorization_servers")
	}
	empty, err := DecodeProtectedResourceMetadata([]byte(`{"resource":"x"}`))
	if err != nil || len(empty.AuthorizationServers) != 0 {
		t.Errorf("missing authorization_servers: got %+v, %v", empty, err)
	}
}
