package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func tokenEndpoint(t *testing.T, status int, body map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}
}

func TestRefreshWithConfig_Success(t *testing.T) {
	srv := tokenEndpoint(t, http.StatusOK, map[string]any{
		"access_token":  "new-access",
		"refresh_token": "new-refresh",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"scope":         "read write",
	})

	resp, err := RefreshWithConfig(context.Background(), testConfig(srv.URL), srv.Client(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshWithConfig() error = %v", err)
	}
	if resp.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q, want new-access", resp.AccessToken)
	}
	if resp.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q, want new-refresh", resp.RefreshToken)
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be set from expires_in")
	}
	if len(resp.Scopes) != 2 || resp.Scopes[0] != "read" || resp.Scopes[1] != "write" {
		t.Errorf("Scopes = %v, want [read write]", resp.Scopes)
	}
}

func TestRefreshWithConfig_NoRotation(t *testing.T) {
	srv := tokenEndpoint(t, http.StatusOK, map[string]any{
		"access_token": "new-access",
		"token_type":   "Bearer",
	})

	resp, err := RefreshWithConfig(context.Background(), testConfig(srv.URL), srv.Client(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshWithConfig() error = %v", err)
	}
	if resp.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty when the provider does not rotate", resp.RefreshToken)
	}
}

func TestRefreshWithConfig_InvalidGrant(t *testing.T) {
	srv := tokenEndpoint(t, http.StatusBadRequest, map[string]any{
		"error":             "invalid_grant",
		"error_description": "Refresh token not found or invalid",
	})

	_, err := RefreshWithConfig(context.Background(), testConfig(srv.URL), srv.Client(), "old-refresh")
	if err == nil {
		t.Fatal("RefreshWithConfig() should fail")
	}

	re, ok := AsRefreshError(err)
	if !ok {
		t.Fatalf("error %v is not a RefreshError", err)
	}
	if re.Code != ErrorCodeInvalidGrant {
		t.Errorf("Code = %q, want %q", re.Code, ErrorCodeInvalidGrant)
	}
	if re.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", re.Status)
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Errorf("error text %q should carry the OAuth code", err.Error())
	}
}

func TestRefreshWithConfig_TransportError(t *testing.T) {
	srv := tokenEndpoint(t, http.StatusOK, nil)
	url := srv.URL
	srv.Close()

	_, err := RefreshWithConfig(context.Background(), testConfig(url), http.DefaultClient, "old-refresh")
	if err == nil {
		t.Fatal("RefreshWithConfig() should fail when the endpoint is down")
	}
	if _, ok := AsRefreshError(err); ok {
		t.Error("transport failures must not be reported as RefreshError")
	}
}

func TestRefreshError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RefreshError
		want string
	}{
		{"code and description", NewRefreshError("invalid_grant", "expired", 400), "invalid_grant: expired"},
		{"code only", NewRefreshError("invalid_client", "", 401), "invalid_client"},
		{"status only", NewRefreshError("", "", 502), "token endpoint returned status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsRefreshError_Wrapped(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), NewRefreshError("invalid_grant", "", 400))
	if _, ok := AsRefreshError(wrapped); !ok {
		t.Error("AsRefreshError should find a joined RefreshError")
	}
	if _, ok := AsRefreshError(errors.New("plain")); ok {
		t.Error("AsRefreshError should not match a plain error")
	}
}

func TestTokenRefresherFunc(t *testing.T) {
	var got string
	var r TokenRefresher = TokenRefresherFunc(func(_ context.Context, rt string) (*TokenResponse, error) {
		got = rt
		return &TokenResponse{AccessToken: "a"}, nil
	})

	resp, err := r.RefreshToken(context.Background(), "rt")
	if err != nil || resp.AccessToken != "a" || got != "rt" {
		t.Errorf("TokenRefresherFunc did not delegate: resp=%v err=%v got=%q", resp, err, got)
	}
}

func TestValidateScopes(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		wantErr bool
	}{
		{"nil", nil, false},
		{"valid", []string{"openid", "offline_access"}, false},
		{"empty entry", []string{"openid", ""}, true},
		{"whitespace", []string{"read write"}, true},
		{"too long", []string{strings.Repeat("a", 257)}, true},
		{"too many", make([]string, 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScopes(tt.scopes)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScopes() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
