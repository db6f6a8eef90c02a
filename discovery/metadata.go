package discovery

import (
	"encoding/json"
	"fmt"
)

// ProtectedResourceMetadata is an RFC 9728 protected resource metadata document.
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers,omitempty"`
	ScopesSupported        []string `json:"scopes_supported,omitempty"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// AuthServerMetadata is an RFC 8414 authorization server metadata document.
// Only AuthorizationEndpoint and TokenEndpoint are required.
type AuthServerMetadata struct {
	Issuer                        string   `json:"issuer,omitempty"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint            string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// SupportsPKCE reports whether the server advertises the S256 code challenge method
func (m *AuthServerMetadata) SupportsPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == "S256" {
			return true
		}
	}
	return false
}

// MalformedMetadataError reports a metadata document that is not valid JSON
// or lacks a required field.
type MalformedMetadataError struct {
	Reason string
}

func (e *MalformedMetadataError) Error() string {
	return "malformed metadata: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &MalformedMetadataError{Reason: fmt.Sprintf(format, args...)}
}

// DecodeAuthServerMetadata decodes an RFC 8414 document. It returns either a
// record with both required endpoints present or a *MalformedMetadataError,
// never a partial record. Optional fields of an unexpected type are ignored.
func DecodeAuthServerMetadata(body []byte) (*AuthServerMetadata, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	md := &AuthServerMetadata{}
	if md.AuthorizationEndpoint, err = requiredString(fields, "authorization_endpoint"); err != nil {
		return nil, err
	}
	if md.TokenEndpoint, err = requiredString(fields, "token_endpoint"); err != nil {
		return nil, err
	}

	md.Issuer = optionalString(fields, "issuer")
	md.RegistrationEndpoint = optionalString(fields, "registration_endpoint")
	md.RevocationEndpoint = optionalString(fields, "revocation_endpoint")
	md.ScopesSupported = optionalStrings(fields, "scopes_supported")
	md.ResponseTypesSupported = optionalStrings(fields, "response_types_supported")
	md.GrantTypesSupported = optionalStrings(fields, "grant_types_supported")
	md.CodeChallengeMethodsSupported = optionalStrings(fields, "code_challenge_methods_supported")
	return md, nil
}

// DecodeProtectedResourceMetadata decodes an RFC 9728 document. A missing or
// empty authorization_servers list is not an error here; callers treat it as
// absent.
func DecodeProtectedResourceMetadata(body []byte) (*ProtectedResourceMetadata, error) {
	fields, err := decodeObject(body)
	if err != nil {
		return nil, err
	}

	prm := &ProtectedResourceMetadata{
		Resource:               optionalString(fields, "resource"),
		ScopesSupported:        optionalStrings(fields, "scopes_supported"),
		BearerMethodsSupported: optionalStrings(fields, "bearer_methods_supported"),
		ResourceName:           optionalString(fields, "resource_name"),
	}

	if raw, ok := fields["authorization_servers"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &prm.AuthorizationServers); err != nil {
			return nil, malformed("authorization_servers is not a list of strings")
		}
	}
	return prm, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	if fields == nil {
		return nil, malformed("document is not a JSON object")
	}
	return fields, nil
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", malformed("missing %s", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", malformed("%s is not a string", name)
	}
	if s == "" {
		return "", malformed("empty %s", name)
	}
	return s, nil
}

func optionalString(fields map[string]json.RawMessage, name string) string {
	var s string
	if raw, ok := fields[name]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func optionalStrings(fields map[string]json.RawMessage, name string) []string {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil
	}
	return ss
}
