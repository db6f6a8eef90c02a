package storage

import (
	"fmt"

	"github.com/giantswarm/mcp-oauth-client/security"
)

// SealCredentials returns a copy of c with the access and refresh tokens
// encrypted. If encryptor is nil or disabled, the copy is returned unchanged.
// Expiry and source are not sensitive and are stored in the clear.
func SealCredentials(c *Credentials, encryptor *security.Encryptor) (*Credentials, error) {
	return transformTokens(c, encryptor.Encrypt, "encrypt")
}

// OpenCredentials reverses SealCredentials.
func OpenCredentials(c *Credentials, encryptor *security.Encryptor) (*Credentials, error) {
	return transformTokens(c, encryptor.Decrypt, "decrypt")
}

func transformTokens(c *Credentials, transform func(string) (string, error), op string) (*Credentials, error) {
	if c == nil {
		return nil, nil
	}
	out := c.Clone()

	if out.AccessToken != "" {
		v, err := transform(out.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to %s access token: %w", op, err)
		}
		out.AccessToken = v
	}
	if out.RefreshToken != "" {
		v, err := transform(out.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to %s refresh token: %w", op, err)
		}
		out.RefreshToken = v
	}
	return out, nil
}
