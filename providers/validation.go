package providers

import (
	"fmt"
	"strings"
)

// ValidateScopes validates a list of OAuth scopes.
// It bounds the number and length of scopes and rejects empty entries.
func ValidateScopes(scopes []string) error {
	if len(scopes) > 50 {
		return fmt.Errorf("too many scopes (max 50, got %d)", len(scopes))
	}

	for i, scope := range scopes {
		if scope == "" {
			return fmt.Errorf("scope at index %d is empty", i)
		}
		if len(scope) > 256 {
			return fmt.Errorf("scope at index %d exceeds maximum length of 256 characters", i)
		}
		if strings.ContainsAny(scope, " \t\n") {
			return fmt.Errorf("scope at index %d contains whitespace", i)
		}
	}

	return nil
}

// splitScope splits a space-delimited scope string
func splitScope(scope string) []string {
	return strings.Fields(scope)
}
