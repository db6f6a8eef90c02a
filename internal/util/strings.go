package util

import (
	"net/url"
	"strings"
)

// SafeTruncate truncates s to at most maxLen bytes without panicking.
// Used when only a prefix of an identifier may appear in logs.
// A negative maxLen yields the empty string.
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TrimTrailingSlash removes exactly one trailing "/" from s, if present.
// Authorization server base URLs are joined with well-known suffixes after this,
// so "https://as.example.com/auth/" and "https://as.example.com/auth" produce the
// same discovery URL.
//
// Example:
//
//	TrimTrailingSlash("https://example.com/auth/") // Returns: "https://example.com/auth"
//	TrimTrailingSlash("https://example.com//")     // Returns: "https://example.com/"
func TrimTrailingSlash(s string) string {
	return strings.TrimSuffix(s, "/")
}

// Origin returns the scheme and host of u ("https://host:port"), without path,
// query or fragment.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}
