// Package util provides small string and URL helpers used across the
// mcp-oauth-client library.
//
// Key utilities:
//   - SafeTruncate: Safely truncates strings for logging sensitive data
//   - TrimTrailingSlash: Normalises authorization server base URLs
//   - Origin: Extracts scheme://host from a parsed URL
package util
