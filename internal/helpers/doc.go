// Package helpers provides address classification shared by the fetch and
// discovery layers of the mcp-oauth-client library.
//
// Key utilities:
//   - ClassifyIP: Classifies IP addresses for SSRF protection (public, private, loopback, etc.)
//   - IsLinkLocal: Checks if an IP is link-local (cloud metadata SSRF protection)
//   - IsBlockedHostname: Rejects localhost and cloud metadata service names before DNS
//   - ParseHostIP: Recognises IP-literal hosts, including bracketed IPv6
package helpers
