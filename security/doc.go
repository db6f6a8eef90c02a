// Package security provides the security primitives of the mcp-oauth-client
// library: credential encryption at rest, audit logging, and outbound rate
// limiting.
//
// # Encryption
//
// Encryptor seals credential fields with AES-256-GCM. Stores hold one Encryptor
// per credential namespace; DeriveKey (HKDF-SHA256) turns a single master key into
// independent per-namespace keys.
//
//	master, _ := security.KeyFromBase64(os.Getenv("OAUTH_ENCRYPTION_KEY"))
//	key, _ := security.DeriveKey(master, "default")
//	enc, _ := security.NewEncryptor(key)
//
// # Audit logging
//
// Auditor emits "security_audit" records for blocked fetches, refreshes, refresh
// failures, legacy-token migrations and credential clearing. Token values are only
// ever logged as truncated SHA-256 fingerprints.
//
// # Rate limiting
//
// RateLimiter is a per-identifier token bucket (golang.org/x/time/rate) with
// oldest-first eviction. The fetcher keys it by destination host.
package security
