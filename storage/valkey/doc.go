// Package valkey provides a Valkey storage backend for mcp-oauth-client
// credentials.
//
// Valkey is a key-value store that is wire-compatible with Redis. Storing
// credentials there lets several processes (for example a desktop app and a
// CLI) share one credential set.
//
// # Key Schema
//
// Each Store serves one credential namespace:
//
//	{prefix}credentials:{namespace} -> JSON{access_token, refresh_token, expires_at, source}
//
// # Atomic Updates
//
// Set applies a partial update through a Lua script that merges the changed
// fields into the stored document, so two processes updating different fields
// never overwrite each other.
//
// # Configuration
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "localhost:6379",
//	    Namespace: "default",
//	})
//
// With TLS and encryption at rest:
//
//	master, _ := security.KeyFromBase64(os.Getenv("OAUTH_ENCRYPTION_KEY"))
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	    Namespace: "work",
//	    MasterKey: master,
//	})
//
// MasterKey is expanded per namespace with HKDF (security.DeriveKey); the
// derived key encrypts access and refresh tokens with AES-256-GCM. Expiry and
// source are stored in the clear.
package valkey
