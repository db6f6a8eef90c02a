// Package storage provides the credential store contract and shared types for
// the mcp-oauth-client library.
//
// CredentialStore is the only persistence surface the token lifecycle manager
// touches: Get returns the whole credential set, Set applies a partial update
// (CredentialsUpdate) where nil fields are left unchanged.
//
// Credentials carry a Source provenance tag. Credentials written before the tag
// existed have SourceUnknown, which Source.Effective reports as SourceCLI so
// that migration decisions stay conservative.
//
// SealCredentials and OpenCredentials encrypt and decrypt the token fields with
// a security.Encryptor; both reference stores use them.
//
// Implementations are provided in subpackages:
//   - storage/memory: in-memory store for tests and single-process use
//   - storage/mock: mock store with call recording and error injection
//   - storage/valkey: Valkey/Redis-compatible store shared across processes
package storage
