// Package memory provides an in-memory implementation of storage.CredentialStore.
//
// The store holds a single credential set behind a sync.RWMutex. When an
// Encryptor is configured the access and refresh tokens are kept sealed in
// memory and only opened on Get. It is suitable for tests, short-lived
// processes, and embedding applications that persist credentials themselves.
//
// Example usage:
//
//	store := memory.New()
//	enc, _ := security.NewEncryptor(key)
//	_ = store.SetEncryptor(enc)
//
//	manager := token.NewManager(store, refresher)
package memory
