// Package token manages the lifecycle of a stored OAuth access token.
//
// Manager.GetValidToken returns the stored access token while it is valid and
// refreshes it through a providers.TokenRefresher once it expires. Refreshes
// are single-flight per Manager: the first caller performs the network call
// and later callers wait for it, then read the outcome back from the store.
//
// A refresh rejected with invalid_grant (or an equivalent signature) clears
// the stored tokens. When the rejected credentials came from the legacy CLI
// login, or carry no provenance at all, the result also asks the user to sign
// in again:
//
//	res := mgr.GetValidToken(ctx)
//	if res.MigrationRequired != nil {
//	    prompt(res.MigrationRequired.Message)
//	}
//
// Transient failures such as network errors leave the stored credentials
// untouched.
package token
