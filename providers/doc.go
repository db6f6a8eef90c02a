// Package providers defines the token refresh collaborator and its result types.
//
// TokenRefresher is the only provider operation the token lifecycle manager
// needs: exchange a refresh token at a fixed token endpoint. A rejected refresh
// is reported as a *RefreshError carrying the OAuth error code, which lets the
// manager detect invalid_grant without matching on error text.
//
// Implementations are provided in subpackages:
//   - providers/oauth2: refresher backed by golang.org/x/oauth2
//   - providers/mock: scriptable refresher for testing
//
// Example usage:
//
//	refresher, err := oauth2.NewProvider(&oauth2.Config{
//	    TokenURL: "https://auth.example.com/oauth/token",
//	    ClientID: "desktop-app",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	manager := token.NewManager(store, refresher)
package providers
