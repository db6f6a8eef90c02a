// Package oauth2 provides a providers.TokenRefresher backed by golang.org/x/oauth2.
//
// The provider performs the refresh_token grant against one fixed token
// endpoint. OAuth error responses (for example invalid_grant) are returned as
// *providers.RefreshError with the code, description and HTTP status.
//
// Example usage:
//
//	refresher, err := oauth2.NewProvider(&oauth2.Config{
//	    TokenURL: "https://auth.example.com/oauth/token",
//	    ClientID: "desktop-app",
//	})
package oauth2
