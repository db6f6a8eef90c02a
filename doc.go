// Package oauth is an OAuth 2.0 client library for MCP (Model Context
// Protocol) clients.
//
// A Client does two jobs. It discovers the authorization server protecting an
// MCP resource, following RFC 9728 protected resource metadata and falling
// back to RFC 8414 well-known metadata. And it hands out valid access tokens
// for one stored credential set, refreshing them single-flight and flagging
// legacy credentials that must be replaced by a new sign-in.
//
// Every URL discovery fetches must use https. URLs taken from remote responses
// must also resolve to public addresses, and redirects are never followed.
//
//	client, err := oauth.New(&oauth.Config{
//	    Provider: oauth.ProviderConfig{
//	        TokenURL: "https://auth.example.com/oauth/token",
//	        ClientID: "mcp-desktop",
//	    },
//	    Store: store,
//	})
//	if err != nil {
//	    return err
//	}
//
//	md := client.Discover(ctx, "https://mcp.example.com/mcp", nil)
//
//	res := client.GetValidToken(ctx)
//	if res.MigrationRequired != nil {
//	    // ask the user to sign in again
//	}
//
// Subpackages can be used on their own: safefetch for policy-checked fetches,
// discovery for metadata discovery, token for the lifecycle manager, and
// storage for credential stores.
package oauth
