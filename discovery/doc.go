// Package discovery locates OAuth 2.0 authorization server metadata for a
// protected resource such as an MCP endpoint.
//
// Discovery runs in tiers and the first tier yielding a valid document wins:
//
//  1. The resource is probed with HEAD (GET on 405). A 401 response may carry
//     a Bearer challenge with an RFC 9728 resource_metadata hint.
//  2. The hint is fetched as a protected resource metadata document and the
//     first authorization_servers entry is taken as the server base.
//  3. RFC 8414 metadata is fetched from {base}/.well-known/oauth-authorization-server.
//  4. RFC 8414 metadata is fetched from the resource's origin.
//  5. RFC 8414 metadata is fetched from the path-scoped well-known URL
//     {origin}/.well-known/oauth-authorization-server{path}.
//
// URLs taken from responses (the hint and the server base) are fetched under
// safefetch.PolicyUntrusted, so a hostile resource cannot point discovery at
// internal addresses. Every failure falls through to the next tier; Discover
// returns nil only when all tiers are exhausted.
//
// Metadata documents are decoded by DecodeAuthServerMetadata, which returns a
// complete record or a *MalformedMetadataError, never a partial record.
package discovery
