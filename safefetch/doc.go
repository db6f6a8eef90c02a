// Package safefetch performs outbound HTTPS fetches under an SSRF policy.
//
// Every URL is required to use https. URLs taken from remote input
// (PolicyUntrusted) must additionally resolve only to public addresses:
// loopback, private (RFC 1918 and RFC 4193), link-local (including the cloud
// metadata address 169.254.169.254), unspecified and carrier-grade NAT ranges
// are refused, as are well-known metadata host names. The host is resolved
// before connecting, and when the fetcher owns its transport the dialed
// address is checked again at connect time.
//
// Redirects are never followed. 4xx and 5xx responses are returned to the
// caller like any other response; Fetch fails only on policy, rate limiting or
// transport errors.
//
//	f := safefetch.New(safefetch.Config{Logger: logger})
//	resp, err := f.Fetch(ctx, http.MethodGet, hint, safefetch.PolicyUntrusted)
//	if errors.Is(err, safefetch.ErrBlockedURL) {
//	    // fall through to the next discovery tier
//	}
package safefetch
