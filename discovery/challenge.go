package discovery

import (
	"net/url"
	"strings"
)

// Challenge is a parsed Bearer challenge from a WWW-Authenticate header.
// Parameter names are lower-cased.
type Challenge struct {
	Scheme string
	Params map[string]string
}

// Realm returns the realm parameter
func (c *Challenge) Realm() string { return c.Params["realm"] }

// Error returns the OAuth error code, if any
func (c *Challenge) Error() string { return c.Params["error"] }

// ErrorDescription returns the error_description parameter
func (c *Challenge) ErrorDescription() string { return c.Params["error_description"] }

// ResourceMetadata returns the raw resource_metadata parameter (RFC 9728)
func (c *Challenge) ResourceMetadata() string { return c.Params["resource_metadata"] }

// Scopes splits the space-delimited scope parameter
func (c *Challenge) Scopes() []string {
	return strings.Fields(c.Params["scope"])
}

// ResourceMetadataURL returns the resource_metadata parameter as an absolute
// URL, or nil if it is absent or not an absolute URL with a host.
func (c *Challenge) ResourceMetadataURL() *url.URL {
	raw := strings.TrimSpace(c.ResourceMetadata())
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil
	}
	return u
}

// ParseResourceMetadataHint extracts the resource_metadata URL from a
// WWW-Authenticate header value. It returns nil when there is no Bearer
// challenge, the parameter is missing or malformed, or its value is not an
// absolute URL. No fetch policy is applied to the result.
func ParseResourceMetadataHint(header string) *url.URL {
	ch, ok := ParseChallenge(header)
	if !ok {
		return nil
	}
	return ch.ResourceMetadataURL()
}

// ParseChallenge returns the first Bearer challenge in header. The scheme is
// matched case-insensitively and parameters may appear in any order, as
// tokens or as double- or single-quoted strings.
func ParseChallenge(header string) (*Challenge, bool) {
	for _, ch := range parseChallenges(header) {
		if strings.EqualFold(ch.Scheme, "Bearer") {
			return ch, true
		}
	}
	return nil, false
}

func parseChallenges(header string) []*Challenge {
	p := &challengeParser{s: header}

	var (
		challenges []*Challenge
		current    *Challenge
	)
	for {
		p.skip(" \t,")
		if p.done() {
			return challenges
		}

		name := p.token()
		if name == "" {
			// Not a token character; skip it.
			p.pos++
			continue
		}

		p.skip(" \t")
		if p.peek() != '=' {
			current = &Challenge{Scheme: name, Params: make(map[string]string)}
			challenges = append(challenges, current)
			continue
		}

		p.pos++
		p.skip(" \t")
		value, ok := p.value()
		if !ok || current == nil {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := current.Params[key]; !dup {
			current.Params[key] = value
		}
	}
}

type challengeParser struct {
	s   string
	pos int
}

func (p *challengeParser) done() bool { return p.pos >= len(p.s) }

func (p *challengeParser) peek() byte {
	if p.done() {
		return 0
	}
	return p.s[p.pos]
}

func (p *challengeParser) skip(chars string) {
	for !p.done() && strings.IndexByte(chars, p.s[p.pos]) >= 0 {
		p.pos++
	}
}

// token reads an RFC 7230 token. Single quotes are excluded so they can
// delimit values.
func (p *challengeParser) token() string {
	start := p.pos
	for !p.done() && isTokenChar(p.s[p.pos]) {
		p.pos++
	}
	return p.s[start:p.pos]
}

// value reads a quoted string or a bare value up to the next comma or space.
// An unterminated quote yields ok=false.
func (p *challengeParser) value() (string, bool) {
	switch q := p.peek(); q {
	case '"', '\'':
		p.pos++
		var b strings.Builder
		for !p.done() {
			c := p.s[p.pos]
			p.pos++
			switch {
			case c == q:
				return b.String(), true
			case c == '\\' && q == '"' && !p.done():
				b.WriteByte(p.s[p.pos])
				p.pos++
			default:
				b.WriteByte(c)
			}
		}
		return "", false
	default:
		start := p.pos
		for !p.done() && p.s[p.pos] != ',' && p.s[p.pos] != ' ' && p.s[p.pos] != '\t' {
			p.pos++
		}
		return p.s[start:p.pos], p.pos > start
	}
}

func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&*+-.^_`|~", c) >= 0
}
