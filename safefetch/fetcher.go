package safefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/internal/helpers"
	"github.com/giantswarm/mcp-oauth-client/internal/util"
	"github.com/giantswarm/mcp-oauth-client/security"
)

const (
	// DefaultTimeout bounds a single fetch when the fetcher builds its own client
	DefaultTimeout = 10 * time.Second

	// DefaultMaxBodyBytes bounds response bodies read through ReadBody (1 MiB)
	DefaultMaxBodyBytes = 1 << 20

	// DefaultUserAgent is sent with every request
	DefaultUserAgent = "mcp-oauth-client"

	urlLogLength = 200
)

// Policy selects the checks applied before a fetch.
type Policy int

const (
	// PolicyHTTPSOnly is for URLs the caller supplied directly. Only the
	// scheme is enforced.
	PolicyHTTPSOnly Policy = iota

	// PolicyUntrusted is for URLs taken from remote, attacker-influenced
	// input: challenge hints and metadata documents. The target must also
	// resolve only to public addresses.
	PolicyUntrusted
)

func (p Policy) String() string {
	switch p {
	case PolicyHTTPSOnly:
		return "https_only"
	case PolicyUntrusted:
		return "untrusted"
	default:
		return "unknown"
	}
}

// Resolver resolves host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Config configures a Fetcher. The zero value is usable.
type Config struct {
	// HTTPClient is used for every request. When nil the fetcher builds its
	// own clients, and untrusted connections re-check the dialed address.
	// Redirects are never followed regardless of the client's settings.
	HTTPClient *http.Client

	// Resolver is used to pre-resolve untrusted hosts (default net.DefaultResolver)
	Resolver Resolver

	// Timeout applies to clients built by the fetcher (default 10s)
	Timeout time.Duration

	// MaxBodyBytes bounds ReadBody (default 1 MiB)
	MaxBodyBytes int64

	// UserAgent is sent with every request (default "mcp-oauth-client")
	UserAgent string

	// HostRateLimit is the allowed fetches per second per host. Zero disables
	// per-host limiting.
	HostRateLimit float64

	// HostBurst is the per-host burst size (default 1 when limiting)
	HostBurst int

	// AllowPrivateNetworks disables the address checks of PolicyUntrusted.
	// The scheme is still enforced. Never enable outside tests.
	AllowPrivateNetworks bool

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Auditor receives blocked and rate-limited fetch events (optional)
	Auditor *security.Auditor

	// Instrumentation records fetch metrics and spans (optional)
	Instrumentation *instrumentation.Instrumentation
}

// Fetcher performs outbound HTTPS requests under a URL policy.
type Fetcher struct {
	trusted   *http.Client
	untrusted *http.Client
	resolver  Resolver
	limiter   *security.RateLimiter

	maxBodyBytes         int64
	userAgent            string
	allowPrivateNetworks bool

	logger  *slog.Logger
	auditor *security.Auditor
	inst    *instrumentation.Instrumentation
	tracer  trace.Tracer
}

// New creates a Fetcher from cfg
func New(cfg Config) *Fetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	inst := instrumentation.OrNoop(cfg.Instrumentation)

	f := &Fetcher{
		resolver:             resolver,
		maxBodyBytes:         maxBody,
		userAgent:            userAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
		logger:               logger,
		auditor:              cfg.Auditor,
		inst:                 inst,
		tracer:               inst.Tracer("fetch"),
	}

	if cfg.HostRateLimit > 0 {
		f.limiter = security.NewRateLimiter(cfg.HostRateLimit, cfg.HostBurst, logger)
	}

	if cfg.HTTPClient != nil {
		f.trusted = withoutRedirects(cfg.HTTPClient)
		f.untrusted = f.trusted
	} else {
		f.trusted = &http.Client{
			Timeout:       timeout,
			Transport:     newTransport(nil),
			CheckRedirect: noRedirect,
		}
		f.untrusted = &http.Client{
			Timeout:       timeout,
			Transport:     newTransport(f.checkDialedAddress),
			CheckRedirect: noRedirect,
		}
	}

	if cfg.AllowPrivateNetworks {
		logger.Warn("Private network fetches are allowed; SSRF protection is disabled")
	}

	return f
}

// Close stops the per-host limiter's background sweep. The Fetcher remains
// usable.
func (f *Fetcher) Close() {
	f.limiter.Stop()
}

// MaxBodyBytes returns the response body limit applied by ReadBody
func (f *Fetcher) MaxBodyBytes() int64 {
	return f.maxBodyBytes
}

// Check applies policy to rawURL without fetching it. Under PolicyUntrusted
// the host is resolved.
func (f *Fetcher) Check(ctx context.Context, rawURL string, policy Policy) error {
	_, err := f.check(ctx, rawURL, policy)
	return err
}

// Fetch performs method against rawURL after applying policy. Redirects are
// returned as ordinary responses, as are 4xx and 5xx statuses. Errors come only
// from policy (*BlockedURLError), the rate limiter (ErrRateLimited) or the
// transport. The caller must close the response body.
func (f *Fetcher) Fetch(ctx context.Context, method, rawURL string, policy Policy) (*http.Response, error) {
	ctx, span := f.tracer.Start(ctx, "fetch")
	defer span.End()

	u, err := f.check(ctx, rawURL, policy)
	if err != nil {
		f.recordBlocked(ctx, span, rawURL, policy, err)
		return nil, err
	}

	instrumentation.AddFetchAttributes(span, method, u.Hostname(), policy.String())

	if f.limiter != nil && !f.limiter.Allow(u.Hostname()) {
		f.auditor.LogFetchRateLimited(u.Hostname())
		f.inst.Metrics().RecordFetchRateLimited(ctx)
		instrumentation.SetSpanError(span, "rate limited")
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	client := f.trusted
	if policy == PolicyUntrusted {
		client = f.untrusted
	}

	resp, err := client.Do(req)
	if err != nil {
		instrumentation.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch %s: %w", util.SafeTruncate(u.Redacted(), urlLogLength), err)
	}

	instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrFetchStatus, resp.StatusCode))
	instrumentation.SetSpanSuccess(span)
	return resp, nil
}

// ReadBody reads and closes resp.Body, failing with ErrBodyTooLarge when it
// exceeds the configured limit.
func (f *Fetcher) ReadBody(resp *http.Response) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// check parses rawURL and applies policy, returning the parsed URL.
func (f *Fetcher) check(ctx context.Context, rawURL string, policy Policy) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, blocked(rawURL, ReasonInvalidURL, err.Error())
	}
	if u.Scheme != "https" {
		return nil, blocked(rawURL, ReasonScheme, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return nil, blocked(rawURL, ReasonMissingHost, "")
	}

	if policy != PolicyUntrusted || f.allowPrivateNetworks {
		return u, nil
	}

	if helpers.IsBlockedHostname(host) {
		return nil, blocked(rawURL, ReasonBlockedHostname, host)
	}

	if ip := helpers.ParseHostIP(host); ip != nil {
		if class := helpers.ClassifyIP(ip); class != helpers.IPClassificationPublic {
			return nil, blocked(rawURL, ReasonBlockedAddress, fmt.Sprintf("%s is %s", ip, class))
		}
		return u, nil
	}

	addrs, err := f.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, blocked(rawURL, ReasonDNSFailure, err.Error())
	}
	if len(addrs) == 0 {
		return nil, blocked(rawURL, ReasonNoAddresses, host)
	}
	for _, addr := range addrs {
		if class := helpers.ClassifyIP(addr.IP); class != helpers.IPClassificationPublic {
			return nil, blocked(rawURL, ReasonBlockedAddress, fmt.Sprintf("%s resolves to %s address %s", host, class, addr.IP))
		}
	}

	return u, nil
}

func (f *Fetcher) recordBlocked(ctx context.Context, span trace.Span, rawURL string, policy Policy, err error) {
	reason := "unknown"
	var be *BlockedURLError
	if errors.As(err, &be) {
		reason = be.Reason
	}

	target := util.SafeTruncate(rawURL, urlLogLength)
	f.logger.Warn("Blocked outbound fetch",
		"url", target,
		"policy", policy.String(),
		"reason", reason,
		"error", err)
	f.auditor.LogFetchBlocked(target, reason)
	f.inst.Metrics().RecordFetchBlocked(ctx, policy.String(), reason)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrFetchPolicy, policy.String()),
		attribute.String(instrumentation.AttrFetchReason, reason))
	instrumentation.SetSpanError(span, "blocked")
}

// checkDialedAddress is a net.Dialer Control hook that re-checks the address
// actually dialed.
func (f *Fetcher) checkDialedAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("dial address %q is not an IP", address)
	}
	if class := helpers.ClassifyIP(ip); class != helpers.IPClassificationPublic {
		return blocked(address, ReasonBlockedAddress, fmt.Sprintf("dialed %s address %s", class, ip))
	}
	return nil
}

// newTransport returns a transport like http.DefaultTransport. A non-nil
// control hook is run on every dial, and proxies are then disabled.
func newTransport(control func(network, address string, c syscall.RawConn) error) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   DefaultTimeout,
		KeepAlive: 30 * time.Second,
		Control:   control,
	}

	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = dialer.DialContext
	if control != nil {
		t.Proxy = nil
	}
	return t
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// withoutRedirects returns a shallow copy of c that never follows redirects.
func withoutRedirects(c *http.Client) *http.Client {
	clone := *c
	clone.CheckRedirect = noRedirect
	return &clone
}
