package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mcp-oauth-client/instrumentation"
	"github.com/giantswarm/mcp-oauth-client/internal/util"
	"github.com/giantswarm/mcp-oauth-client/safefetch"
)

const (
	// WellKnownAuthServerPath is the RFC 8414 well-known suffix
	WellKnownAuthServerPath = "/.well-known/oauth-authorization-server"

	// WellKnownProtectedResourcePath is the RFC 9728 well-known suffix
	WellKnownProtectedResourcePath = "/.well-known/oauth-protected-resource"
)

// Tier identifies the discovery step that produced metadata.
type Tier string

const (
	// TierNone means no tier produced metadata
	TierNone Tier = ""

	// TierProtectedResource means the authorization server named by the RFC 9728
	// protected resource document served the metadata
	TierProtectedResource Tier = "protected_resource"

	// TierOrigin means the resource's origin served RFC 8414 metadata
	TierOrigin Tier = "origin"

	// TierPathScoped means the path-scoped RFC 8414 document served the metadata
	TierPathScoped Tier = "path_scoped"
)

// Tier step names used in metrics and span events.
const (
	stepProbe               = "probe"
	stepProtectedResource   = "protected_resource"
	stepAuthorizationServer = "authorization_server"
	stepOrigin              = "origin"
	stepPathScoped          = "path_scoped"
)

// Step outcomes used in metrics and span events.
const (
	outcomeFound     = "found"
	outcomeSkipped   = "skipped"
	outcomeBlocked   = "blocked"
	outcomeMalformed = "malformed"
	outcomeStatus    = "unexpected_status"
	outcomeError     = "error"
)

// LogFunc receives human-readable progress messages. It may be nil.
type LogFunc func(message string)

// Config configures a Discoverer.
type Config struct {
	// Fetcher performs every request. Defaults to safefetch.New with the same
	// Logger and Instrumentation.
	Fetcher *safefetch.Fetcher

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Instrumentation records discovery metrics and spans (optional)
	Instrumentation *instrumentation.Instrumentation
}

// Discoverer locates OAuth authorization server metadata for a protected
// resource. It keeps no state between calls.
type Discoverer struct {
	fetcher *safefetch.Fetcher
	logger  *slog.Logger
	inst    *instrumentation.Instrumentation
	tracer  trace.Tracer
}

// Result describes a discovery run. Metadata is nil when nothing was found.
type Result struct {
	Metadata *AuthServerMetadata

	// Tier is the step that produced Metadata
	Tier Tier

	// ProtectedResource is the RFC 9728 document that led to Metadata, if any
	ProtectedResource *ProtectedResourceMetadata

	// Challenge is the Bearer challenge returned by the resource, if any
	Challenge *Challenge
}

// New creates a Discoverer
func New(cfg Config) *Discoverer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	inst := instrumentation.OrNoop(cfg.Instrumentation)

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = safefetch.New(safefetch.Config{Logger: logger, Instrumentation: inst})
	}

	return &Discoverer{
		fetcher: fetcher,
		logger:  logger,
		inst:    inst,
		tracer:  inst.Tracer("discovery"),
	}
}

// Discover returns the authorization server metadata for resourceURL, or nil
// when no tier produced a valid document. It never fails: every error moves
// discovery on to the next tier.
func (d *Discoverer) Discover(ctx context.Context, resourceURL string, onLog LogFunc) *AuthServerMetadata {
	return d.DiscoverWithDetails(ctx, resourceURL, onLog).Metadata
}

// DiscoverWithDetails is Discover, also reporting which tier succeeded and
// the intermediate documents. The returned Result is never nil.
func (d *Discoverer) DiscoverWithDetails(ctx context.Context, resourceURL string, onLog LogFunc) *Result {
	ctx, span := d.tracer.Start(ctx, "discovery.discover")
	defer span.End()

	run := d.newRun(ctx, span, onLog)
	defer run.finish()

	resource, ok := run.parseResourceURL(resourceURL)
	if !ok {
		return run.result
	}

	run.result.Challenge = run.probe(resource)
	run.resolve(resource, run.result.Challenge)
	return run.result
}

// DiscoverFromChallenge starts discovery from a WWW-Authenticate header the
// caller already received from resourceURL, skipping the probe request.
func (d *Discoverer) DiscoverFromChallenge(ctx context.Context, resourceURL, header string, onLog LogFunc) *Result {
	ctx, span := d.tracer.Start(ctx, "discovery.discover_from_challenge")
	defer span.End()

	run := d.newRun(ctx, span, onLog)
	defer run.finish()

	resource, ok := run.parseResourceURL(resourceURL)
	if !ok {
		return run.result
	}

	if ch, found := ParseChallenge(header); found {
		run.result.Challenge = ch
	}
	run.resolve(resource, run.result.Challenge)
	return run.result
}

// run carries the per-call state of one discovery.
type run struct {
	d      *Discoverer
	ctx    context.Context
	span   trace.Span
	onLog  LogFunc
	start  time.Time
	result *Result
}

func (d *Discoverer) newRun(ctx context.Context, span trace.Span, onLog LogFunc) *run {
	return &run{
		d:      d,
		ctx:    ctx,
		span:   span,
		onLog:  onLog,
		start:  time.Now(),
		result: &Result{},
	}
}

func (r *run) finish() {
	found := r.result.Metadata != nil
	r.d.inst.Metrics().RecordDiscovery(r.ctx, found, float64(time.Since(r.start).Milliseconds()))
	if found {
		instrumentation.SetSpanAttributes(r.span,
			attribute.String(instrumentation.AttrDiscoveryTier, string(r.result.Tier)),
			attribute.String(instrumentation.AttrIssuer, r.result.Metadata.Issuer))
		instrumentation.SetSpanSuccess(r.span)
	} else {
		instrumentation.SetSpanError(r.span, "no metadata found")
	}
}

func (r *run) log(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.d.logger.Debug(msg)
	if r.onLog != nil {
		r.onLog(msg)
	}
}

func (r *run) attempt(step, outcome string) {
	r.d.inst.Metrics().RecordDiscoveryAttempt(r.ctx, step, outcome)
	instrumentation.AddDiscoveryTierEvent(r.span, step, outcome)
}

func (r *run) parseResourceURL(raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		r.log("Invalid resource URL %q; skipping OAuth discovery", util.SafeTruncate(raw, 200))
		return nil, false
	}
	instrumentation.SetSpanAttributes(r.span, attribute.String(instrumentation.AttrResourceURL, u.Redacted()))
	return u, true
}

// probe requests the resource and returns its Bearer challenge when it
// answers 401. HEAD is retried as GET on 405.
func (r *run) probe(resource *url.URL) *Challenge {
	r.log("Probing %s for an RFC 9728 resource_metadata challenge", resource.Redacted())

	resp, err := r.d.fetcher.Fetch(r.ctx, http.MethodHead, resource.String(), safefetch.PolicyHTTPSOnly)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		r.discard(resp)
		r.log("HEAD not allowed by resource, retrying probe with GET")
		resp, err = r.d.fetcher.Fetch(r.ctx, http.MethodGet, resource.String(), safefetch.PolicyHTTPSOnly)
	}
	if err != nil {
		r.log("Resource probe failed: %v", err)
		r.attempt(stepProbe, outcomeOf(err))
		return nil
	}
	defer r.discard(resp)

	if resp.StatusCode != http.StatusUnauthorized {
		r.log("Resource returned status %d; RFC 9728 not advertised", resp.StatusCode)
		r.attempt(stepProbe, outcomeSkipped)
		return nil
	}

	ch, ok := ParseChallenge(strings.Join(resp.Header.Values("WWW-Authenticate"), ", "))
	if !ok {
		r.log("Resource returned 401 without a Bearer challenge")
		r.attempt(stepProbe, outcomeSkipped)
		return nil
	}
	r.attempt(stepProbe, outcomeFound)
	return ch
}

// resolve runs the metadata tiers in order and stores the first success.
func (r *run) resolve(resource *url.URL, ch *Challenge) {
	if md, prm := r.fromChallenge(ch); md != nil {
		r.succeed(md, TierProtectedResource)
		r.result.ProtectedResource = prm
		return
	}

	origin := util.Origin(resource)
	if md := r.fetchAuthServerMetadata(stepOrigin, origin+WellKnownAuthServerPath, safefetch.PolicyHTTPSOnly); md != nil {
		r.succeed(md, TierOrigin)
		return
	}

	if path := resource.EscapedPath(); path != "" && path != "/" {
		if md := r.fetchAuthServerMetadata(stepPathScoped, origin+WellKnownAuthServerPath+path, safefetch.PolicyHTTPSOnly); md != nil {
			r.succeed(md, TierPathScoped)
			return
		}
	} else {
		r.attempt(stepPathScoped, outcomeSkipped)
	}

	r.log("No OAuth metadata found for %s", resource.Redacted())
}

func (r *run) succeed(md *AuthServerMetadata, tier Tier) {
	r.result.Metadata = md
	r.result.Tier = tier
}

// fromChallenge follows an RFC 9728 resource_metadata hint to the first
// authorization server it names.
func (r *run) fromChallenge(ch *Challenge) (*AuthServerMetadata, *ProtectedResourceMetadata) {
	if ch == nil {
		return nil, nil
	}
	hint := ch.ResourceMetadataURL()
	if hint == nil {
		r.log("Bearer challenge has no usable resource_metadata parameter; falling back to RFC 8414")
		r.attempt(stepProtectedResource, outcomeSkipped)
		return nil, nil
	}

	r.log("Fetching RFC 9728 protected resource metadata from %s", hint.Redacted())
	body, err := r.get(hint.String(), safefetch.PolicyUntrusted)
	if err != nil {
		r.log("RFC 9728 protected resource metadata unavailable: %v", err)
		r.attempt(stepProtectedResource, outcomeOf(err))
		return nil, nil
	}

	prm, err := DecodeProtectedResourceMetadata(body)
	if err != nil {
		r.log("RFC 9728 protected resource metadata rejected: %v", err)
		r.attempt(stepProtectedResource, outcomeMalformed)
		return nil, nil
	}
	if len(prm.AuthorizationServers) == 0 || prm.AuthorizationServers[0] == "" {
		r.log("RFC 9728 protected resource metadata lists no authorization servers")
		r.attempt(stepProtectedResource, outcomeMalformed)
		return nil, nil
	}
	r.attempt(stepProtectedResource, outcomeFound)

	base := util.TrimTrailingSlash(prm.AuthorizationServers[0])
	md := r.fetchAuthServerMetadata(stepAuthorizationServer, base+WellKnownAuthServerPath, safefetch.PolicyUntrusted)
	if md == nil {
		return nil, nil
	}
	return md, prm
}

func (r *run) fetchAuthServerMetadata(step, metadataURL string, policy safefetch.Policy) *AuthServerMetadata {
	r.log("Fetching RFC 8414 authorization server metadata from %s", util.SafeTruncate(metadataURL, 200))

	body, err := r.get(metadataURL, policy)
	if err != nil {
		r.log("RFC 8414 metadata unavailable at %s: %v", util.SafeTruncate(metadataURL, 200), err)
		r.attempt(step, outcomeOf(err))
		return nil
	}

	md, err := DecodeAuthServerMetadata(body)
	if err != nil {
		r.log("RFC 8414 metadata at %s rejected: %v", util.SafeTruncate(metadataURL, 200), err)
		r.attempt(step, outcomeMalformed)
		return nil
	}

	r.log("Discovered OAuth metadata via RFC 8414 at %s", util.SafeTruncate(metadataURL, 200))
	r.attempt(step, outcomeFound)
	return md
}

// statusError is a non-200 answer to a metadata request.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func (r *run) get(rawURL string, policy safefetch.Policy) ([]byte, error) {
	resp, err := r.d.fetcher.Fetch(r.ctx, http.MethodGet, rawURL, policy)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		r.discard(resp)
		return nil, &statusError{status: resp.StatusCode}
	}
	return r.d.fetcher.ReadBody(resp)
}

// discard drains a bounded amount of the body so the connection can be reused.
func (r *run) discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, r.d.fetcher.MaxBodyBytes()))
	_ = resp.Body.Close()
}

func outcomeOf(err error) string {
	var se *statusError
	var me *MalformedMetadataError
	switch {
	case errors.Is(err, safefetch.ErrBlockedURL):
		return outcomeBlocked
	case errors.As(err, &se):
		return outcomeStatus
	case errors.As(err, &me), errors.Is(err, safefetch.ErrBodyTooLarge):
		return outcomeMalformed
	default:
		return outcomeError
	}
}
