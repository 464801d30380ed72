package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oagw/gateway/adapters/metrics"
	"github.com/oagw/gateway/domain/authplugin"
	"github.com/oagw/gateway/domain/problem"
	"github.com/oagw/gateway/domain/proxy"
	"github.com/oagw/gateway/domain/ratelimit"
	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/streaming"
	"github.com/oagw/gateway/domain/upstream"
	"github.com/oagw/gateway/ports"
)

// hopByHop is the header set stripped on both the request and response side
// of every proxied call (§4.3 stage 7/10).
var hopByHop = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailers", "Transfer-Encoding", "Upgrade",
}

// DataPlaneConfig holds the tunables the bootstrap layer reads from
// config.ProxyConfig.
type DataPlaneConfig struct {
	MaxBodyBytes   int64
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DataPlane implements the ten-stage proxy pipeline of §4.3. It calls the
// Control Plane for resolution only and never mutates CP state.
type DataPlane struct {
	cp        *ControlPlane
	limiter   *ratelimit.Bank
	auth      *authplugin.Registry
	cred      authplugin.CredentialResolver
	transport ports.Upstream
	transform *TransformService
	metrics   *metrics.Collector
	cfg       DataPlaneConfig
}

// NewDataPlane wires a DataPlane against its collaborators. metrics may be
// nil, in which case no counters or forward timings are recorded; per-stage
// durations are not recorded either way.
func NewDataPlane(cp *ControlPlane, limiter *ratelimit.Bank, auth *authplugin.Registry, cred authplugin.CredentialResolver, transport ports.Upstream, transform *TransformService, mc *metrics.Collector, cfg DataPlaneConfig) *DataPlane {
	return &DataPlane{cp: cp, limiter: limiter, auth: auth, cred: cred, transport: transport, transform: transform, metrics: mc, cfg: cfg}
}

// Handle implements proxy_request(ProxyContext) -> ProxyResponse. On a
// gateway-sourced abort it returns a nil Response and a non-nil problem.Error
// for the HTTP adapter to render as Problem Details; on success (including an
// upstream error response) it returns a Response with ErrorSource set and a
// nil error.
func (dp *DataPlane) Handle(ctx context.Context, reqCtx proxy.Context) (*proxy.Response, *problem.Error) {
	machine := proxy.NewMachine()
	instance := reqCtx.InstanceURI

	u, perr := dp.cp.ResolveUpstream(ctx, reqCtx.TenantID, reqCtx.Alias, instance)
	if perr != nil {
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, "", u.ID, perr)
		return nil, perr
	}

	r, perr := dp.cp.ResolveRoute(ctx, reqCtx.TenantID, u.ID, reqCtx.Method, reqCtx.PathSuffix, instance)
	if perr != nil {
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, "", u.ID, perr)
		return nil, perr
	}
	machine.Advance(proxy.StateResolved)

	h := r.MatchRules.HTTP
	if h == nil {
		perr := problem.New(problem.KindProtocolError, "gRPC match rules are not forwarded by this build", instance)
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		return nil, perr
	}

	if ok, offending := route.ValidateQueryAllowlist(h.QueryAllowlist, reqCtx.QueryParams); !ok {
		perr := problem.New(problem.KindValidation, fmt.Sprintf("query parameter %q is not in the route's allowlist", offending), instance).WithField("query." + offending)
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		return nil, perr
	}

	if h.PathSuffixMode == route.PathSuffixDisabled && reqCtx.PathSuffix != h.Path {
		perr := problem.New(problem.KindValidation, "path_suffix does not equal the route's match path", instance).WithField("path_suffix")
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		return nil, perr
	}
	effectivePath := route.EffectiveUpstreamPath(h, reqCtx.PathSuffix)

	if dp.cfg.MaxBodyBytes > 0 && int64(len(reqCtx.Body)) > dp.cfg.MaxBodyBytes {
		perr := problem.New(problem.KindPayloadTooLarge, "request body exceeds the configured maximum", instance)
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		return nil, perr
	}

	if perr := dp.checkRateLimits(reqCtx, u, r, instance); perr != nil {
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		return nil, perr
	}

	outHeaders := dp.transformRequestHeaders(reqCtx, u)

	if perr := dp.injectAuth(ctx, u, outHeaders, instance); perr != nil {
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		return nil, perr
	}
	machine.Advance(proxy.StateAuthorized)

	outURL, err := buildUpstreamURL(u, effectivePath, reqCtx.QueryParams)
	if err != nil {
		perr := problem.Wrap(problem.KindProtocolError, instance, err)
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		return nil, perr
	}

	start := time.Now()
	resp, fwdErr := dp.transport.Forward(ctx, ports.ForwardRequest{
		Method:         reqCtx.Method,
		URL:            outURL,
		Headers:        outHeaders,
		Body:           reqCtx.Body,
		ConnectTimeout: dp.cfg.ConnectTimeout,
		RequestTimeout: dp.cfg.RequestTimeout,
	})
	if dp.metrics != nil {
		status := "ok"
		if fwdErr != nil {
			status = "error"
		}
		dp.metrics.UpstreamForwardDuration.WithLabelValues(u.Alias, status).Observe(time.Since(start).Seconds())
	}
	if fwdErr != nil {
		perr := forwardErrorToProblem(fwdErr, instance)
		machine.Abort(perr.Kind)
		dp.recordOutcome(reqCtx, r.ID, u.ID, perr)
		if dp.metrics != nil {
			dp.metrics.UpstreamForwardErrors.WithLabelValues(forwardErrorLabel(fwdErr)).Inc()
		}
		return nil, perr
	}
	machine.Advance(proxy.StateForwarded)
	machine.Advance(proxy.StateStreaming)

	respHeaders := dp.transformResponseHeaders(resp.Header, u)

	machine.Advance(proxy.StateDone)
	dp.recordOutcome(reqCtx, r.ID, u.ID, nil)

	// Wrap the upstream body in a StreamReader with accumulation off, so the
	// body is passed through to the caller without being loaded into memory.
	body := streaming.NewStreamReader(resp.Body, false)

	return &proxy.Response{
		Status:      resp.StatusCode,
		Headers:     respHeaders,
		Body:        body,
		ErrorSource: problem.SourceUpstream,
	}, nil
}

// recordOutcome increments the request counter labeled by tenant, alias, and
// outcome (the error's Kind, or "ok" on success). routeID/upstreamID may be
// empty when resolution itself failed.
func (dp *DataPlane) recordOutcome(reqCtx proxy.Context, routeID, upstreamID string, perr *problem.Error) {
	if dp.metrics == nil {
		return
	}
	outcome := "ok"
	if perr != nil {
		outcome = string(perr.Kind)
	}
	dp.metrics.ProxyRequestsTotal.WithLabelValues(reqCtx.TenantID, reqCtx.Alias, outcome).Inc()
}

func (dp *DataPlane) checkRateLimits(reqCtx proxy.Context, u upstream.Upstream, r route.Route, instance string) *problem.Error {
	ipSubject := rateLimitSubject(reqCtx)
	subjectFor := func(scope upstream.RateLimitScope) string {
		if scope == upstream.ScopeIP {
			return ipSubject
		}
		return ""
	}

	if u.RateLimit != nil {
		key := ratelimit.Key(u.RateLimit.Scope, reqCtx.TenantID, u.ID, subjectFor(u.RateLimit.Scope))
		if allowed, retryAfter := dp.limiter.Acquire(key, *u.RateLimit, time.Now()); !allowed {
			if dp.metrics != nil {
				dp.metrics.RateLimitRejected.WithLabelValues(string(u.RateLimit.Scope)).Inc()
			}
			return problem.New(problem.KindRateLimitExceeded, "upstream rate limit exceeded", instance).WithRetryAfter(retryAfter.Seconds())
		}
	}
	if r.RateLimit != nil {
		key := ratelimit.Key(r.RateLimit.Scope, reqCtx.TenantID, r.ID, subjectFor(r.RateLimit.Scope))
		if allowed, retryAfter := dp.limiter.Acquire(key, *r.RateLimit, time.Now()); !allowed {
			if dp.metrics != nil {
				dp.metrics.RateLimitRejected.WithLabelValues(string(r.RateLimit.Scope)).Inc()
			}
			return problem.New(problem.KindRateLimitExceeded, "route rate limit exceeded", instance).WithRetryAfter(retryAfter.Seconds())
		}
	}
	return nil
}

// rateLimitSubject derives the per-caller dimension of an IP-scoped limiter
// key from the caller's forwarded address. This gateway does not terminate
// inbound caller identity (§1 Non-goals), so user-scoped keys carry no
// subject and share one bucket per tenant and route/upstream; an IP-scoped
// key also has an empty subject when no forwarding header is present.
func rateLimitSubject(reqCtx proxy.Context) string {
	if ip := reqCtx.Headers.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.SplitN(ip, ",", 2)[0])
	}
	return ""
}

// transformRequestHeaders implements §4.3 stage 7: passthrough, then remove,
// then add, then set, then computed_set, then the mandatory strip.
func (dp *DataPlane) transformRequestHeaders(reqCtx proxy.Context, u upstream.Upstream) http.Header {
	out := make(http.Header)

	var rules upstream.RequestHeaderRules
	if u.Headers != nil {
		rules = u.Headers.Request
	}

	switch rules.Passthrough {
	case upstream.PassthroughAll:
		for k, v := range reqCtx.Headers {
			out[k] = append([]string(nil), v...)
		}
	case upstream.PassthroughAllowlist:
		allowed := make(map[string]bool, len(rules.PassthroughAllowlist))
		for _, name := range rules.PassthroughAllowlist {
			allowed[http.CanonicalHeaderKey(name)] = true
		}
		for k, v := range reqCtx.Headers {
			if allowed[http.CanonicalHeaderKey(k)] {
				out[k] = append([]string(nil), v...)
			}
		}
	case upstream.PassthroughNone, "":
		// out stays empty.
	}

	for _, name := range rules.Remove {
		out.Del(name)
	}
	for name, value := range rules.Add {
		out.Add(name, value)
	}
	for name, value := range rules.Set {
		out.Set(name, value)
	}
	for name, expression := range rules.ComputedSet {
		tctx := HeaderContextFrom(reqCtx.Method, reqCtx.PathSuffix, reqCtx.TenantID, reqCtx.Alias, reqCtx.QueryParams, reqCtx.Headers)
		if value, err := dp.transform.EvalHeaderValue(expression, tctx); err == nil {
			out.Set(name, value)
		}
	}

	stripHopByHop(out)
	out.Del("Authorization")
	out.Del("Host")

	return out
}

// transformResponseHeaders implements §4.3 stage 10's response-side rewrite.
func (dp *DataPlane) transformResponseHeaders(src http.Header, u upstream.Upstream) http.Header {
	out := make(http.Header, len(src))
	for k, v := range src {
		out[k] = append([]string(nil), v...)
	}

	if u.Headers != nil {
		rules := u.Headers.Response
		for _, name := range rules.Remove {
			out.Del(name)
		}
		for name, value := range rules.Add {
			out.Add(name, value)
		}
		for name, value := range rules.Set {
			out.Set(name, value)
		}
	}

	stripHopByHop(out)
	return out
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHop {
		h.Del(name)
	}
}

// injectAuth implements §4.3 stage 8.
func (dp *DataPlane) injectAuth(ctx context.Context, u upstream.Upstream, headers http.Header, instance string) *problem.Error {
	if u.Auth == nil || u.Auth.PluginType == "" {
		return nil
	}

	plugin, ok := dp.auth.Lookup(u.Auth.PluginType)
	if !ok {
		return problem.New(problem.KindAuthFailed, fmt.Sprintf("auth plugin %q is not registered", u.Auth.PluginType), instance)
	}

	if authErr := plugin.Authenticate(ctx, headers, u.Auth.Config, dp.cred); authErr != nil {
		kind, detail := authFailureToProblem(authErr)
		if dp.metrics != nil {
			dp.metrics.AuthPluginErrors.WithLabelValues(u.Auth.PluginType, string(authErr.Kind)).Inc()
		}
		return problem.New(kind, detail, instance)
	}
	return nil
}

func authFailureToProblem(err *authplugin.Error) (problem.Kind, string) {
	switch err.Kind {
	case authplugin.FailureSecretNotFound:
		return problem.KindSecretNotFound, err.Message
	case authplugin.FailureAuthFailed:
		return problem.KindAuthFailed, err.Message
	case authplugin.FailureRejected:
		return problem.KindAuthRejected, err.Message
	default:
		return problem.KindInternal, err.Message
	}
}

func forwardErrorToProblem(err *ports.ForwardError, instance string) *problem.Error {
	switch err.Kind {
	case ports.ForwardErrorConnectTimeout:
		return problem.Wrap(problem.KindConnectionTimeout, instance, err)
	case ports.ForwardErrorReadTimeout:
		return problem.Wrap(problem.KindRequestTimeout, instance, err)
	default:
		return problem.Wrap(problem.KindDownstreamError, instance, err)
	}
}

func forwardErrorLabel(err *ports.ForwardError) string {
	switch err.Kind {
	case ports.ForwardErrorConnectTimeout:
		return "connect_timeout"
	case ports.ForwardErrorReadTimeout:
		return "read_timeout"
	default:
		return "connect"
	}
}

// buildUpstreamURL implements §4.3 stage 9's URL construction from the
// upstream's first endpoint, the effective path, and the request's query
// parameters forwarded verbatim.
func buildUpstreamURL(u upstream.Upstream, path string, query map[string][]string) (string, error) {
	ep, ok := u.FirstEndpoint()
	if !ok {
		return "", fmt.Errorf("upstream has no endpoints")
	}

	scheme := endpointHTTPScheme(ep.Scheme)
	host := ep.Host
	if !defaultPortFor(scheme, ep.Port) {
		host = fmt.Sprintf("%s:%d", ep.Host, ep.Port)
	}

	base := &url.URL{Scheme: scheme, Host: host}
	ref := &url.URL{Path: path, RawQuery: url.Values(query).Encode()}
	return base.ResolveReference(ref).String(), nil
}

func endpointHTTPScheme(s upstream.Scheme) string {
	switch s {
	case upstream.SchemeHTTP:
		return "http"
	default: // https, wss, wt all forward over a TLS HTTP connection at this layer.
		return "https"
	}
}

func defaultPortFor(scheme string, port int) bool {
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}
