// Package upstream provides the Upstream configuration value type, its
// validation rules, and alias derivation — the tenant-facing "external
// service behind a stable alias" of §3.
package upstream

import (
	"fmt"
	"strings"
	"time"
)

// Scheme enumerates the endpoint schemes an upstream may be reached on.
type Scheme string

const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	SchemeWSS   Scheme = "wss"
	SchemeWT    Scheme = "wt"
	SchemeGRPC  Scheme = "grpc"
)

var validSchemes = map[Scheme]bool{
	SchemeHTTP: true, SchemeHTTPS: true, SchemeWSS: true, SchemeWT: true, SchemeGRPC: true,
}

// SharingMode controls whether a child resource (route) inherits or
// overrides its parent's (upstream's) auth/rate-limit configuration.
// The value is stored and returned as configured; the Data Plane does not
// consult it: an upstream's and a route's rate limits are each enforced on
// their own, and auth always comes from the upstream.
type SharingMode string

const (
	SharingPrivate SharingMode = "private" // config is not shared with children
	SharingInherit SharingMode = "inherit" // children use this config unless they override
	SharingEnforce SharingMode = "enforce" // children may not override this config
)

// ServerEndpoint is one reachable address of an upstream.
type ServerEndpoint struct {
	Scheme Scheme `json:"scheme"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
}

// Server holds the ordered endpoint list. The Data Plane always uses the
// first endpoint; order is stable and is never reordered by the gateway.
type Server struct {
	Endpoints []ServerEndpoint `json:"endpoints"`
}

// AuthConfig describes how the gateway authenticates to this upstream.
// Config is opaque JSON validated by the plugin itself on first use.
type AuthConfig struct {
	PluginType string          `json:"plugin_type"`
	Sharing    SharingMode     `json:"sharing"`
	Config     map[string]any  `json:"config"`
}

// RateLimitAlgorithm selects the limiting strategy.
type RateLimitAlgorithm string

const (
	AlgorithmTokenBucket   RateLimitAlgorithm = "token_bucket"
	AlgorithmSlidingWindow RateLimitAlgorithm = "sliding_window"
)

// RateLimitWindow is the time unit over which Sustained.Rate applies.
type RateLimitWindow string

const (
	WindowSecond RateLimitWindow = "second"
	WindowMinute RateLimitWindow = "minute"
	WindowHour   RateLimitWindow = "hour"
	WindowDay    RateLimitWindow = "day"
)

// RateLimitScope selects what dimension a limiter key is partitioned by.
type RateLimitScope string

const (
	ScopeGlobal RateLimitScope = "global"
	ScopeTenant RateLimitScope = "tenant"
	ScopeUser   RateLimitScope = "user"
	ScopeIP     RateLimitScope = "ip"
	ScopeRoute  RateLimitScope = "route"
)

// RateLimitStrategy selects the behavior on refusal. Queue and Degrade are
// accepted and persisted but, per §9 Open Questions, behave identically to
// Reject until their semantics are defined.
type RateLimitStrategy string

const (
	StrategyReject  RateLimitStrategy = "reject"
	StrategyQueue   RateLimitStrategy = "queue"
	StrategyDegrade RateLimitStrategy = "degrade"
)

// Sustained describes the steady-state rate.
type Sustained struct {
	Rate   int             `json:"rate"`
	Window RateLimitWindow `json:"window"`
}

// Burst describes the token-bucket burst allowance.
type Burst struct {
	Capacity int `json:"capacity"`
}

// RateLimitConfig is the full rate-limit configuration for an upstream or
// route (§3 "Rate limit config").
type RateLimitConfig struct {
	Algorithm RateLimitAlgorithm `json:"algorithm"`
	Sustained Sustained          `json:"sustained"`
	Burst     *Burst             `json:"burst,omitempty"`
	Scope     RateLimitScope     `json:"scope"`
	Strategy  RateLimitStrategy  `json:"strategy"`
	Cost      int                `json:"cost"`
	Sharing   SharingMode        `json:"sharing"`
}

// PassthroughMode controls which incoming request headers survive into the
// rewritten header map before remove/add/set are applied.
type PassthroughMode string

const (
	PassthroughNone      PassthroughMode = "none"
	PassthroughAllowlist PassthroughMode = "allowlist"
	PassthroughAll       PassthroughMode = "all"
)

// RequestHeaderRules describes the request-side header transformation
// pipeline: passthrough, then remove, then add, then set, then computed_set
// (§4.3 stage 7). computed_set values are expr-lang expressions evaluated
// against the request context (method, path, query, headers, tenant_id,
// alias) and applied last, after the static rules — e.g. deriving
// "X-Request-Cost" from a query parameter.
type RequestHeaderRules struct {
	Passthrough          PassthroughMode   `json:"passthrough"`
	PassthroughAllowlist []string          `json:"passthrough_allowlist,omitempty"`
	Remove               []string          `json:"remove,omitempty"`
	Add                  map[string]string `json:"add,omitempty"`
	Set                  map[string]string `json:"set,omitempty"`
	ComputedSet          map[string]string `json:"computed_set,omitempty"`
}

// ResponseHeaderRules describes the response-side header rewrite (§4.3 stage 10).
type ResponseHeaderRules struct {
	Remove []string          `json:"remove,omitempty"`
	Add    map[string]string `json:"add,omitempty"`
	Set    map[string]string `json:"set,omitempty"`
}

// HeaderRules bundles both directions.
type HeaderRules struct {
	Request  RequestHeaderRules  `json:"request"`
	Response ResponseHeaderRules `json:"response"`
}

// Upstream represents one external service registered by one tenant.
type Upstream struct {
	ID       string
	TenantID string

	Alias    string
	Server   Server
	Protocol string // GTS protocol identifier, e.g. "gts.x.core.oagw.protocol.v1~x.core.oagw.http.v1"
	Enabled  bool

	Auth       *AuthConfig
	Headers    *HeaderRules
	RateLimit  *RateLimitConfig
	Plugins    []string
	Tags       []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeriveAlias implements §4.2 "Alias derivation": host alone when the
// first endpoint's port is 80 or 443, else "host:port", lowercased.
func DeriveAlias(ep ServerEndpoint) string {
	host := strings.ToLower(ep.Host)
	if ep.Port == 80 || ep.Port == 443 {
		return host
	}
	return fmt.Sprintf("%s:%d", host, ep.Port)
}

// FieldError is a structured validation failure carrying a human-readable
// detail and the offending field path, per §4.2.
type FieldError struct {
	Field  string
	Detail string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Detail }

// Validate checks the fields common to create and update against §4.2's
// rules, except alias uniqueness (a repository-level concern handled by the
// control plane). An empty alias is always an error; on create the control
// plane derives the alias before calling Validate.
func Validate(u Upstream, registeredPluginType func(string) bool) []FieldError {
	var errs []FieldError

	if strings.TrimSpace(u.Protocol) == "" {
		errs = append(errs, FieldError{"protocol", "protocol is required"})
	}

	if len(u.Server.Endpoints) == 0 {
		errs = append(errs, FieldError{"server.endpoints", "at least one endpoint is required"})
	}
	for i, ep := range u.Server.Endpoints {
		prefix := fmt.Sprintf("server.endpoints[%d]", i)
		if strings.TrimSpace(ep.Host) == "" {
			errs = append(errs, FieldError{prefix + ".host", "host is required"})
		}
		if ep.Port < 1 || ep.Port > 65535 {
			errs = append(errs, FieldError{prefix + ".port", "port must be between 1 and 65535"})
		}
		if !validSchemes[ep.Scheme] {
			errs = append(errs, FieldError{prefix + ".scheme", fmt.Sprintf("unknown scheme %q", ep.Scheme)})
		}
	}

	if strings.TrimSpace(u.Alias) == "" {
		// Derivable on create; callers must derive before reaching here if
		// the alias was omitted. An empty alias at validation time is only
		// ever an error.
		errs = append(errs, FieldError{"alias", "alias is required"})
	} else if u.Alias != strings.ToLower(u.Alias) {
		errs = append(errs, FieldError{"alias", "alias must be lowercase"})
	}

	if u.Auth != nil && u.Auth.PluginType != "" && registeredPluginType != nil && !registeredPluginType(u.Auth.PluginType) {
		errs = append(errs, FieldError{"auth.plugin_type", fmt.Sprintf("plugin type %q is not registered", u.Auth.PluginType)})
	}

	if u.RateLimit != nil {
		errs = append(errs, validateRateLimit(*u.RateLimit, "rate_limit")...)
	}

	return errs
}

func validateRateLimit(rl RateLimitConfig, prefix string) []FieldError {
	var errs []FieldError
	if rl.Cost < 1 {
		errs = append(errs, FieldError{prefix + ".cost", "cost must be >= 1"})
	}
	if rl.Sustained.Rate < 1 {
		errs = append(errs, FieldError{prefix + ".sustained.rate", "sustained.rate must be >= 1"})
	}
	if rl.Burst != nil && rl.Burst.Capacity < rl.Sustained.Rate {
		errs = append(errs, FieldError{prefix + ".burst.capacity", "burst.capacity must be >= sustained.rate"})
	}
	return errs
}

// ValidateRateLimit exposes the rate limit validation rules for routes too.
func ValidateRateLimit(rl RateLimitConfig, prefix string) []FieldError {
	return validateRateLimit(rl, prefix)
}

// FirstEndpoint returns the endpoint the Data Plane forwards to.
func (u Upstream) FirstEndpoint() (ServerEndpoint, bool) {
	if len(u.Server.Endpoints) == 0 {
		return ServerEndpoint{}, false
	}
	return u.Server.Endpoints[0], true
}
