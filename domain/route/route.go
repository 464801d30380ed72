// Package route provides the Route configuration value type and the pure
// best-match resolution function used by the Control Plane (§4.2
// resolve_route).
package route

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oagw/gateway/domain/upstream"
)

// PathSuffixMode controls how a request's path_suffix is checked against a
// route's match.path (§3, §4.3 stage 4).
type PathSuffixMode string

const (
	PathSuffixDisabled PathSuffixMode = "disabled"
	PathSuffixAppend   PathSuffixMode = "append"
)

// HTTPMatch is the HTTP variant of the match_rules tagged union.
type HTTPMatch struct {
	Methods        []string       `json:"methods"`
	Path           string         `json:"path"`
	QueryAllowlist []string       `json:"query_allowlist,omitempty"`
	PathSuffixMode PathSuffixMode `json:"path_suffix_mode"`
}

// GRPCMatch is the gRPC variant of the match_rules tagged union.
type GRPCMatch struct {
	Service string `json:"service"`
	Method  string `json:"method"`
}

// MatchRule is the tagged union of §3: exactly one of HTTP or GRPC is
// populated.
type MatchRule struct {
	HTTP *HTTPMatch `json:"http,omitempty"`
	GRPC *GRPCMatch `json:"grpc,omitempty"`
}

// IsHTTP reports whether the HTTP variant is populated.
func (m MatchRule) IsHTTP() bool { return m.HTTP != nil }

// IsGRPC reports whether the gRPC variant is populated.
func (m MatchRule) IsGRPC() bool { return m.GRPC != nil }

// Route is a match rule belonging to one upstream (§3 "Route").
type Route struct {
	ID         string
	TenantID   string
	UpstreamID string

	MatchRules MatchRule
	Priority   int
	Enabled    bool

	Plugins   []string
	RateLimit *upstream.RateLimitConfig
	Tags      []string

	CreatedAt time.Time
	UpdatedAt time.Time

	// seq is the stable creation-order tiebreaker used by ranking; it is
	// populated by the repository from insertion order, not user input.
	seq uint64
}

// WithSequence returns a copy of r carrying the given stable creation-order
// sequence number, used only for tie-breaking in ranking.
func (r Route) WithSequence(seq uint64) Route {
	r.seq = seq
	return r
}

// Sequence returns the route's stable creation-order sequence number.
func (r Route) Sequence() uint64 { return r.seq }

// FieldError mirrors upstream.FieldError for route-specific validation.
type FieldError struct {
	Field  string
	Detail string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Detail }

// Validate checks a route against §4.2's match_rules rules and rate limit
// rules. It does not check upstream_id existence — that is a repository
// lookup performed by the Control Plane.
func Validate(r Route) []FieldError {
	var errs []FieldError

	httpSet, grpcSet := r.MatchRules.HTTP != nil, r.MatchRules.GRPC != nil
	switch {
	case httpSet == grpcSet:
		errs = append(errs, FieldError{"match_rules", "exactly one of http or grpc must be populated"})
	case httpSet:
		h := r.MatchRules.HTTP
		if !strings.HasPrefix(h.Path, "/") {
			errs = append(errs, FieldError{"match_rules.http.path", "path must start with \"/\""})
		}
		if len(h.Methods) == 0 {
			errs = append(errs, FieldError{"match_rules.http.methods", "methods must be non-empty"})
		}
		if h.PathSuffixMode == "" {
			h.PathSuffixMode = PathSuffixDisabled
		} else if h.PathSuffixMode != PathSuffixDisabled && h.PathSuffixMode != PathSuffixAppend {
			errs = append(errs, FieldError{"match_rules.http.path_suffix_mode", fmt.Sprintf("unknown mode %q", h.PathSuffixMode)})
		}
	case grpcSet:
		g := r.MatchRules.GRPC
		if strings.TrimSpace(g.Service) == "" {
			errs = append(errs, FieldError{"match_rules.grpc.service", "service is required"})
		}
		if strings.TrimSpace(g.Method) == "" {
			errs = append(errs, FieldError{"match_rules.grpc.method", "method is required"})
		}
	}

	if r.RateLimit != nil {
		for _, fe := range upstream.ValidateRateLimit(*r.RateLimit, "rate_limit") {
			errs = append(errs, FieldError(fe))
		}
	}

	return errs
}

// candidate pairs a route with the derived specificity used for ranking.
type candidate struct {
	route       Route
	specificity int
}

// Resolve implements §4.2 resolve_route for HTTP requests:
//  1. enumerate enabled routes (callers pass only enabled routes of the
//     matching upstream),
//  2. keep only HTTP-variant routes,
//  3. keep those whose method and path match per §4.3 stage 3/4 rules,
//  4. rank by (priority desc, specificity=len(match.path) desc, creation
//     order asc) and return the first.
//
// It returns the matched route and whether any route matched; callers derive
// the upstream path from the route's match with EffectiveUpstreamPath.
func Resolve(routes []Route, method, path string) (Route, bool) {
	method = strings.ToUpper(method)

	var candidates []candidate
	for _, r := range routes {
		if !r.Enabled || r.MatchRules.HTTP == nil {
			continue
		}
		h := r.MatchRules.HTTP
		if !methodMatches(h.Methods, method) {
			continue
		}
		if !pathMatches(h, path) {
			continue
		}
		candidates = append(candidates, candidate{route: r, specificity: len(h.Path)})
	}

	if len(candidates) == 0 {
		return Route{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.route.Priority != b.route.Priority {
			return a.route.Priority > b.route.Priority
		}
		if a.specificity != b.specificity {
			return a.specificity > b.specificity
		}
		return a.route.seq < b.route.seq
	})

	return candidates[0].route, true
}

func methodMatches(methods []string, method string) bool {
	for _, m := range methods {
		if strings.ToUpper(m) == method {
			return true
		}
	}
	return false
}

// pathMatches implements §4.3 stage 3/4's path-equality and append rules.
func pathMatches(h *HTTPMatch, path string) bool {
	if path == h.Path {
		return true
	}
	if h.PathSuffixMode == PathSuffixAppend && strings.HasPrefix(path, h.Path) {
		return true
	}
	return false
}

// EffectiveUpstreamPath implements §4.3 stage 4's append rule: when
// path_suffix_mode is append, the effective path is match.path concatenated
// with the portion of path_suffix beyond match.path.
func EffectiveUpstreamPath(h *HTTPMatch, pathSuffix string) string {
	if h.PathSuffixMode == PathSuffixAppend && strings.HasPrefix(pathSuffix, h.Path) {
		return h.Path + strings.TrimPrefix(pathSuffix, h.Path)
	}
	return h.Path
}

// ValidateQueryAllowlist implements §4.3 stage 3: when non-empty, every key
// in query must appear in the allowlist.
func ValidateQueryAllowlist(allowlist []string, query map[string][]string) (ok bool, offending string) {
	if len(allowlist) == 0 {
		return true, ""
	}
	allowed := make(map[string]bool, len(allowlist))
	for _, k := range allowlist {
		allowed[k] = true
	}
	for k := range query {
		if !allowed[k] {
			return false, k
		}
	}
	return true, ""
}
