// Package app implements the Control Plane and Data Plane services that sit
// between the Management/Proxy REST surfaces and the domain packages.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/oagw/gateway/domain/authplugin"
	"github.com/oagw/gateway/domain/problem"
	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/upstream"
	"github.com/oagw/gateway/ports"
)

// ControlPlane validates, canonicalizes, stores, and resolves upstreams and
// routes (§4.2). It never performs network I/O to upstreams.
type ControlPlane struct {
	repo  ports.Repository
	auth  *authplugin.Registry
	ids   ports.IDGenerator
	clock ports.Clock
}

// NewControlPlane wires a ControlPlane against its collaborators.
func NewControlPlane(repo ports.Repository, auth *authplugin.Registry, ids ports.IDGenerator, clock ports.Clock) *ControlPlane {
	return &ControlPlane{repo: repo, auth: auth, ids: ids, clock: clock}
}

func upstreamValidationError(instance string, errs []upstream.FieldError) *problem.Error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	return problem.New(problem.KindValidation, first.Detail, instance).WithField(first.Field)
}

func routeValidationError(instance string, errs []route.FieldError) *problem.Error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	return problem.New(problem.KindValidation, first.Detail, instance).WithField(first.Field)
}

// CreateUpstream validates u, derives its alias when absent, assigns IDs and
// timestamps, and persists it (§4.2 "Validation", "Alias derivation").
func (cp *ControlPlane) CreateUpstream(ctx context.Context, tenantID, instance string, u upstream.Upstream) (upstream.Upstream, *problem.Error) {
	u.TenantID = tenantID

	if strings.TrimSpace(u.Alias) == "" {
		if ep, ok := u.FirstEndpoint(); ok {
			u.Alias = upstream.DeriveAlias(ep)
		}
	} else {
		u.Alias = strings.ToLower(u.Alias)
	}

	if errs := upstream.Validate(u, cp.auth.Registered); len(errs) > 0 {
		return upstream.Upstream{}, upstreamValidationError(instance, errs)
	}

	now := cp.clock.Now()
	u.ID = cp.ids.New()
	u.CreatedAt = now
	u.UpdatedAt = now

	if err := cp.repo.CreateUpstream(ctx, u); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return upstream.Upstream{}, problem.New(problem.KindValidation, "alias already in use for this tenant", instance).WithField("alias")
		}
		return upstream.Upstream{}, problem.Wrap(problem.KindInternal, instance, err)
	}

	return u, nil
}

// GetUpstream looks up an upstream by internal id.
func (cp *ControlPlane) GetUpstream(ctx context.Context, tenantID, id, instance string) (upstream.Upstream, *problem.Error) {
	u, err := cp.repo.GetUpstream(ctx, tenantID, id)
	if err != nil {
		return upstream.Upstream{}, notFoundOrInternal(err, instance)
	}
	return u, nil
}

// ListUpstreams lists upstreams for a tenant, clamping top to [1,100].
func (cp *ControlPlane) ListUpstreams(ctx context.Context, tenantID string, opts ports.ListOptions, instance string) ([]upstream.Upstream, int, *problem.Error) {
	opts = clampListOptions(opts)
	items, total, err := cp.repo.ListUpstreams(ctx, tenantID, opts)
	if err != nil {
		return nil, 0, problem.Wrap(problem.KindInternal, instance, err)
	}
	return items, total, nil
}

// UpstreamPatch carries field-wise update values for an upstream; a nil
// field leaves the corresponding stored field unchanged (§3 "Lifecycles").
type UpstreamPatch struct {
	Alias     *string
	Server    *upstream.Server
	Protocol  *string
	Enabled   *bool
	Auth      *upstream.AuthConfig
	Headers   *upstream.HeaderRules
	RateLimit *upstream.RateLimitConfig
	Plugins   *[]string
	Tags      *[]string
}

// UpdateUpstream applies patch to the stored upstream field-wise and
// re-validates the merged result.
func (cp *ControlPlane) UpdateUpstream(ctx context.Context, tenantID, id, instance string, patch UpstreamPatch) (upstream.Upstream, *problem.Error) {
	existing, err := cp.repo.GetUpstream(ctx, tenantID, id)
	if err != nil {
		return upstream.Upstream{}, notFoundOrInternal(err, instance)
	}

	if patch.Alias != nil {
		existing.Alias = strings.ToLower(*patch.Alias)
	}
	if patch.Server != nil {
		existing.Server = *patch.Server
	}
	if patch.Protocol != nil {
		existing.Protocol = *patch.Protocol
	}
	if patch.Enabled != nil {
		existing.Enabled = *patch.Enabled
	}
	if patch.Auth != nil {
		existing.Auth = patch.Auth
	}
	if patch.Headers != nil {
		existing.Headers = patch.Headers
	}
	if patch.RateLimit != nil {
		existing.RateLimit = patch.RateLimit
	}
	if patch.Plugins != nil {
		existing.Plugins = *patch.Plugins
	}
	if patch.Tags != nil {
		existing.Tags = *patch.Tags
	}

	if errs := upstream.Validate(existing, cp.auth.Registered); len(errs) > 0 {
		return upstream.Upstream{}, upstreamValidationError(instance, errs)
	}

	existing.UpdatedAt = cp.clock.Now()

	if err := cp.repo.UpdateUpstream(ctx, existing); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return upstream.Upstream{}, problem.New(problem.KindValidation, "alias already in use for this tenant", instance).WithField("alias")
		}
		return upstream.Upstream{}, notFoundOrInternal(err, instance)
	}

	return existing, nil
}

// DeleteUpstream removes an upstream and cascade-deletes its routes (§3 invariant 3).
func (cp *ControlPlane) DeleteUpstream(ctx context.Context, tenantID, id, instance string) *problem.Error {
	if err := cp.repo.DeleteUpstream(ctx, tenantID, id); err != nil {
		return notFoundOrInternal(err, instance)
	}
	return nil
}

// CreateRoute validates r against its parent upstream's existence and persists it.
func (cp *ControlPlane) CreateRoute(ctx context.Context, tenantID, instance string, r route.Route) (route.Route, *problem.Error) {
	r.TenantID = tenantID

	if _, err := cp.repo.GetUpstream(ctx, tenantID, r.UpstreamID); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return route.Route{}, problem.New(problem.KindResourceNotFound, "upstream_id does not refer to an existing upstream", instance).WithField("upstream_id")
		}
		return route.Route{}, problem.Wrap(problem.KindInternal, instance, err)
	}

	if errs := route.Validate(r); len(errs) > 0 {
		return route.Route{}, routeValidationError(instance, errs)
	}

	now := cp.clock.Now()
	r.ID = cp.ids.New()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := cp.repo.CreateRoute(ctx, r); err != nil {
		return route.Route{}, problem.Wrap(problem.KindInternal, instance, err)
	}
	if stored, err := cp.repo.GetRoute(ctx, tenantID, r.ID); err == nil {
		r = stored
	}

	return r, nil
}

// GetRoute looks up a route by internal id.
func (cp *ControlPlane) GetRoute(ctx context.Context, tenantID, id, instance string) (route.Route, *problem.Error) {
	r, err := cp.repo.GetRoute(ctx, tenantID, id)
	if err != nil {
		return route.Route{}, notFoundOrInternal(err, instance)
	}
	return r, nil
}

// ListRoutes lists routes for a tenant, clamping top to [1,100]. When
// upstreamID is non-empty it filters to that upstream's routes.
func (cp *ControlPlane) ListRoutes(ctx context.Context, tenantID, upstreamID string, opts ports.ListOptions, instance string) ([]route.Route, int, *problem.Error) {
	if upstreamID != "" {
		items, err := cp.repo.ListRoutesByUpstream(ctx, tenantID, upstreamID)
		if err != nil {
			return nil, 0, problem.Wrap(problem.KindInternal, instance, err)
		}
		opts = clampListOptions(opts)
		total := len(items)
		start := opts.Skip
		if start > total {
			start = total
		}
		end := total
		if opts.Top > 0 && start+opts.Top < end {
			end = start + opts.Top
		}
		return items[start:end], total, nil
	}

	opts = clampListOptions(opts)
	items, total, err := cp.repo.ListRoutes(ctx, tenantID, opts)
	if err != nil {
		return nil, 0, problem.Wrap(problem.KindInternal, instance, err)
	}
	return items, total, nil
}

// RoutePatch carries field-wise update values for a route; a nil field
// leaves the corresponding stored field unchanged.
type RoutePatch struct {
	MatchRules *route.MatchRule
	Priority   *int
	Enabled    *bool
	Plugins    *[]string
	RateLimit  *upstream.RateLimitConfig
	Tags       *[]string
}

// UpdateRoute applies patch to the stored route field-wise and re-validates
// the merged result.
func (cp *ControlPlane) UpdateRoute(ctx context.Context, tenantID, id, instance string, patch RoutePatch) (route.Route, *problem.Error) {
	existing, err := cp.repo.GetRoute(ctx, tenantID, id)
	if err != nil {
		return route.Route{}, notFoundOrInternal(err, instance)
	}

	if patch.MatchRules != nil {
		existing.MatchRules = *patch.MatchRules
	}
	if patch.Priority != nil {
		existing.Priority = *patch.Priority
	}
	if patch.Enabled != nil {
		existing.Enabled = *patch.Enabled
	}
	if patch.Plugins != nil {
		existing.Plugins = *patch.Plugins
	}
	if patch.RateLimit != nil {
		existing.RateLimit = patch.RateLimit
	}
	if patch.Tags != nil {
		existing.Tags = *patch.Tags
	}

	if errs := route.Validate(existing); len(errs) > 0 {
		return route.Route{}, routeValidationError(instance, errs)
	}

	existing.UpdatedAt = cp.clock.Now()

	if err := cp.repo.UpdateRoute(ctx, existing); err != nil {
		return route.Route{}, notFoundOrInternal(err, instance)
	}

	return existing, nil
}

// DeleteRoute removes a route independently of its upstream.
func (cp *ControlPlane) DeleteRoute(ctx context.Context, tenantID, id, instance string) *problem.Error {
	if err := cp.repo.DeleteRoute(ctx, tenantID, id); err != nil {
		return notFoundOrInternal(err, instance)
	}
	return nil
}

// ResolveUpstream implements §4.2 resolve_upstream: distinguishes NotFound
// (404) from a found-but-disabled upstream (503), the distinction the Data
// Plane's pipeline stage 1 depends on.
func (cp *ControlPlane) ResolveUpstream(ctx context.Context, tenantID, alias, instance string) (upstream.Upstream, *problem.Error) {
	u, err := cp.repo.GetUpstreamByAlias(ctx, tenantID, alias)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return upstream.Upstream{}, problem.New(problem.KindUnknownTargetHost, "no upstream registered for this alias", instance)
		}
		return upstream.Upstream{}, problem.Wrap(problem.KindInternal, instance, err)
	}
	if !u.Enabled {
		return upstream.Upstream{}, problem.New(problem.KindUpstreamDisabled, "upstream is disabled", instance)
	}
	return u, nil
}

// ResolveRoute implements §4.2 resolve_route: enumerate the upstream's
// enabled routes and rank HTTP-matching candidates.
func (cp *ControlPlane) ResolveRoute(ctx context.Context, tenantID, upstreamID, method, path, instance string) (route.Route, *problem.Error) {
	routes, err := cp.repo.ListRoutesByUpstream(ctx, tenantID, upstreamID)
	if err != nil {
		return route.Route{}, problem.Wrap(problem.KindInternal, instance, err)
	}

	r, ok := route.Resolve(routes, method, path)
	if !ok {
		return route.Route{}, problem.New(problem.KindRouteNotFound, "no route matches this method and path", instance)
	}
	return r, nil
}

func notFoundOrInternal(err error, instance string) *problem.Error {
	if errors.Is(err, ports.ErrNotFound) {
		return problem.New(problem.KindResourceNotFound, "resource not found", instance)
	}
	return problem.Wrap(problem.KindInternal, instance, err)
}

func clampListOptions(opts ports.ListOptions) ports.ListOptions {
	if opts.Top <= 0 {
		opts.Top = 20
	}
	if opts.Top > 100 {
		opts.Top = 100
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}
	return opts
}
