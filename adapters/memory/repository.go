// Package memory implements an in-process ports.Repository, useful for
// tests and for the `database.driver: memory` deployment mode (§4.1).
// Unlike adapters/sqlite it keeps no SQLite rowid to use as the route
// creation-order tiebreaker, so it maintains its own monotonic counter.
package memory

import (
	"context"
	"sync"

	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/upstream"
	"github.com/oagw/gateway/ports"
)

type upstreamKey struct {
	tenantID string
	id       string
}

type routeKey struct {
	tenantID string
	id       string
}

// Repository is an in-memory, tenant-scoped ports.Repository implementation.
type Repository struct {
	mu sync.RWMutex

	upstreams map[upstreamKey]upstream.Upstream
	aliasToID map[string]string // "tenantID||alias" -> upstream id

	routes map[routeKey]route.Route

	nextSeq uint64
}

// New constructs an empty Repository.
func New() *Repository {
	return &Repository{
		upstreams: make(map[upstreamKey]upstream.Upstream),
		aliasToID: make(map[string]string),
		routes:    make(map[routeKey]route.Route),
	}
}

func aliasKey(tenantID, alias string) string {
	return tenantID + "||" + alias
}

func (r *Repository) CreateUpstream(ctx context.Context, u upstream.Upstream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ak := aliasKey(u.TenantID, u.Alias)
	if _, exists := r.aliasToID[ak]; exists {
		return ports.ErrDuplicate
	}

	uk := upstreamKey{u.TenantID, u.ID}
	r.upstreams[uk] = u
	r.aliasToID[ak] = u.ID
	return nil
}

func (r *Repository) GetUpstream(ctx context.Context, tenantID, id string) (upstream.Upstream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.upstreams[upstreamKey{tenantID, id}]
	if !ok {
		return upstream.Upstream{}, ports.ErrNotFound
	}
	return u, nil
}

func (r *Repository) GetUpstreamByAlias(ctx context.Context, tenantID, alias string) (upstream.Upstream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.aliasToID[aliasKey(tenantID, alias)]
	if !ok {
		return upstream.Upstream{}, ports.ErrNotFound
	}
	u, ok := r.upstreams[upstreamKey{tenantID, id}]
	if !ok {
		return upstream.Upstream{}, ports.ErrNotFound
	}
	return u, nil
}

func (r *Repository) ListUpstreams(ctx context.Context, tenantID string, opts ports.ListOptions) ([]upstream.Upstream, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []upstream.Upstream
	for k, u := range r.upstreams {
		if k.tenantID == tenantID {
			all = append(all, u)
		}
	}

	sortUpstreamsByCreatedAt(all)

	total := len(all)
	return paginateUpstreams(all, opts), total, nil
}

func (r *Repository) UpdateUpstream(ctx context.Context, u upstream.Upstream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	uk := upstreamKey{u.TenantID, u.ID}
	existing, ok := r.upstreams[uk]
	if !ok {
		return ports.ErrNotFound
	}

	if existing.Alias != u.Alias {
		newKey := aliasKey(u.TenantID, u.Alias)
		if _, exists := r.aliasToID[newKey]; exists {
			return ports.ErrDuplicate
		}
		delete(r.aliasToID, aliasKey(u.TenantID, existing.Alias))
		r.aliasToID[newKey] = u.ID
	}

	r.upstreams[uk] = u
	return nil
}

func (r *Repository) DeleteUpstream(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	uk := upstreamKey{tenantID, id}
	u, ok := r.upstreams[uk]
	if !ok {
		return ports.ErrNotFound
	}

	delete(r.upstreams, uk)
	delete(r.aliasToID, aliasKey(tenantID, u.Alias))

	for k, rt := range r.routes {
		if k.tenantID == tenantID && rt.UpstreamID == id {
			delete(r.routes, k)
		}
	}

	return nil
}

func (r *Repository) CreateRoute(ctx context.Context, rt route.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rk := routeKey{rt.TenantID, rt.ID}
	if _, exists := r.routes[rk]; exists {
		return ports.ErrDuplicate
	}

	r.nextSeq++
	r.routes[rk] = rt.WithSequence(r.nextSeq)
	return nil
}

func (r *Repository) GetRoute(ctx context.Context, tenantID, id string) (route.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.routes[routeKey{tenantID, id}]
	if !ok {
		return route.Route{}, ports.ErrNotFound
	}
	return rt, nil
}

func (r *Repository) ListRoutesByUpstream(ctx context.Context, tenantID, upstreamID string) ([]route.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []route.Route
	for k, rt := range r.routes {
		if k.tenantID == tenantID && rt.UpstreamID == upstreamID {
			out = append(out, rt)
		}
	}
	sortRoutesBySequence(out)
	return out, nil
}

func (r *Repository) ListRoutes(ctx context.Context, tenantID string, opts ports.ListOptions) ([]route.Route, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []route.Route
	for k, rt := range r.routes {
		if k.tenantID == tenantID {
			all = append(all, rt)
		}
	}
	sortRoutesBySequence(all)

	total := len(all)
	return paginateRoutes(all, opts), total, nil
}

func (r *Repository) UpdateRoute(ctx context.Context, rt route.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rk := routeKey{rt.TenantID, rt.ID}
	existing, ok := r.routes[rk]
	if !ok {
		return ports.ErrNotFound
	}

	r.routes[rk] = rt.WithSequence(existing.Sequence())
	return nil
}

func (r *Repository) DeleteRoute(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rk := routeKey{tenantID, id}
	if _, ok := r.routes[rk]; !ok {
		return ports.ErrNotFound
	}
	delete(r.routes, rk)
	return nil
}

func sortUpstreamsByCreatedAt(all []upstream.Upstream) {
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].CreatedAt.Before(all[j-1].CreatedAt); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
}

func sortRoutesBySequence(all []route.Route) {
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Sequence() < all[j-1].Sequence(); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
}

func paginateUpstreams(all []upstream.Upstream, opts ports.ListOptions) []upstream.Upstream {
	start := opts.Skip
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if opts.Top > 0 && start+opts.Top < end {
		end = start + opts.Top
	}
	return append([]upstream.Upstream{}, all[start:end]...)
}

func paginateRoutes(all []route.Route, opts ports.ListOptions) []route.Route {
	start := opts.Skip
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if opts.Top > 0 && start+opts.Top < end {
		end = start + opts.Top
	}
	return append([]route.Route{}, all[start:end]...)
}

// Ensure interface compliance.
var _ ports.Repository = (*Repository)(nil)
