package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oagw/gateway/app"
	"github.com/oagw/gateway/domain/oagwid"
	"github.com/oagw/gateway/domain/problem"
	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/upstream"
	"github.com/oagw/gateway/pkg/problemdetails"
	"github.com/oagw/gateway/ports"
)

// TenantHeader is the mandatory tenant identifier on every Management
// request (§6 "Tenant is required via X-Tenant-Id").
const TenantHeader = "X-Tenant-Id"

// ManagementHandler implements the `/oagw/v1` Management REST surface over
// app.ControlPlane.
type ManagementHandler struct {
	cp     *app.ControlPlane
	logger zerolog.Logger
}

// NewManagementHandler builds a ManagementHandler.
func NewManagementHandler(cp *app.ControlPlane, logger zerolog.Logger) *ManagementHandler {
	return &ManagementHandler{cp: cp, logger: logger}
}

// Routes mounts the Management REST surface onto r under /oagw/v1.
func (h *ManagementHandler) Routes(r chi.Router) {
	r.Route("/oagw/v1", func(r chi.Router) {
		r.Use(h.requireTenant)

		r.Post("/upstreams", h.createUpstream)
		r.Get("/upstreams", h.listUpstreams)
		r.Get("/upstreams/{id}", h.getUpstream)
		r.Put("/upstreams/{id}", h.updateUpstream)
		r.Delete("/upstreams/{id}", h.deleteUpstream)

		r.Post("/routes", h.createRoute)
		r.Get("/routes", h.listRoutes)
		r.Get("/routes/{id}", h.getRoute)
		r.Put("/routes/{id}", h.updateRoute)
		r.Delete("/routes/{id}", h.deleteRoute)
	})
}

type tenantCtxKey struct{}

// requireTenant rejects any request missing a well-formed X-Tenant-Id.
func (h *ManagementHandler) requireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantHeader)
		if _, err := uuid.Parse(tenantID); err != nil {
			problemdetails.WriteError(w, problem.New(problem.KindValidation, "X-Tenant-Id header is required and must be a UUID", r.URL.Path).WithField("X-Tenant-Id"))
			return
		}
		next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenantID)))
	})
}

func withTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

func tenantFrom(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantCtxKey{}).(string)
	return tenantID
}

// gtsUpstreamID resolves the {id} path param, which is a GTS upstream id, to
// the repository's internal id.
func gtsUpstreamID(r *http.Request) (string, *problem.Error) {
	return parseGTS(r, oagwid.TypeUpstream)
}

func gtsRouteID(r *http.Request) (string, *problem.Error) {
	return parseGTS(r, oagwid.TypeRoute)
}

func parseGTS(r *http.Request, t oagwid.Type) (string, *problem.Error) {
	raw := chi.URLParam(r, "id")
	id, err := oagwid.Parse(t, raw)
	if err != nil {
		return "", problem.New(problem.KindValidation, "invalid resource id: "+err.Error(), r.URL.Path).WithField("id")
	}
	return id.String(), nil
}

func listOptions(r *http.Request) ports.ListOptions {
	opts := ports.ListOptions{Top: 20, Skip: 0}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Top = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Skip = n
		}
	}
	return opts
}

// --- upstreams ---

// upstreamView is the wire representation of an upstream.Upstream; it
// renders and parses the id as a GTS string (§6 "All responses carry
// resource ids as GTS strings").
type upstreamView struct {
	ID        string                      `json:"id,omitempty"`
	Alias     string                      `json:"alias,omitempty"`
	Server    upstream.Server             `json:"server"`
	Protocol  string                      `json:"protocol"`
	Enabled   bool                        `json:"enabled"`
	Auth      *upstream.AuthConfig        `json:"auth,omitempty"`
	Headers   *upstream.HeaderRules       `json:"headers,omitempty"`
	RateLimit *upstream.RateLimitConfig   `json:"rate_limit,omitempty"`
	Plugins   []string                    `json:"plugins,omitempty"`
	Tags      []string                    `json:"tags,omitempty"`
}

func toUpstreamView(u upstream.Upstream) upstreamView {
	id, err := uuid.Parse(u.ID)
	gtsID := u.ID
	if err == nil {
		gtsID = oagwid.Format(oagwid.TypeUpstream, id)
	}
	return upstreamView{
		ID:        gtsID,
		Alias:     u.Alias,
		Server:    u.Server,
		Protocol:  u.Protocol,
		Enabled:   u.Enabled,
		Auth:      u.Auth,
		Headers:   u.Headers,
		RateLimit: u.RateLimit,
		Plugins:   u.Plugins,
		Tags:      u.Tags,
	}
}

func (v upstreamView) toDomain() upstream.Upstream {
	return upstream.Upstream{
		Alias:     v.Alias,
		Server:    v.Server,
		Protocol:  v.Protocol,
		Enabled:   v.Enabled,
		Auth:      v.Auth,
		Headers:   v.Headers,
		RateLimit: v.RateLimit,
		Plugins:   v.Plugins,
		Tags:      v.Tags,
	}
}

func (h *ManagementHandler) createUpstream(w http.ResponseWriter, r *http.Request) {
	var body upstreamView
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problemdetails.WriteError(w, problem.New(problem.KindValidation, "invalid JSON body: "+err.Error(), r.URL.Path))
		return
	}

	u, perr := h.cp.CreateUpstream(r.Context(), tenantFrom(r.Context()), r.URL.Path, body.toDomain())
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	writeJSON(w, http.StatusCreated, toUpstreamView(u))
}

func (h *ManagementHandler) listUpstreams(w http.ResponseWriter, r *http.Request) {
	items, total, perr := h.cp.ListUpstreams(r.Context(), tenantFrom(r.Context()), listOptions(r), r.URL.Path)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	views := make([]upstreamView, 0, len(items))
	for _, u := range items {
		views = append(views, toUpstreamView(u))
	}
	writeJSON(w, http.StatusOK, listEnvelope{Items: views, Total: total})
}

func (h *ManagementHandler) getUpstream(w http.ResponseWriter, r *http.Request) {
	id, perr := gtsUpstreamID(r)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	u, perr := h.cp.GetUpstream(r.Context(), tenantFrom(r.Context()), id, r.URL.Path)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	writeJSON(w, http.StatusOK, toUpstreamView(u))
}

// upstreamPatchView mirrors app.UpstreamPatch with pointer fields so an
// absent JSON key decodes to nil (§3 field-wise update).
type upstreamPatchView struct {
	Alias     *string                   `json:"alias"`
	Server    *upstream.Server          `json:"server"`
	Protocol  *string                   `json:"protocol"`
	Enabled   *bool                     `json:"enabled"`
	Auth      *upstream.AuthConfig      `json:"auth"`
	Headers   *upstream.HeaderRules     `json:"headers"`
	RateLimit *upstream.RateLimitConfig `json:"rate_limit"`
	Plugins   *[]string                 `json:"plugins"`
	Tags      *[]string                 `json:"tags"`
}

func (v upstreamPatchView) toDomain() app.UpstreamPatch {
	return app.UpstreamPatch{
		Alias:     v.Alias,
		Server:    v.Server,
		Protocol:  v.Protocol,
		Enabled:   v.Enabled,
		Auth:      v.Auth,
		Headers:   v.Headers,
		RateLimit: v.RateLimit,
		Plugins:   v.Plugins,
		Tags:      v.Tags,
	}
}

func (h *ManagementHandler) updateUpstream(w http.ResponseWriter, r *http.Request) {
	id, perr := gtsUpstreamID(r)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	var patch upstreamPatchView
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		problemdetails.WriteError(w, problem.New(problem.KindValidation, "invalid JSON body: "+err.Error(), r.URL.Path))
		return
	}
	u, perr := h.cp.UpdateUpstream(r.Context(), tenantFrom(r.Context()), id, r.URL.Path, patch.toDomain())
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	writeJSON(w, http.StatusOK, toUpstreamView(u))
}

func (h *ManagementHandler) deleteUpstream(w http.ResponseWriter, r *http.Request) {
	id, perr := gtsUpstreamID(r)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	if perr := h.cp.DeleteUpstream(r.Context(), tenantFrom(r.Context()), id, r.URL.Path); perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- routes ---

type routeView struct {
	ID         string                    `json:"id,omitempty"`
	UpstreamID string                    `json:"upstream_id"`
	MatchRules route.MatchRule           `json:"match_rules"`
	Priority   int                       `json:"priority"`
	Enabled    bool                      `json:"enabled"`
	Plugins    []string                  `json:"plugins,omitempty"`
	RateLimit  *upstream.RateLimitConfig `json:"rate_limit,omitempty"`
	Tags       []string                  `json:"tags,omitempty"`
}

func toRouteView(r route.Route) routeView {
	id, err := uuid.Parse(r.ID)
	gtsID := r.ID
	if err == nil {
		gtsID = oagwid.Format(oagwid.TypeRoute, id)
	}
	upstreamID, err := uuid.Parse(r.UpstreamID)
	gtsUpstream := r.UpstreamID
	if err == nil {
		gtsUpstream = oagwid.Format(oagwid.TypeUpstream, upstreamID)
	}
	return routeView{
		ID:         gtsID,
		UpstreamID: gtsUpstream,
		MatchRules: r.MatchRules,
		Priority:   r.Priority,
		Enabled:    r.Enabled,
		Plugins:    r.Plugins,
		RateLimit:  r.RateLimit,
		Tags:       r.Tags,
	}
}

func (v routeView) toDomain() (route.Route, *problem.Error) {
	upstreamID := v.UpstreamID
	if id, err := oagwid.Parse(oagwid.TypeUpstream, v.UpstreamID); err == nil {
		upstreamID = id.String()
	}
	return route.Route{
		UpstreamID: upstreamID,
		MatchRules: v.MatchRules,
		Priority:   v.Priority,
		Enabled:    v.Enabled,
		Plugins:    v.Plugins,
		RateLimit:  v.RateLimit,
		Tags:       v.Tags,
	}, nil
}

func (h *ManagementHandler) createRoute(w http.ResponseWriter, r *http.Request) {
	var body routeView
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problemdetails.WriteError(w, problem.New(problem.KindValidation, "invalid JSON body: "+err.Error(), r.URL.Path))
		return
	}
	domainRoute, perr := body.toDomain()
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	created, perr := h.cp.CreateRoute(r.Context(), tenantFrom(r.Context()), r.URL.Path, domainRoute)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	writeJSON(w, http.StatusCreated, toRouteView(created))
}

func (h *ManagementHandler) listRoutes(w http.ResponseWriter, r *http.Request) {
	var upstreamIDFilter string
	if v := r.URL.Query().Get("upstream_id"); v != "" {
		if id, err := oagwid.Parse(oagwid.TypeUpstream, v); err == nil {
			upstreamIDFilter = id.String()
		}
	}
	items, total, perr := h.cp.ListRoutes(r.Context(), tenantFrom(r.Context()), upstreamIDFilter, listOptions(r), r.URL.Path)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	views := make([]routeView, 0, len(items))
	for _, rt := range items {
		views = append(views, toRouteView(rt))
	}
	writeJSON(w, http.StatusOK, listEnvelope{Items: views, Total: total})
}

func (h *ManagementHandler) getRoute(w http.ResponseWriter, r *http.Request) {
	id, perr := gtsRouteID(r)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	rt, perr := h.cp.GetRoute(r.Context(), tenantFrom(r.Context()), id, r.URL.Path)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	writeJSON(w, http.StatusOK, toRouteView(rt))
}

type routePatchView struct {
	MatchRules *route.MatchRule          `json:"match_rules"`
	Priority   *int                      `json:"priority"`
	Enabled    *bool                     `json:"enabled"`
	Plugins    *[]string                 `json:"plugins"`
	RateLimit  *upstream.RateLimitConfig `json:"rate_limit"`
	Tags       *[]string                 `json:"tags"`
}

func (v routePatchView) toDomain() app.RoutePatch {
	return app.RoutePatch{
		MatchRules: v.MatchRules,
		Priority:   v.Priority,
		Enabled:    v.Enabled,
		Plugins:    v.Plugins,
		RateLimit:  v.RateLimit,
		Tags:       v.Tags,
	}
}

func (h *ManagementHandler) updateRoute(w http.ResponseWriter, r *http.Request) {
	id, perr := gtsRouteID(r)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	var patch routePatchView
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		problemdetails.WriteError(w, problem.New(problem.KindValidation, "invalid JSON body: "+err.Error(), r.URL.Path))
		return
	}
	rt, perr := h.cp.UpdateRoute(r.Context(), tenantFrom(r.Context()), id, r.URL.Path, patch.toDomain())
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	writeJSON(w, http.StatusOK, toRouteView(rt))
}

func (h *ManagementHandler) deleteRoute(w http.ResponseWriter, r *http.Request) {
	id, perr := gtsRouteID(r)
	if perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	if perr := h.cp.DeleteRoute(r.Context(), tenantFrom(r.Context()), id, r.URL.Path); perr != nil {
		problemdetails.WriteError(w, perr)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listEnvelope struct {
	Items any `json:"items"`
	Total int `json:"total"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
