package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/oagw/gateway/adapters/clock"
	"github.com/oagw/gateway/adapters/idgen"
	"github.com/oagw/gateway/adapters/memory"
	"github.com/oagw/gateway/app"
	"github.com/oagw/gateway/domain/authplugin"
	"github.com/oagw/gateway/domain/problem"
	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/upstream"
	"github.com/oagw/gateway/ports"
)

func newControlPlane() *app.ControlPlane {
	repo := memory.New()
	reg := authplugin.NewRegistry()
	ids := idgen.NewSequential("id-")
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return app.NewControlPlane(repo, reg, ids, clk)
}

func validUpstream() upstream.Upstream {
	return upstream.Upstream{
		Server: upstream.Server{
			Endpoints: []upstream.ServerEndpoint{
				{Scheme: upstream.SchemeHTTPS, Host: "Api.Example.com", Port: 443},
			},
		},
		Protocol: "gts.x.core.oagw.protocol.v1~x.core.oagw.http.v1",
		Enabled:  true,
	}
}

func TestControlPlane_CreateUpstream_DerivesAlias(t *testing.T) {
	cp := newControlPlane()
	u, perr := cp.CreateUpstream(context.Background(), "tenant-1", "/oagw/v1/upstreams", validUpstream())
	if perr != nil {
		t.Fatalf("CreateUpstream error: %v", perr)
	}
	if u.Alias != "api.example.com" {
		t.Errorf("Alias = %q, want api.example.com", u.Alias)
	}
	if u.ID == "" {
		t.Error("expected a generated ID")
	}
}

func TestControlPlane_CreateUpstream_ValidationFailure(t *testing.T) {
	cp := newControlPlane()
	bad := validUpstream()
	bad.Protocol = ""
	_, perr := cp.CreateUpstream(context.Background(), "tenant-1", "/oagw/v1/upstreams", bad)
	if perr == nil {
		t.Fatal("expected validation error")
	}
	if perr.Kind != problem.KindValidation {
		t.Errorf("Kind = %v, want KindValidation", perr.Kind)
	}
	if perr.Field != "protocol" {
		t.Errorf("Field = %q, want protocol", perr.Field)
	}
}

func TestControlPlane_CreateUpstream_DuplicateAlias(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	if _, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", validUpstream()); perr != nil {
		t.Fatalf("first create error: %v", perr)
	}
	_, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", validUpstream())
	if perr == nil {
		t.Fatal("expected duplicate alias error")
	}
	if perr.Kind != problem.KindValidation {
		t.Errorf("Kind = %v, want KindValidation", perr.Kind)
	}
}

func TestControlPlane_GetUpstream_NotFound(t *testing.T) {
	cp := newControlPlane()
	_, perr := cp.GetUpstream(context.Background(), "tenant-1", "missing", "/x")
	if perr == nil || perr.Kind != problem.KindResourceNotFound {
		t.Errorf("perr = %v, want KindResourceNotFound", perr)
	}
}

func TestControlPlane_UpdateUpstream_FieldWisePatch(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	created, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", validUpstream())
	if perr != nil {
		t.Fatalf("CreateUpstream error: %v", perr)
	}

	disabled := false
	updated, perr := cp.UpdateUpstream(ctx, "tenant-1", created.ID, "/x", app.UpstreamPatch{
		Enabled: &disabled,
	})
	if perr != nil {
		t.Fatalf("UpdateUpstream error: %v", perr)
	}
	if updated.Enabled {
		t.Error("Enabled should be false after patch")
	}
	if updated.Alias != created.Alias {
		t.Errorf("Alias changed despite absent patch field: got %q, want %q", updated.Alias, created.Alias)
	}
	if updated.Protocol != created.Protocol {
		t.Error("Protocol changed despite absent patch field")
	}
}

func TestControlPlane_DeleteUpstream_CascadesRoutes(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	u, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", validUpstream())
	if perr != nil {
		t.Fatalf("CreateUpstream error: %v", perr)
	}

	r, perr := cp.CreateRoute(ctx, "tenant-1", "/x", route.Route{
		UpstreamID: u.ID,
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{
			Methods: []string{"GET"}, Path: "/v1/chat", PathSuffixMode: route.PathSuffixDisabled,
		}},
		Enabled: true,
	})
	if perr != nil {
		t.Fatalf("CreateRoute error: %v", perr)
	}

	if perr := cp.DeleteUpstream(ctx, "tenant-1", u.ID, "/x"); perr != nil {
		t.Fatalf("DeleteUpstream error: %v", perr)
	}

	if _, perr := cp.GetRoute(ctx, "tenant-1", r.ID, "/x"); perr == nil {
		t.Error("expected route to be cascade-deleted")
	}
}

func TestControlPlane_CreateRoute_UnknownUpstream(t *testing.T) {
	cp := newControlPlane()
	_, perr := cp.CreateRoute(context.Background(), "tenant-1", "/x", route.Route{
		UpstreamID: "missing",
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{
			Methods: []string{"GET"}, Path: "/v1/chat", PathSuffixMode: route.PathSuffixDisabled,
		}},
	})
	if perr == nil || perr.Kind != problem.KindResourceNotFound || perr.Field != "upstream_id" {
		t.Errorf("perr = %+v, want resource-not-found error on upstream_id", perr)
	}
}

func TestControlPlane_UpdateRoute_PreservesSequence(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	u, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", validUpstream())
	if perr != nil {
		t.Fatalf("CreateUpstream error: %v", perr)
	}
	r, perr := cp.CreateRoute(ctx, "tenant-1", "/x", route.Route{
		UpstreamID: u.ID,
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{
			Methods: []string{"GET"}, Path: "/v1/chat", PathSuffixMode: route.PathSuffixDisabled,
		}},
		Enabled: true,
	})
	if perr != nil {
		t.Fatalf("CreateRoute error: %v", perr)
	}

	newPriority := 7
	updated, perr := cp.UpdateRoute(ctx, "tenant-1", r.ID, "/x", app.RoutePatch{Priority: &newPriority})
	if perr != nil {
		t.Fatalf("UpdateRoute error: %v", perr)
	}
	if updated.Priority != 7 {
		t.Errorf("Priority = %d, want 7", updated.Priority)
	}
	if updated.Sequence() != r.Sequence() {
		t.Error("Sequence changed on field-wise update")
	}
}

func TestControlPlane_ResolveUpstream_UnknownAlias(t *testing.T) {
	cp := newControlPlane()
	_, perr := cp.ResolveUpstream(context.Background(), "tenant-1", "nope.example.com", "/proxy")
	if perr == nil || perr.Kind != problem.KindUnknownTargetHost {
		t.Errorf("perr = %v, want KindUnknownTargetHost", perr)
	}
}

func TestControlPlane_ResolveUpstream_Disabled(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	disabledUpstream := validUpstream()
	disabledUpstream.Enabled = false
	u, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", disabledUpstream)
	if perr != nil {
		t.Fatalf("CreateUpstream error: %v", perr)
	}

	_, perr = cp.ResolveUpstream(ctx, "tenant-1", u.Alias, "/proxy")
	if perr == nil || perr.Kind != problem.KindUpstreamDisabled {
		t.Errorf("perr = %v, want KindUpstreamDisabled", perr)
	}
}

func TestControlPlane_ResolveRoute_PrefersMoreSpecificPath(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	u, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", validUpstream())
	if perr != nil {
		t.Fatalf("CreateUpstream error: %v", perr)
	}

	_, perr = cp.CreateRoute(ctx, "tenant-1", "/x", route.Route{
		UpstreamID: u.ID,
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{
			Methods: []string{"GET"}, Path: "/v1", PathSuffixMode: route.PathSuffixAppend,
		}},
		Enabled: true,
	})
	if perr != nil {
		t.Fatalf("CreateRoute error: %v", perr)
	}
	specific, perr := cp.CreateRoute(ctx, "tenant-1", "/x", route.Route{
		UpstreamID: u.ID,
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{
			Methods: []string{"GET"}, Path: "/v1/chat", PathSuffixMode: route.PathSuffixDisabled,
		}},
		Enabled: true,
	})
	if perr != nil {
		t.Fatalf("CreateRoute error: %v", perr)
	}

	got, perr := cp.ResolveRoute(ctx, "tenant-1", u.ID, "GET", "/v1/chat", "/proxy")
	if perr != nil {
		t.Fatalf("ResolveRoute error: %v", perr)
	}
	if got.ID != specific.ID {
		t.Errorf("resolved route ID = %s, want the more specific route %s", got.ID, specific.ID)
	}
}

func TestControlPlane_ResolveRoute_NoMatch(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	u, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", validUpstream())
	if perr != nil {
		t.Fatalf("CreateUpstream error: %v", perr)
	}
	_, perr = cp.ResolveRoute(ctx, "tenant-1", u.ID, "GET", "/nope", "/proxy")
	if perr == nil || perr.Kind != problem.KindRouteNotFound {
		t.Errorf("perr = %v, want KindRouteNotFound", perr)
	}
}

func TestControlPlane_ListUpstreams_ClampsTop(t *testing.T) {
	cp := newControlPlane()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		u := validUpstream()
		u.Server.Endpoints[0].Host = string(rune('a'+i)) + ".example.com"
		if _, perr := cp.CreateUpstream(ctx, "tenant-1", "/x", u); perr != nil {
			t.Fatalf("CreateUpstream error: %v", perr)
		}
	}
	items, total, perr := cp.ListUpstreams(ctx, "tenant-1", ports.ListOptions{Top: 0}, "/x")
	if perr != nil {
		t.Fatalf("ListUpstreams error: %v", perr)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 3 {
		t.Errorf("len(items) = %d, want 3", len(items))
	}
}
