package http_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	oagwhttp "github.com/oagw/gateway/adapters/http"
	"github.com/oagw/gateway/adapters/clock"
	"github.com/oagw/gateway/adapters/credential"
	"github.com/oagw/gateway/adapters/idgen"
	"github.com/oagw/gateway/adapters/memory"
	"github.com/oagw/gateway/app"
	"github.com/oagw/gateway/domain/authplugin"
	"github.com/oagw/gateway/domain/ratelimit"
	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/upstream"
	"github.com/oagw/gateway/ports"
)

type stubUpstreamTransport struct {
	resp *http.Response
}

func (s *stubUpstreamTransport) Forward(ctx context.Context, req ports.ForwardRequest) (*http.Response, *ports.ForwardError) {
	return s.resp, nil
}

func newProxyRouter(t *testing.T, transport ports.Upstream) (*chi.Mux, *app.ControlPlane) {
	t.Helper()
	repo := memory.New()
	reg := authplugin.NewRegistry()
	ids := idgen.NewSequential("id-")
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cp := app.NewControlPlane(repo, reg, ids, clk)

	bank := ratelimit.NewBank(ratelimit.BankConfig{})
	t.Cleanup(bank.Close)
	cred := credential.NewEnvResolver()
	transform := app.NewTransformService()
	dp := app.NewDataPlane(cp, bank, reg, cred, transport, transform, nil, app.DataPlaneConfig{MaxBodyBytes: 1 << 20})

	h := oagwhttp.NewProxyHandler(dp, zerolog.Nop())
	r := chi.NewRouter()
	h.Routes(r)
	return r, cp
}

func seedProxyUpstream(t *testing.T, cp *app.ControlPlane) upstream.Upstream {
	t.Helper()
	ctx := context.Background()
	u := upstream.Upstream{
		Server:   upstream.Server{Endpoints: []upstream.ServerEndpoint{{Scheme: upstream.SchemeHTTPS, Host: "Api.Example.com", Port: 443}}},
		Protocol: "gts.x.core.oagw.protocol.v1~x.core.oagw.http.v1",
		Enabled:  true,
	}
	created, perr := cp.CreateUpstream(ctx, "tenant-1", "/oagw/v1/upstreams", u)
	if perr != nil {
		t.Fatalf("CreateUpstream: %v", perr)
	}
	r := route.Route{
		UpstreamID: created.ID,
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{
			Methods:        []string{"GET"},
			Path:           "/v1/models",
			PathSuffixMode: route.PathSuffixDisabled,
		}},
		Enabled: true,
	}
	if _, perr := cp.CreateRoute(ctx, "tenant-1", "/oagw/v1/routes", r); perr != nil {
		t.Fatalf("CreateRoute: %v", perr)
	}
	return created
}

func TestProxy_HappyPath_StreamsUpstreamResponse(t *testing.T) {
	transport := &stubUpstreamTransport{resp: &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(`{"models":[]}`)),
	}}
	r, cp := newProxyRouter(t, transport)
	created := seedProxyUpstream(t, cp)

	req := httptest.NewRequest("GET", "/api/oagw/v1/proxy/"+created.Alias+"/v1/models", nil)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"models":[]}` {
		t.Errorf("body = %q", w.Body.String())
	}
	if src := w.Header().Get("X-OAGW-Error-Source"); src != "upstream" {
		t.Errorf("X-OAGW-Error-Source = %q, want upstream", src)
	}
}

func TestProxy_UnknownAlias_WritesProblemDetailsWithGatewaySource(t *testing.T) {
	transport := &stubUpstreamTransport{}
	r, _ := newProxyRouter(t, transport)

	req := httptest.NewRequest("GET", "/api/oagw/v1/proxy/does-not-exist/v1/models", nil)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("status = %d, want 404, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if src := w.Header().Get("X-OAGW-Error-Source"); src != "gateway" {
		t.Errorf("X-OAGW-Error-Source = %q, want gateway", src)
	}
}

func TestProxy_AliasIsLowercased(t *testing.T) {
	transport := &stubUpstreamTransport{resp: &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewBufferString("ok")),
	}}
	r, cp := newProxyRouter(t, transport)
	seedProxyUpstream(t, cp)

	req := httptest.NewRequest("GET", "/api/oagw/v1/proxy/Api.Example.com/v1/models", nil)
	req.Header.Set("X-Tenant-Id", "tenant-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
