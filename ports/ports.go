// Package ports declares the narrow interfaces the Control Plane and Data
// Plane depend on, implemented by adapters. This keeps persistence,
// secret resolution, and outbound transport swappable without touching
// domain or app code (§1 "consumed via a narrow ... interface").
package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/oagw/gateway/domain/route"
	"github.com/oagw/gateway/domain/upstream"
)

// Clock abstracts time so tests can control it, following the teacher's
// adapters/clock pattern.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque internal UUIDs for new resources.
type IDGenerator interface {
	New() string
}

// ErrNotFound is returned by repository lookups that find nothing.
var ErrNotFound = repoError("not found")

// ErrDuplicate is returned when a unique constraint (tenant+alias) is violated.
var ErrDuplicate = repoError("duplicate")

type repoError string

func (e repoError) Error() string { return string(e) }

// ListOptions bounds a List query per §4.1 ("top <= 100, skip").
type ListOptions struct {
	Top  int
	Skip int
}

// Repository is the tenant-scoped persistence contract of §4.1. All
// lookups must be O(log n) or O(1); Delete of an upstream is a single
// transactional operation that also removes its routes.
type Repository interface {
	CreateUpstream(ctx context.Context, u upstream.Upstream) error
	GetUpstream(ctx context.Context, tenantID, id string) (upstream.Upstream, error)
	GetUpstreamByAlias(ctx context.Context, tenantID, alias string) (upstream.Upstream, error)
	ListUpstreams(ctx context.Context, tenantID string, opts ListOptions) ([]upstream.Upstream, int, error)
	UpdateUpstream(ctx context.Context, u upstream.Upstream) error
	DeleteUpstream(ctx context.Context, tenantID, id string) error

	CreateRoute(ctx context.Context, r route.Route) error
	GetRoute(ctx context.Context, tenantID, id string) (route.Route, error)
	ListRoutesByUpstream(ctx context.Context, tenantID, upstreamID string) ([]route.Route, error)
	ListRoutes(ctx context.Context, tenantID string, opts ListOptions) ([]route.Route, int, error)
	UpdateRoute(ctx context.Context, r route.Route) error
	DeleteRoute(ctx context.Context, tenantID, id string) error
}

// CredentialResolver resolves a `cred://name` reference to secret
// material. Implementations must never log the resolved value (§4.1,
// §4.4). This mirrors authplugin.CredentialResolver; the two are kept as
// separate interfaces so domain/authplugin has no dependency on ports.
type CredentialResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// ForwardRequest is the outbound request the Data Plane hands to the
// upstream HTTP client (§4.3 stage 9).
type ForwardRequest struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte

	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// ForwardError distinguishes the three failure shapes stage 9 must map to
// distinct statuses: connect failure (502), connect timeout (504), and
// read timeout (504).
type ForwardError struct {
	Kind    ForwardErrorKind
	Wrapped error
}

func (e *ForwardError) Error() string { return e.Wrapped.Error() }
func (e *ForwardError) Unwrap() error { return e.Wrapped }

type ForwardErrorKind int

const (
	ForwardErrorConnect ForwardErrorKind = iota
	ForwardErrorConnectTimeout
	ForwardErrorReadTimeout
)

// Upstream is the outbound transport the Data Plane forwards requests
// through (§4.3 stage 9/10).
type Upstream interface {
	Forward(ctx context.Context, req ForwardRequest) (*http.Response, *ForwardError)
}
