// Package problem implements the error taxonomy shared by the Control Plane
// and Data Plane, and its mapping onto HTTP status, error source, and the
// stable GTS error-identifier catalog.
package problem

import "net/http"

// Source attributes an error to the gateway itself or to the upstream whose
// response the gateway is relaying verbatim.
type Source string

const (
	SourceGateway  Source = "gateway"
	SourceUpstream Source = "upstream"
)

// Kind enumerates the domain error taxonomy. Every non-upstream error
// carries exactly one Kind.
type Kind string

const (
	KindValidation           Kind = "validation.error"
	KindMissingTargetHost    Kind = "routing.missing_target_host"
	KindInvalidTargetHost    Kind = "routing.invalid_target_host"
	KindUnknownTargetHost    Kind = "routing.unknown_target_host"
	KindUpstreamDisabled     Kind = "routing.upstream_disabled"
	KindAuthFailed           Kind = "auth.failed"
	KindAuthRejected         Kind = "auth.rejected"
	KindRouteNotFound        Kind = "route.not_found"
	KindResourceNotFound     Kind = "resource.not_found"
	KindPayloadTooLarge      Kind = "payload.too_large"
	KindRateLimitExceeded    Kind = "rate_limit.exceeded"
	KindSecretNotFound       Kind = "secret.not_found"
	KindDownstreamError      Kind = "downstream.error"
	KindProtocolError        Kind = "protocol.error"
	KindConnectionTimeout    Kind = "timeout.connection"
	KindRequestTimeout       Kind = "timeout.request"
	KindInternal             Kind = "internal.error"
)

// taxonomy maps each Kind to its fixed HTTP status per §7. Every Kind listed
// here is gateway-sourced; upstream-produced responses never consult this
// table.
var taxonomy = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindMissingTargetHost: http.StatusBadRequest,
	KindInvalidTargetHost: http.StatusBadRequest,
	KindUnknownTargetHost: http.StatusNotFound, // alias resolves to no upstream (§4.3 stage 1 "NotFound")
	KindAuthFailed:        http.StatusUnauthorized,
	KindAuthRejected:      http.StatusForbidden,
	KindRouteNotFound:     http.StatusNotFound,
	KindResourceNotFound:  http.StatusNotFound,
	KindPayloadTooLarge:   http.StatusRequestEntityTooLarge,
	KindRateLimitExceeded: http.StatusTooManyRequests,
	KindSecretNotFound:    http.StatusInternalServerError,
	KindInternal:          http.StatusInternalServerError,
	KindDownstreamError:   http.StatusBadGateway,
	KindProtocolError:     http.StatusBadGateway,
	KindUpstreamDisabled:  http.StatusServiceUnavailable,
	KindConnectionTimeout: http.StatusGatewayTimeout,
	KindRequestTimeout:    http.StatusGatewayTimeout,
}

// StatusFor returns the fixed HTTP status for a gateway-sourced Kind.
func StatusFor(k Kind) int {
	if status, ok := taxonomy[k]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Error is the typed domain error carried through Control Plane and Data
// Plane code. It always has SourceGateway; an upstream-sourced error never
// needs this type because the gateway relays the upstream's own body and
// status verbatim.
type Error struct {
	Kind     Kind
	Detail   string
	Instance string       // request-relative URI naming what failed
	Field    string       // optional JSON-pointer-like field path for validation errors
	Retry    *float64     // seconds until retry, set only for KindRateLimitExceeded
	Wrapped  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return string(e.Kind) + ": " + e.Detail
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Status returns the fixed HTTP status for this error's Kind.
func (e *Error) Status() int { return StatusFor(e.Kind) }

// New constructs a gateway-sourced domain error.
func New(kind Kind, detail, instance string) *Error {
	return &Error{Kind: kind, Detail: detail, Instance: instance}
}

// Wrap wraps an underlying error with a domain Kind.
func Wrap(kind Kind, instance string, err error) *Error {
	return &Error{Kind: kind, Detail: err.Error(), Instance: instance, Wrapped: err}
}

// WithField attaches a validation field path and returns the same Error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithRetryAfter attaches a Retry-After seconds hint, used only by
// KindRateLimitExceeded.
func (e *Error) WithRetryAfter(seconds float64) *Error {
	e.Retry = &seconds
	return e
}
