// Package problemdetails renders RFC 9457 Problem Details documents for the
// Management and Proxy REST surfaces.
package problemdetails

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/oagw/gateway/domain/oagwid"
	"github.com/oagw/gateway/domain/problem"
)

// ContentType is the media type required by RFC 9457.
const ContentType = "application/problem+json"

// SourceHeader is the gateway-specific header distinguishing gateway- from
// upstream-originated errors, carried on every proxy response.
const SourceHeader = "X-OAGW-Error-Source"

// Document is the wire representation of an RFC 9457 Problem Details object.
type Document struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Field    string         `json:"field,omitempty"`
	Retry    *float64       `json:"retry_after,omitempty"`
}

// titles gives a short human title per taxonomy kind, following the
// teacher's "Title" convention in pkg/jsonapi/errors.go.
var titles = map[problem.Kind]string{
	problem.KindValidation:        "Validation Failed",
	problem.KindMissingTargetHost: "Missing Target Host",
	problem.KindInvalidTargetHost: "Invalid Target Host",
	problem.KindUnknownTargetHost: "Unknown Target Host",
	problem.KindUpstreamDisabled:  "Upstream Disabled",
	problem.KindAuthFailed:        "Authentication Failed",
	problem.KindAuthRejected:      "Authentication Rejected",
	problem.KindRouteNotFound:     "Route Not Found",
	problem.KindResourceNotFound: "Resource Not Found",
	problem.KindPayloadTooLarge:   "Payload Too Large",
	problem.KindRateLimitExceeded: "Rate Limit Exceeded",
	problem.KindSecretNotFound:    "Secret Not Found",
	problem.KindDownstreamError:   "Downstream Error",
	problem.KindProtocolError:     "Protocol Error",
	problem.KindConnectionTimeout: "Connection Timeout",
	problem.KindRequestTimeout:    "Request Timeout",
	problem.KindInternal:          "Internal Error",
}

// FromDomainError converts a domain problem.Error into a Document.
func FromDomainError(err *problem.Error) Document {
	title := titles[err.Kind]
	if title == "" {
		title = "Error"
	}
	return Document{
		Type:     oagwid.ErrorID(string(err.Kind)),
		Title:    title,
		Status:   err.Status(),
		Detail:   err.Detail,
		Instance: err.Instance,
		Field:    err.Field,
		Retry:    err.Retry,
	}
}

// Write renders the Document as application/problem+json, sets
// X-OAGW-Error-Source: gateway, and (when present) Retry-After in whole
// seconds per RFC 9110.
func Write(w http.ResponseWriter, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set(SourceHeader, string(problem.SourceGateway))
	if doc.Retry != nil {
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(*doc.Retry)))
	}
	w.WriteHeader(doc.Status)
	_ = json.NewEncoder(w).Encode(doc)
}

// WriteError is the common entry point for HTTP handlers: it converts a
// domain error to a Document and writes it.
func WriteError(w http.ResponseWriter, err *problem.Error) {
	Write(w, FromDomainError(err))
}

// retrySeconds rounds up to the next whole second per RFC 9110's
// Retry-After delta-seconds form, with a floor of 1 so a sub-second
// estimate never renders as "0".
func retrySeconds(seconds float64) int {
	n := int(seconds)
	if float64(n) < seconds {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
