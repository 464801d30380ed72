// Package http implements the outbound transport adapter the Data Plane
// forwards requests through (§4.3 stage 9), and the Management/Proxy REST
// surfaces.
package http

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/oagw/gateway/ports"
)

// UpstreamClient forwards requests to external upstreams. A single client
// is shared across tenants; per-request timeouts come from
// ForwardRequest.ConnectTimeout/RequestTimeout (filled by the Data Plane from
// its proxy-wide configuration), not from the client's own Timeout field, since
// connect and request timeouts must be distinguished in the error taxonomy
// (§4.3 stage 9).
type UpstreamClient struct {
	transport *http.Transport
}

// NewUpstreamClient builds an UpstreamClient whose dialer enforces the
// connect timeout passed per-request via ForwardRequest.ConnectTimeout.
func NewUpstreamClient(maxIdleConns int, idleConnTimeout time.Duration) *UpstreamClient {
	if maxIdleConns <= 0 {
		maxIdleConns = 100
	}

	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &UpstreamClient{transport: transport}
}

// Forward sends req to its upstream and returns the raw *http.Response, or
// a ForwardError classified into the three shapes §4.3 stage 9 requires:
// connect failure (502 gateway), connect timeout (504 gateway), read
// timeout (504 gateway). The caller (app/dataplane.go) owns closing the
// response body and streaming it back unbuffered (§9).
func (u *UpstreamClient) Forward(ctx context.Context, req ports.ForwardRequest) (*http.Response, *ports.ForwardError) {
	dialer := &net.Dialer{Timeout: req.ConnectTimeout}

	transport := u.transport.Clone()
	transport.DialContext = dialer.DialContext

	client := &http.Client{
		Transport: transport,
		Timeout:   req.RequestTimeout,
	}

	var httpReq *http.Request
	var err error
	if len(req.Body) > 0 {
		httpReq, err = http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	}
	if err != nil {
		return nil, &ports.ForwardError{Kind: ports.ForwardErrorConnect, Wrapped: err}
	}
	httpReq.Header = req.Headers.Clone()

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyForwardError(err)
	}

	return resp, nil
}

// classifyForwardError distinguishes connect failures, connect timeouts,
// and read/request timeouts from the error net/http surfaces, which does
// not itself label them (§4.3 stage 9).
func classifyForwardError(err error) *ports.ForwardError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return &ports.ForwardError{Kind: ports.ForwardErrorConnectTimeout, Wrapped: err}
		}
		return &ports.ForwardError{Kind: ports.ForwardErrorReadTimeout, Wrapped: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return &ports.ForwardError{Kind: ports.ForwardErrorConnect, Wrapped: err}
	}

	return &ports.ForwardError{Kind: ports.ForwardErrorConnect, Wrapped: err}
}

// CloseIdleConnections releases pooled connections on shutdown.
func (u *UpstreamClient) CloseIdleConnections() {
	u.transport.CloseIdleConnections()
}

// Ensure interface compliance.
var _ ports.Upstream = (*UpstreamClient)(nil)
