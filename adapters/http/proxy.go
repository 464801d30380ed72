package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/oagw/gateway/app"
	"github.com/oagw/gateway/domain/problem"
	"github.com/oagw/gateway/domain/proxy"
	"github.com/oagw/gateway/pkg/problemdetails"
)

// ProxyPathPrefix is the mount point of the Proxy endpoint (§6).
const ProxyPathPrefix = "/api/oagw/v1/proxy"

const maxBufferedRequestBody = 32 << 20 // 32 MiB; the Data Plane re-checks against the configured limit.

// ProxyHandler serves the catch-all `ANY /api/oagw/v1/proxy/{alias}/{*path_suffix}`
// endpoint, translating net/http requests into proxy.Context and driving
// app.DataPlane.
type ProxyHandler struct {
	dp     *app.DataPlane
	logger zerolog.Logger
}

// NewProxyHandler builds a ProxyHandler.
func NewProxyHandler(dp *app.DataPlane, logger zerolog.Logger) *ProxyHandler {
	return &ProxyHandler{dp: dp, logger: logger}
}

// Routes mounts the proxy endpoint onto r.
func (h *ProxyHandler) Routes(r chi.Router) {
	r.HandleFunc(ProxyPathPrefix+"/{alias}/*", h.serve)
}

func (h *ProxyHandler) serve(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	pathSuffix := "/" + chi.URLParam(r, "*")

	tenantID := r.Header.Get(TenantHeader)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBufferedRequestBody+1))
	if err != nil {
		problemdetails.WriteError(w, problem.New(problem.KindValidation, "failed to read request body: "+err.Error(), r.URL.Path))
		return
	}

	reqCtx := proxy.Context{
		TenantID:    tenantID,
		Method:      r.Method,
		Alias:       strings.ToLower(alias),
		PathSuffix:  pathSuffix,
		QueryParams: map[string][]string(r.URL.Query()),
		Headers:     r.Header.Clone(),
		Body:        body,
		InstanceURI: r.URL.Path,
	}

	resp, perr := h.dp.Handle(r.Context(), reqCtx)
	if perr != nil {
		w.Header().Set(problemdetails.SourceHeader, string(problem.SourceGateway))
		problemdetails.WriteError(w, perr)
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Headers {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(problemdetails.SourceHeader, string(resp.ErrorSource))
	w.WriteHeader(resp.Status)

	if flusher, ok := w.(http.Flusher); ok {
		streamCopy(w, resp.Body, flusher)
		return
	}
	_, _ = io.Copy(w, resp.Body)
}

// streamCopy copies src to dst one read at a time, flushing after every
// chunk so SSE and other incrementally-produced bodies reach the caller
// without buffering at the gateway (§5 "Backpressure", §9 streaming).
func streamCopy(dst io.Writer, src io.Reader, flusher http.Flusher) {
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			return
		}
	}
}
