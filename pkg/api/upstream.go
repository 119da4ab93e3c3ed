package api

import (
	"context"
	"errors"
	"net/http"
	proxyutil "net/http/httputil"
	"net/url"
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/contextkeys"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// Identity headers set on every proxied request. Copies sent by the client are
// always dropped.
const (
	HeaderAuthSubject = "X-Auth-Subject"
	HeaderAuthRole    = "X-Auth-Role"
)

// NewProxy forwards admitted requests to target with the caller's identity in
// X-Auth-Subject and X-Auth-Role
func NewProxy(target *url.URL, logger *observability.Logger) http.Handler {
	return &proxyutil.ReverseProxy{
		Rewrite: func(pr *proxyutil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()

			pr.Out.Header.Del(HeaderAuthSubject)
			pr.Out.Header.Del(HeaderAuthRole)
			if id := auth.FromContext(pr.In.Context()); id != nil {
				pr.Out.Header.Set(HeaderAuthSubject, id.Subject())
				pr.Out.Header.Set(HeaderAuthRole, string(id.Role()))
			}
			if reqID := contextkeys.GetRequestID(pr.In.Context()); reqID != "" {
				pr.Out.Header.Set(httputil.RequestIDHeader, reqID)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
				httputil.WriteErrorMessage(w, http.StatusGatewayTimeout, "upstream timed out")
				return
			}
			if logger != nil {
				fields := map[string]interface{}{
					"upstream":   target.Host,
					"request_id": contextkeys.GetRequestID(r.Context()),
				}
				if start, ok := contextkeys.GetRequestStartTime(r.Context()); ok {
					fields["elapsed_ms"] = time.Since(start).Milliseconds()
				}
				observability.UpdateLoggerWithTraceContext(r.Context(), logger).WithFields(fields).WithError(err).Error("Upstream request failed")
			}
			httputil.WriteErrorMessage(w, http.StatusBadGateway, "upstream unavailable")
		},
	}
}

// EchoResponse is returned by EchoHandler
type EchoResponse struct {
	Route     string `json:"route"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	RequestID string `json:"request_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Role      string `json:"role,omitempty"`
}

// EchoHandler answers admitted requests with what the gate learned about
// them. Used when no upstream is configured.
func EchoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := EchoResponse{
			Route:     contextkeys.GetRoute(r.Context()),
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: contextkeys.GetRequestID(r.Context()),
		}
		if id := auth.FromContext(r.Context()); id != nil {
			resp.Subject = id.Subject()
			resp.Role = string(id.Role())
		}
		httputil.WriteSuccess(w, resp)
	})
}
