// Package httputil provides HTTP utilities shared by the gate's server.
//
// # Rejections
//
// Every pipeline rejection is written the same way:
//
//	httputil.WriteRejection(w, err)
//
// The status follows the rejection kind (429, 401, 403, 400, 503) and the body is
//
//	{"error": "<kind>", "message": "...", "failures": [...], "retry_after": 12}
//
// # Client IP
//
// Forwarding headers are only believed when the direct peer is a trusted
// proxy. X-Forwarded-For is then read right to left and the first untrusted
// hop is the caller; anything a client prepends is ignored.
//
//	trusted, _ := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
//	handler = httputil.ClientIPMiddleware(trusted)(handler)
//	ip := httputil.ClientIP(r)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.ClientIPMiddleware(trusted),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.TimeoutMiddleware(30*time.Second),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
