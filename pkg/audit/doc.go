// Package audit records an access trail for the gate.
//
// Every rejected request produces an Event (auth_failed, access_denied,
// rate_limited, validation_failed or store_unavailable) carrying the route,
// caller, client IP and request ID. Operator actions such as resetting a rate
// limit counter are recorded as well. Submitted field values and tokens are
// never written; validation events only name the failing fields.
//
// Sinks:
//
//	LogLogger   - the structured application log, tagged audit=true
//	FileLogger  - JSON lines in <dir>/audit.log with size-based rotation
//	MultiLogger - fan-out to several sinks
//
// Usage:
//
//	sink := audit.NewMultiLogger(audit.NewLogLogger(logger), fileLogger)
//	defer sink.Close()
//	sink.Log(ctx, audit.NewRejectionEvent(rej))
package audit
