// Package pipeline composes the per-route access gate.
//
// A Pipeline is an ordered list of stages. Each stage returns Continue or a
// typed rejection, and the first rejection ends the run: a request refused by
// the rate limiter is never authenticated, and so on.
//
//	p, err := pipeline.Build(pipeline.Spec{
//		Name:    "orders.create",
//		Policy:  ratelimit.PolicyAPI,
//		Auth:    pipeline.AuthRequired,
//		Require: &rbac.AllRoles,
//		Rules:   rules,
//	}, deps)
//	router.Handle("/orders", p.Handler(ordersHandler))
//
// Build always orders stages rate limit, authenticate, authorize, validate.
// Handler writes rejections through httputil.WriteRejection and otherwise
// calls the next handler with the identity available via auth.FromContext.
//
// Every stage run gets its own span and is timed in the
// gatekeeper_stage_duration_seconds histogram.
package pipeline
