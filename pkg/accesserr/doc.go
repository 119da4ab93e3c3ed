// Package accesserr defines the rejection taxonomy shared by every gate stage.
//
// Each stage either lets a request continue or returns an *Error tagged with a
// Kind. Rejections are terminal for the request; nothing in the gate retries them.
//
//	if err := authorizer.Authorize(id, rbac.Admins); err != nil {
//		if errors.Is(err, accesserr.ErrForbidden) {
//			// role is not in the requirement
//		}
//	}
//
// The HTTP mapping of kinds to status codes lives in pkg/httputil.
package accesserr
