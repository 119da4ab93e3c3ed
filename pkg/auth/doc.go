// Package auth provides session tokens and request authentication for the gate.
//
// # Overview
//
// Every platform caller (customer, restaurant, delivery partner, staff) carries a
// signed session token. The token holds the subject id, one Role, and the
// issued-at / expiry times. This package turns a request into an Identity or a
// typed rejection from pkg/accesserr.
//
// # Roles
//
// Roles are a closed set with no implied ordering:
//
//	RoleSuperAdmin, RoleManager, RoleSupport, RoleAreaManager, RoleTeamLead,
//	RoleFinance, RoleHR, RoleCustomer, RoleRestaurant, RoleDeliveryPartner
//
// # Token Codec
//
// Tokens are HS256 JWTs:
//
//	codec, err := auth.NewTokenCodec(auth.TokenConfig{
//		Secret: []byte(cfg.Token.Secret),
//		Issuer: "gatekeeper",
//		TTL:    24 * time.Hour,
//	})
//	token, id, err := codec.Issue("cust-42", auth.RoleCustomer)
//
// Decode reports InvalidToken for bad signatures or malformed claims and
// Expired once now >= exp. The signature is always checked first, so a tampered
// token is never reported as Expired.
//
// # Authenticator
//
//	authn := auth.NewAuthenticator(codec, logger, metrics)
//	id, err := authn.Authenticate(r)        // required mode
//	id := authn.AuthenticateOptional(r)     // optional mode, nil on failure
//
// The header must be exactly "Bearer <token>"; anything else is MissingToken.
//
// # Related Packages
//
//   - pkg/rbac: role requirements checked against the Identity
//   - pkg/pipeline: runs authentication as a stage
package auth
