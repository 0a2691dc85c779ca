// Package auth holds the two trust checks the hub relies on.
//
// JWTValidator verifies the bearer token a WebSocket client presents in its
// `auth` frame and decodes the user identity and scopes it carries. Tokens are
// issued elsewhere; the hub only verifies them. Failures are reported as one of
// ErrTokenExpired, ErrTokenInvalid or ErrTokenMalformed.
//
// APIKeyInterceptor and APIKeyMiddleware guard the push API (gRPC and REST)
// used by the rest of the application to feed events into the hub. When
// mode != "apikey" or the key is empty every call passes through, which is
// the local development setup.
package auth
