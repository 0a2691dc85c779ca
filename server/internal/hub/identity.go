package hub

import "github.com/storyhub/presencehub/server/internal/auth"

// ConnID identifies one transport connection for the lifetime of a Hub.
// IDs are allocated monotonically and never reused.
type ConnID uint64

// UserIdentity is the verified identity bound to a connection by the auth
// gate. It is immutable once assigned; re-authentication replaces it.
type UserIdentity struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Scopes   []string `json:"scopes,omitempty"`
}

func identityFromClaims(c *auth.Claims) UserIdentity {
	scopes := make([]string, len(c.Scopes))
	copy(scopes, c.Scopes)
	return UserIdentity{ID: c.UserID, Username: c.Username, Scopes: scopes}
}

// TokenValidator verifies a bearer token. *auth.JWTValidator implements it.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Sender is the outbound half of a transport connection.
//
// Send must not block: it either queues data or returns an error. Close asks
// the transport to shut the connection down; the transport must then call
// Hub.Disconnect exactly once.
type Sender interface {
	Send(data []byte) error
	Close() error
}
