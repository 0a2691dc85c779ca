package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token verification failures. Every error returned by JWTValidator.Validate
// matches exactly one of these with errors.Is.
var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenMalformed = errors.New("malformed token")
)

// Claims is the payload of a hub access token.
type Claims struct {
	UserID   int64    `json:"userId"`
	Username string   `json:"username"`
	Scopes   []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator verifies signed access tokens with a fixed key.
type JWTValidator struct {
	key    any
	parser *jwt.Parser
}

// ValidatorOption customises a JWTValidator.
type ValidatorOption func(*validatorOptions)

type validatorOptions struct {
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// WithIssuer rejects tokens whose iss claim differs from issuer.
func WithIssuer(issuer string) ValidatorOption {
	return func(o *validatorOptions) { o.issuer = issuer }
}

// WithLeeway tolerates clock skew when checking exp/nbf/iat.
func WithLeeway(d time.Duration) ValidatorOption {
	return func(o *validatorOptions) { o.leeway = d }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(o *validatorOptions) { o.now = now }
}

// NewHMACValidator returns a validator for HS256/HS384/HS512 tokens signed
// with secret.
func NewHMACValidator(secret []byte, opts ...ValidatorOption) *JWTValidator {
	return newValidator(secret, []string{"HS256", "HS384", "HS512"}, opts)
}

// NewRSAValidator returns a validator for RS256/RS384/RS512 tokens signed by
// the private half of pub.
func NewRSAValidator(pub *rsa.PublicKey, opts ...ValidatorOption) *JWTValidator {
	return newValidator(pub, []string{"RS256", "RS384", "RS512"}, opts)
}

func newValidator(key any, methods []string, opts []ValidatorOption) *JWTValidator {
	o := validatorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	popts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if o.issuer != "" {
		popts = append(popts, jwt.WithIssuer(o.issuer))
	}
	if o.leeway > 0 {
		popts = append(popts, jwt.WithLeeway(o.leeway))
	}
	if o.now != nil {
		popts = append(popts, jwt.WithTimeFunc(o.now))
	}
	return &JWTValidator{key: key, parser: jwt.NewParser(popts...)}
}

// LoadRSAPublicKey reads a PEM encoded RSA public key from path.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read public key %q: %w", path, err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key %q: %w", path, err)
	}
	return pub, nil
}

// Validate verifies token and returns its claims. The user id comes from the
// userId claim, falling back to a numeric sub.
func (v *JWTValidator) Validate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	tok, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.UserID == 0 && claims.Subject != "" {
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric sub %q", ErrTokenInvalid, claims.Subject)
		}
		claims.UserID = id
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	return claims, nil
}

// classify maps jwt parser errors onto the three verification failures.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
}

// Reason returns the short, client-safe description of a verification
// failure ("token expired", "invalid token", "malformed token").
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return ErrTokenExpired.Error()
	case errors.Is(err, ErrTokenMalformed):
		return ErrTokenMalformed.Error()
	default:
		return ErrTokenInvalid.Error()
	}
}
