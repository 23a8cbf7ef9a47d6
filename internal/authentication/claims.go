package authentication

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the platform's registered JWT claims. Minting and
// verifying the signature are the platform's job, so only the registered
// claims plus the subject are exposed here.
type Claims struct {
	UserID string `json:"sub,omitempty"`
	jwt.RegisteredClaims
}

// DecodeJWTClaims parses the jwt string from a successful ScopeJWT
// Result without verifying its signature — verification is the relying
// party's responsibility once it receives the token, not this device's,
// which has no platform public key to verify against.
func DecodeJWTClaims(token string) (*Claims, error) {
	var claims Claims
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, &AuthenticationFailError{Cause: err}
	}
	return &claims, nil
}

// Claims decodes this Result's JWT (if any) without verifying it. Returns
// nil, nil when Result carries no JWT (e.g. a non-ScopeJWT attempt).
func (r Result) Claims() (*Claims, error) {
	if r.JWT == "" {
		return nil, nil
	}
	return DecodeJWTClaims(r.JWT)
}
