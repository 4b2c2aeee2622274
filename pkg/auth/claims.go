package auth

import "github.com/golang-jwt/jwt/v5"

// AccessTokenClaims is the JWT issued by the commerce backend. The subject is
// the buyer's user id.
type AccessTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *AccessTokenClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
