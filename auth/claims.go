package auth

import "github.com/golang-jwt/jwt/v5"

const (
	// TokenTypeRefresh marks refresh tokens. Access tokens carry no type.
	TokenTypeRefresh = "refresh"

	// RefreshTokenCookieName is the cookie holding the refresh token
	RefreshTokenCookieName = "refreshToken"
)

// Claims is the claim set carried by both token kinds.
// The subject is the principal's email.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"type,omitempty"`
}

// IsRefresh reports whether the claims belong to a refresh token
func (c *Claims) IsRefresh() bool {
	return c.Type == TokenTypeRefresh
}
