package auth

import (
	"net/http"
	"time"
)

// CookieManager builds the refresh token cookie. HttpOnly is always set;
// Secure and SameSite are deployment settings.
type CookieManager struct {
	maxAge   time.Duration
	secure   bool
	sameSite http.SameSite
}

// NewCookieManager creates a cookie manager whose cookies live for maxAge
func NewCookieManager(maxAge time.Duration, secure bool, sameSite http.SameSite) *CookieManager {
	return &CookieManager{
		maxAge:   maxAge,
		secure:   secure,
		sameSite: sameSite,
	}
}

// Issue returns the cookie carrying refreshToken
func (m *CookieManager) Issue(refreshToken string) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshTokenCookieName,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(m.maxAge / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	}
}

// Clear returns a cookie that deletes the refresh token.
// MaxAge -1 is written as "Max-Age=0".
func (m *CookieManager) Clear() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshTokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.sameSite,
	}
}

// FromRequest returns the refresh token cookie value, or "" when absent
func FromRequest(r *http.Request) string {
	c, err := r.Cookie(RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
