package config

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultDevSubject is the principal the dev bypass authenticates as.
const DefaultDevSubject = "admin@system.local"

// AuthMode selects how requests are authenticated.
type AuthMode string

const (
	// AuthModeStandard verifies bearer tokens on every request.
	AuthModeStandard AuthMode = "standard"
	// AuthModeDevBypass authenticates every request as the default principal
	// (for development only).
	AuthModeDevBypass AuthMode = "devbypass"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "standard", "devbypass":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: standard, devbypass)", v)
	}
}

// Millis is a duration read either as bare milliseconds ("900000") or as a
// Go duration string ("15m").
type Millis time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Millis.
func (m *Millis) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ms < 0 {
			return fmt.Errorf("negative duration: %q", s)
		}
		*m = Millis(time.Duration(ms) * time.Millisecond)
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: expected milliseconds or a Go duration", s)
	}
	if d < 0 {
		return fmt.Errorf("negative duration: %q", s)
	}
	*m = Millis(d)
	return nil
}

// Duration returns m as a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m)
}

// CookieConfig controls attributes of the refresh token cookie.
type CookieConfig struct {
	Secure   bool   `env:"SECURE"    envDefault:"false"`
	SameSite string `env:"SAME_SITE" envDefault:"lax"`
}

// SameSiteMode maps the configured value to http.SameSite.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// AuthConfig groups token and authentication-mode configuration.
type AuthConfig struct {
	// Mode determines which request authenticator is installed.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"standard"`

	// DevMode is the boolean form of Mode=devbypass.
	DevMode bool `env:"AUTH_DEV_MODE" envDefault:"false"`

	// Secret is the HMAC signing secret. Short or empty secrets are
	// stretched by the key provider.
	Secret string `env:"JWT_SECRET"`

	AccessTokenTTL  Millis `env:"JWT_ACCESS_TOKEN_EXPIRATION"  envDefault:"900000"`
	RefreshTokenTTL Millis `env:"JWT_REFRESH_TOKEN_EXPIRATION" envDefault:"604800000"`

	// DevDefaultSubject is the email of the principal used in dev bypass
	// mode. Falls back to DefaultDevSubject when unset.
	DevDefaultSubject string `env:"AUTH_DEV_SUBJECT"`

	Cookie CookieConfig `envPrefix:"AUTH_COOKIE_"`
}

// EffectiveMode resolves Mode and the DevMode flag into a single mode.
func (a AuthConfig) EffectiveMode() AuthMode {
	if a.DevMode {
		return AuthModeDevBypass
	}
	if a.Mode == "" {
		return AuthModeStandard
	}
	return a.Mode
}

// DevBypass reports whether the dev bypass authenticator is active.
func (a AuthConfig) DevBypass() bool {
	return a.EffectiveMode() == AuthModeDevBypass
}
