package auth

import (
	"fmt"
	"time"

	"github.com/coursework/calendar/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenPair is an access token together with its refresh token
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Issuer mints access and refresh tokens for users.
type Issuer struct {
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates an issuer signing with codec
func NewIssuer(codec *Codec, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// RefreshTTL returns the refresh token lifetime
func (i *Issuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// IssueAccessToken mints an access token carrying userId, email and role.
func (i *Issuer) IssueAccessToken(user *models.User) (string, error) {
	now := i.codec.Now()
	claims := i.baseClaims(user, now)
	claims.Email = user.Email
	claims.Role = string(user.Role)
	return i.sign(claims, expiresAt(now, i.accessTTL))
}

// IssueRefreshToken mints a refresh token carrying userId and type=refresh.
// It has no role claim.
func (i *Issuer) IssueRefreshToken(user *models.User) (string, error) {
	now := i.codec.Now()
	claims := i.baseClaims(user, now)
	claims.Type = TokenTypeRefresh
	return i.sign(claims, expiresAt(now, i.refreshTTL))
}

// IssuePair mints a fresh access and refresh token
func (i *Issuer) IssuePair(user *models.User) (TokenPair, error) {
	access, err := i.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.IssueRefreshToken(user)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// baseClaims sets the fields shared by both kinds. The random jti keeps two
// tokens minted in the same second distinct.
func (i *Issuer) baseClaims(user *models.User, now time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.Email,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(now),
		},
		UserID: user.ID.String(),
	}
}

// expiresAt returns now+ttl on the one-second grid that exp is encoded on.
// A positive TTL rounds up so the token is never expired when issued; a
// zero TTL stays at now and is expired immediately.
func expiresAt(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if ttl <= 0 {
		return exp
	}
	if whole := exp.Truncate(time.Second); whole.Before(exp) {
		return whole.Add(time.Second)
	}
	return exp
}

func (i *Issuer) sign(claims *Claims, exp time.Time) (string, error) {
	token, err := i.codec.Encode(claims, exp)
	if err != nil {
		return "", fmt.Errorf("issue token for %s: %w", claims.Subject, err)
	}
	return token, nil
}
