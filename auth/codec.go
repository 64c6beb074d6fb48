package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed is returned when a token cannot be parsed
	ErrMalformed = errors.New("malformed token")

	// ErrInvalidSignature is returned when the signature does not verify
	// under the current key or uses a disallowed algorithm
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrExpired is returned when a decoded token is past its expiry
	ErrExpired = errors.New("token expired")

	// ErrWrongTokenType is returned when a refresh token is presented where
	// an access token is expected, or the reverse
	ErrWrongTokenType = errors.New("wrong token type")
)

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithClock overrides the time source used for iat and expiry checks
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// Codec signs and verifies HS256 tokens with a single key.
type Codec struct {
	key    []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewCodec creates a codec for key, normally the output of DeriveKey.
func NewCodec(key []byte, opts ...CodecOption) *Codec {
	c := &Codec{
		key: key,
		// Expiry is checked explicitly by callers, so claim validation is off.
		// Strict decoding rejects non-canonical base64, which makes every
		// single-character edit of a token fail.
		parser: jwt.NewParser(
			jwt.WithoutClaimsValidation(),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the codec's current time
func (c *Codec) Now() time.Time {
	return c.now()
}

// Encode signs claims with exp set to expiresAt. iat is set to the current
// time unless the caller already set it. claims is not modified.
func (c *Codec) Encode(claims *Claims, expiresAt time.Time) (string, error) {
	signed := *claims
	if signed.IssuedAt == nil {
		signed.IssuedAt = jwt.NewNumericDate(c.now())
	}
	signed.ExpiresAt = jwt.NewNumericDate(expiresAt)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &signed).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Decode verifies the signature and returns the claims. Expired tokens
// decode successfully; use IsExpired.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := c.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

// IsExpired reports whether exp is at or before now. Tokens without exp
// count as expired.
func (c *Codec) IsExpired(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.ExpiresAt.Time)
}

// Validate reports whether token decodes, carries expectedSubject and has
// not expired.
func (c *Codec) Validate(tokenString, expectedSubject string) bool {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject && !c.IsExpired(claims)
}

// ValidateAccessClaims decodes an access token, rejecting refresh tokens and
// expired tokens.
func (c *Codec) ValidateAccessClaims(tokenString string) (*Claims, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.IsRefresh() {
		return nil, ErrWrongTokenType
	}
	if c.IsExpired(claims) {
		return nil, ErrExpired
	}
	return claims, nil
}

// ValidateRefresh decodes a refresh token, rejecting access tokens and
// expired tokens.
func (c *Codec) ValidateRefresh(tokenString string) (*Claims, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if !claims.IsRefresh() {
		return nil, ErrWrongTokenType
	}
	if c.IsExpired(claims) {
		return nil, ErrExpired
	}
	return claims, nil
}

// ExtractClaim decodes token and applies resolve to its claims. A decode
// failure is reported as ErrMalformed wrapping the cause.
func ExtractClaim[T any](c *Codec, tokenString string, resolve func(*Claims) T) (T, error) {
	claims, err := c.Decode(tokenString)
	if err != nil {
		var zero T
		if errors.Is(err, ErrMalformed) {
			return zero, err
		}
		return zero, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return resolve(claims), nil
}

// ExtractSubject returns the token subject (the principal's email)
func (c *Codec) ExtractSubject(tokenString string) (string, error) {
	return ExtractClaim(c, tokenString, func(cl *Claims) string { return cl.Subject })
}

// ExtractUserID returns the userId claim. Tokens without one yield uuid.Nil.
func (c *Codec) ExtractUserID(tokenString string) (uuid.UUID, error) {
	raw, err := ExtractClaim(c, tokenString, func(cl *Claims) string { return cl.UserID })
	if err != nil {
		return uuid.Nil, err
	}
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid userId: %v", ErrMalformed, err)
	}
	return id, nil
}

// ExtractExpiration returns the exp claim, or the zero time when absent
func (c *Codec) ExtractExpiration(tokenString string) (time.Time, error) {
	return ExtractClaim(c, tokenString, func(cl *Claims) time.Time {
		if cl.ExpiresAt == nil {
			return time.Time{}
		}
		return cl.ExpiresAt.Time
	})
}
