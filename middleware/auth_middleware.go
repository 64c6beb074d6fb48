package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/coursework/calendar/auth"
	"github.com/coursework/calendar/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenValidator validates an access token and returns its claims
type TokenValidator interface {
	ValidateAccessClaims(token string) (*auth.Claims, error)
}

// RequestAuthenticator attaches an identity to requests it can authenticate.
// Implementations never reject a request themselves.
type RequestAuthenticator interface {
	Authenticate(next http.Handler) http.Handler
}

// AuthMiddleware authenticates requests carrying a bearer access token
type AuthMiddleware struct {
	validator TokenValidator
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// Authenticate attaches an Identity when the Authorization header carries a
// valid, unexpired access token. Missing or bad tokens leave the request
// unauthenticated; RequireAuth decides whether that matters.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if GetIdentityFromContext(ctx) != nil {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		requestID := GetRequestIDFromContext(ctx)
		claims, err := m.validator.ValidateAccessClaims(token)
		if err != nil {
			m.logRejected(requestID, err)
			next.ServeHTTP(w, r)
			return
		}

		identity := &Identity{
			Subject: claims.Subject,
			Role:    claims.Role,
		}
		if claims.UserID != "" {
			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				m.logger.Warn("invalid userId in token",
					zap.String("request_id", requestID),
					zap.String("user_id", claims.UserID))
			} else {
				identity.UserID = userID
			}
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", identity.Subject))

		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
	})
}

// logRejected logs expected failures (expired, wrong type) at debug and
// anything that looks forged or corrupted at warn.
func (m *AuthMiddleware) logRejected(requestID string, err error) {
	fields := []zap.Field{zap.String("request_id", requestID), zap.Error(err)}
	switch {
	case errors.Is(err, auth.ErrExpired), errors.Is(err, auth.ErrWrongTokenType):
		m.logger.Debug("bearer token rejected", fields...)
	default:
		m.logger.Warn("bearer token validation failed", fields...)
	}
}

// RequireAuth responds 401 when no identity is attached to the request
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentityFromContext(r.Context()) == nil {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
